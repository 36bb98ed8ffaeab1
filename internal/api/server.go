// Package api implements HTTP handlers and helpers for the task routing service.
package api

import (
	"context"
	"net/http"
	"os"

	"taskroute/internal/config"
	"taskroute/internal/store"
	"taskroute/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Broker  EventBroker
	Cfg     config.Config
	limiter *clientLimiters
}

// NewServer wires the store and broker from the configuration. Without a
// DATABASE_URL it uses the in-memory store; without a REDIS_URL the
// in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if cfg.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	return &Server{
		Store:   s,
		Pub:     webhooks.NewPublisher(s),
		Broker:  broker,
		Cfg:     cfg,
		limiter: newClientLimiters(cfg.RateRPS, cfg.RateBurst),
	}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	// Tenant comes from a header; production deployments put an auth
	// proxy in front.
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
