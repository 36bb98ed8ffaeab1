package main

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskroute/internal/api"
	"taskroute/internal/buildinfo"
	"taskroute/internal/config"
	"taskroute/internal/metrics"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	srvDeps, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Plans
	mux.HandleFunc("/v1/plans", srvDeps.PlansHandler)
	mux.HandleFunc("/v1/plans/", srvDeps.PlanByIDHandler) // includes /metrics
	mux.HandleFunc("/v1/solver/config", srvDeps.SolverConfigHandler)

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

	// Event streams
	mux.HandleFunc("/v1/events/stream", srvDeps.EventsStreamHandler)
	mux.HandleFunc("/v1/ws", srvDeps.WSHandler)

	// Health and introspection
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"` + buildinfo.Version + `","commit":"` + buildinfo.Commit + `"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", cfg.Addr)
	if srvDeps.Pub != nil {
		worker := srvDeps.NewWebhookWorker()
		worker.Start()
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so SSE streaming works through the middleware.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards hijacks so the WebSocket upgrade works through the
// middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := s.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
