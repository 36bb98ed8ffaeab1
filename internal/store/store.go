package store

import (
	"context"
	"errors"
	"time"

	"taskroute/internal/engine"
	"taskroute/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Plans
	SavePlan(ctx context.Context, plan model.Plan) error
	GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error)
	ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.Plan, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error

	// Solver metrics
	SavePlanMetrics(ctx context.Context, tenantID, planID, algo string, m engine.Metrics) error
	GetPlanMetrics(ctx context.Context, tenantID, planID string) (engine.Metrics, string, error)
}

// WebhookDelivery is one queued webhook attempt.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")
