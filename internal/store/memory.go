package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskroute/internal/engine"
	"taskroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu sync.Mutex

	// plans by id, with per-tenant id lists in insertion order
	plans    map[string]model.Plan
	plansTen map[string][]string

	// subscriptions per tenant
	subs map[string][]model.Subscription

	// webhook delivery queue, enqueue order preserved
	deliveries map[string]*memDelivery
	order      []string

	// solver metrics per plan
	planMx map[string]memMetrics
}

type memMetrics struct {
	Tenant  string
	Algo    string
	Metrics engine.Metrics
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		plans:      map[string]model.Plan{},
		plansTen:   map[string][]string{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
		planMx:     map[string]memMetrics{},
	}
}

func (m *Memory) SavePlan(ctx context.Context, plan model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plans[plan.ID]; !exists {
		m.plansTen[plan.TenantID] = append(m.plansTen[plan.TenantID], plan.ID)
	}
	m.plans[plan.ID] = plan
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok || p.TenantID != tenantID {
		return model.Plan{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.Plan, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.plansTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Plan{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.plans[ids[i]])
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i, s := range all {
			if s.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Subscription{}
	var next string
	for i := start; i < len(all) && len(out) < limit; i++ {
		out = append(out, all[i])
		next = all[i].ID
	}
	if start+len(out) >= len(all) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.subs[tenantID]
	for i, s := range all {
		if s.ID == id {
			m.subs[tenantID] = append(all[:i], all[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload,
			Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, planID, algo string, mx engine.Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planMx[planID] = memMetrics{Tenant: tenantID, Algo: algo, Metrics: mx}
	return nil
}

func (m *Memory) GetPlanMetrics(ctx context.Context, tenantID, planID string) (engine.Metrics, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.planMx[planID]
	if !ok || rec.Tenant != tenantID {
		return engine.Metrics{}, "", ErrNotFound
	}
	return rec.Metrics, rec.Algo, nil
}
