package engine

import "sync"

type metricsKey struct {
	Tenant string
	PlanID string
}

var (
	mu    sync.Mutex
	store = map[metricsKey]Metrics{}
)

// RecordMetrics keeps the solver metrics for a finished plan in process
// memory so the admin endpoint can serve them without a store round trip.
func RecordMetrics(tenant, planID string, m Metrics) {
	mu.Lock()
	store[metricsKey{Tenant: tenant, PlanID: planID}] = m
	mu.Unlock()
}

// GetMetrics returns the recorded metrics for a plan, if any.
func GetMetrics(tenant, planID string) (Metrics, bool) {
	mu.Lock()
	defer mu.Unlock()
	m, ok := store[metricsKey{Tenant: tenant, PlanID: planID}]
	return m, ok
}
