package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// PlanRequests counts optimization runs by mode, algorithm, and outcome.
	PlanRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_requests_total", Help: "Optimization runs by mode, algorithm, and status."},
		[]string{"mode", "algorithm", "status"},
	)
	// SolveDuration records end-to-end solve durations in seconds.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Solver wall-clock duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}},
		[]string{"mode", "algorithm"},
	)
	// UnassignedTasks counts tasks that ended up without an agent.
	UnassignedTasks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "unassigned_tasks_total", Help: "Tasks left unassigned across all plans."},
	)
	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(PlanRequests)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(UnassignedTasks)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
