package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskroute/internal/engine"
	"taskroute/internal/metrics"
	"taskroute/internal/model"
	"taskroute/internal/webhooks"
)

// PlansHandler serves POST /v1/plans (run the solver) and GET /v1/plans
// (list stored plans for the tenant).
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodPost:
		if !s.limiter.allow(r) {
			writeProblem(w, http.StatusTooManyRequests, "rate_limited", "too many plan requests", r.URL.Path)
			return
		}
		var req model.PlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error(), r.URL.Path)
			return
		}
		req.TenantID = tenant
		s.Cfg.ApplyDefaults(&req)
		if err := validatePlanRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_request", err.Error(), r.URL.Path)
			return
		}
		m, err := engine.BuildModel(req)
		if err != nil {
			writeProblem(w, http.StatusUnprocessableEntity, "invalid_model", err.Error(), r.URL.Path)
			return
		}
		solver, err := engine.ForAlgorithm(req.Algorithm)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_request", err.Error(), r.URL.Path)
			return
		}
		started := time.Now()
		sol, met, err := solver.Solve(ctx, m)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "solver_error", err.Error(), r.URL.Path)
			return
		}
		report, err := engine.Decode(m, sol)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "decode_error", err.Error(), r.URL.Path)
			return
		}
		mode := req.Mode
		if mode == "" {
			mode = model.ModeAssignment
		}
		algo := req.Algorithm
		if algo == "" {
			algo = engine.AlgoGreedy
		}
		plan := model.Plan{
			ID:        uuid.NewString(),
			TenantID:  tenant,
			Mode:      mode,
			Algorithm: algo,
			Status:    sol.Status,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Report:    report,
		}
		if err := s.Store.SavePlan(ctx, plan); err != nil {
			writeProblem(w, http.StatusInternalServerError, "store_error", err.Error(), r.URL.Path)
			return
		}
		_ = s.Store.SavePlanMetrics(ctx, tenant, plan.ID, algo, met)
		engine.RecordMetrics(tenant, plan.ID, met)

		metrics.PlanRequests.WithLabelValues(mode, algo, plan.Status).Inc()
		metrics.SolveDuration.WithLabelValues(mode, algo).Observe(time.Since(started).Seconds())
		metrics.UnassignedTasks.Add(float64(len(report.UnassignedTasks)))

		evtType := webhooks.EventPlanCompleted
		if plan.Status == model.PlanTimedOut {
			evtType = webhooks.EventPlanTimedOut
		}
		evtData := map[string]any{
			"planId":          plan.ID,
			"status":          plan.Status,
			"totalDistance":   report.TotalDistanceCovered,
			"unassignedCount": len(report.UnassignedTasks),
		}
		s.Broker.Publish(tenant, SSEEvent{Type: evtType, Data: evtData})
		s.Pub.Emit(ctx, tenant, evtType, evtData)

		writeJSON(w, http.StatusCreated, plan)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := queryInt(r, "limit", 50)
		plans, next, err := s.Store.ListPlans(ctx, tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "store_error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": plans, "nextCursor": next})
	default:
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "", r.URL.Path)
	}
}

// PlanByIDHandler serves GET /v1/plans/{id} and GET /v1/plans/{id}/metrics.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	if r.Method != http.MethodGet {
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "", r.URL.Path)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "not_found", "missing plan id", r.URL.Path)
		return
	}
	switch sub {
	case "":
		plan, err := s.Store.GetPlan(ctx, tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "not_found", "plan not found", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	case "metrics":
		met, algo, err := s.Store.GetPlanMetrics(ctx, tenant, id)
		if err != nil {
			// The persisted row may be missing when the metrics save
			// failed; the in-process record still covers plans solved
			// by this replica.
			inMem, ok := engine.GetMetrics(tenant, id)
			if !ok {
				writeProblem(w, http.StatusNotFound, "not_found", "plan metrics not found", r.URL.Path)
				return
			}
			met = inMem
			if plan, perr := s.Store.GetPlan(ctx, tenant, id); perr == nil {
				algo = plan.Algorithm
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"planId": id, "algorithm": algo, "metrics": met})
	default:
		writeProblem(w, http.StatusNotFound, "not_found", "", r.URL.Path)
	}
}

// SolverConfigHandler exposes the effective solver defaults.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"algorithm":     s.Cfg.Solver.Algorithm,
		"mode":          s.Cfg.Solver.Mode,
		"timeBudgetMs":  s.Cfg.Solver.TimeBudgetMs,
		"openLocations": s.Cfg.Solver.OpenLocations,
		"algorithms":    []string{engine.AlgoGreedy, engine.AlgoAnneal},
	})
}

// SubscriptionsHandler serves POST /v1/subscriptions and GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "invalid_request", "url and events are required", r.URL.Path)
			return
		}
		req.TenantID = tenant
		sub, err := s.Store.CreateSubscription(ctx, req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "store_error", err.Error(), r.URL.Path)
			return
		}
		sub.Secret = ""
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := queryInt(r, "limit", 50)
		subs, next, err := s.Store.ListSubscriptions(ctx, tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "store_error", err.Error(), r.URL.Path)
			return
		}
		for i := range subs {
			subs[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": subs, "nextCursor": next})
	default:
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "", r.URL.Path)
	}
}

// SubscriptionByIDHandler serves DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "not_found", "missing subscription id", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(ctx, tenant, id); err != nil {
		writeProblem(w, http.StatusNotFound, "not_found", "subscription not found", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EventsStreamHandler serves GET /v1/events/stream as server-sent events.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	_, tenant := s.withTenant(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "streaming_unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(tenant)
	defer s.Broker.Unsubscribe(tenant, ch)

	// initial comment so proxies flush headers
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case evt, open := <-ch:
			if !open {
				return
			}
			body, _ := json.Marshal(evt)
			_, _ = w.Write([]byte("event: " + evt.Type + "\ndata: " + string(body) + "\n\n"))
			flusher.Flush()
		}
	}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness. The memory store is always ready; the
// Postgres store is probed with a cheap read.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	if _, _, err := s.Store.ListPlans(ctx, tenant, "", 1); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "not_ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
