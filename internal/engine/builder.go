package engine

import (
	"fmt"
	"time"

	"taskroute/internal/geo"
	"taskroute/internal/model"
)

// BuildModel validates the request and constructs the constraint model:
// the eligibility edge set for every (task, agent) pair, the static
// start-to-task cost matrix, and per-agent capacity bounds. Validation
// failures abort the run before any model state is produced.
func BuildModel(req model.PlanRequest) (*Model, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	m := &Model{
		Tasks:     req.Tasks,
		Agents:    req.Agents,
		Mode:      req.Mode,
		Seed:      req.Seed,
		Eligible:  make([][]bool, len(req.Tasks)),
		StartCost: make([][]float64, len(req.Tasks)),
		Capacity:  make([]int, len(req.Agents)),
	}
	if m.Mode == "" {
		m.Mode = model.ModeAssignment
	}
	if req.TimeBudgetMs > 0 {
		m.TimeBudget = time.Duration(req.TimeBudgetMs) * time.Millisecond
	}
	for a, ag := range req.Agents {
		m.Capacity[a] = ag.Availability
	}
	for ti, t := range req.Tasks {
		m.Eligible[ti] = make([]bool, len(req.Agents))
		m.StartCost[ti] = make([]float64, len(req.Agents))
		for ai, ag := range req.Agents {
			m.Eligible[ti][ai] = Eligible(t, ag, req.OpenLocations)
			m.StartCost[ti][ai] = geo.Distance(ag.Location, entryPoint(t))
		}
	}
	return m, nil
}

func validateRequest(req model.PlanRequest) error {
	if req.Mode != "" && req.Mode != model.ModeAssignment && req.Mode != model.ModeRouting {
		return fmt.Errorf("invalid mode: %s", req.Mode)
	}
	if req.OpenLocations != "" && req.OpenLocations != model.OpenLocationsNone && req.OpenLocations != model.OpenLocationsAny {
		return fmt.Errorf("invalid openLocations: %s (allowed: none,any)", req.OpenLocations)
	}
	if len(req.Tasks) == 0 {
		return fmt.Errorf("tasks must not be empty")
	}
	if len(req.Agents) == 0 {
		return fmt.Errorf("agents must not be empty")
	}

	taskIDs := make(map[model.Key]struct{}, len(req.Tasks))
	for i, t := range req.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task at index %d: missing id", i)
		}
		if _, dup := taskIDs[t.ID]; dup {
			return fmt.Errorf("task %s: duplicate id", t.ID)
		}
		taskIDs[t.ID] = struct{}{}
		if t.Skill == "" {
			return fmt.Errorf("task %s: missing skill", t.ID)
		}
		if t.Pincode == "" {
			return fmt.Errorf("task %s: missing pincode", t.ID)
		}
		if t.Duration <= 0 {
			return fmt.Errorf("task %s: duration must be positive, got %d", t.ID, t.Duration)
		}
		switch t.Kind() {
		case model.TaskSingle:
			if t.Location == nil {
				return fmt.Errorf("task %s: missing location", t.ID)
			}
			if !t.Location.Valid() {
				return fmt.Errorf("task %s: location out of range", t.ID)
			}
		case model.TaskPickupDelivery:
			if t.PickupLocation == nil || t.DropLocation == nil {
				return fmt.Errorf("task %s: pickup_delivery requires pickup_location and drop_location", t.ID)
			}
			if !t.PickupLocation.Valid() || !t.DropLocation.Valid() {
				return fmt.Errorf("task %s: pickup or drop location out of range", t.ID)
			}
		default:
			return fmt.Errorf("task %s: unknown type %q", t.ID, t.Type)
		}
	}

	agentIDs := make(map[model.Key]struct{}, len(req.Agents))
	for i, a := range req.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent at index %d: missing id", i)
		}
		if _, dup := agentIDs[a.ID]; dup {
			return fmt.Errorf("agent %s: duplicate id", a.ID)
		}
		agentIDs[a.ID] = struct{}{}
		if len(a.Skills) == 0 {
			return fmt.Errorf("agent %s: skills must not be empty", a.ID)
		}
		if !a.Location.Valid() {
			return fmt.Errorf("agent %s: location out of range", a.ID)
		}
		if a.Availability <= 0 {
			return fmt.Errorf("agent %s: availability must be positive, got %d", a.ID, a.Availability)
		}
	}
	return nil
}
