package api

import (
	"fmt"

	"taskroute/internal/engine"
	"taskroute/internal/model"
)

// validatePlanRequest checks the solver options up front; the model
// builder validates tasks and agents record by record.
func validatePlanRequest(req *model.PlanRequest) error {
	if req.Algorithm != "" && req.Algorithm != engine.AlgoGreedy && req.Algorithm != engine.AlgoAnneal {
		return fmt.Errorf("invalid algorithm: %s (allowed: greedy,anneal)", req.Algorithm)
	}
	if req.Mode != "" && req.Mode != model.ModeAssignment && req.Mode != model.ModeRouting {
		return fmt.Errorf("invalid mode: %s (allowed: assignment,routing)", req.Mode)
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if req.OpenLocations != "" && req.OpenLocations != model.OpenLocationsNone && req.OpenLocations != model.OpenLocationsAny {
		return fmt.Errorf("invalid openLocations: %s (allowed: none,any)", req.OpenLocations)
	}
	return nil
}
