package engine

import (
	"fmt"

	"taskroute/internal/geo"
	"taskroute/internal/model"
)

// Decode maps a raw solution back onto task/agent identities: each
// non-empty route is walked in visiting order from the agent's start,
// distances accumulate with the same haversine function used for
// costing, and tasks no agent took land in unassigned_tasks. A solution
// referencing an index outside the model, or placing a task twice, is a
// solver contract violation and returns an error.
func Decode(m *Model, sol Solution) (model.PlanReport, error) {
	report := model.PlanReport{
		AgentAssignments: []model.Assignment{},
		UnassignedTasks:  []model.Key{},
	}
	if len(sol.Routes) != len(m.Agents) {
		return report, fmt.Errorf("decode: solution has %d routes for %d agents", len(sol.Routes), len(m.Agents))
	}

	seen := make([]bool, len(m.Tasks))
	for ai, route := range sol.Routes {
		if len(route) == 0 {
			continue
		}
		agent := m.Agents[ai]
		cur := agent.Location
		total := 0.0
		tasks := make([]model.Key, 0, len(route))
		for _, ti := range route {
			if ti < 0 || ti >= len(m.Tasks) {
				return report, fmt.Errorf("decode: route for agent %s references unknown task index %d", agent.ID, ti)
			}
			if seen[ti] {
				return report, fmt.Errorf("decode: task %s appears more than once", m.Tasks[ti].ID)
			}
			seen[ti] = true
			t := m.Tasks[ti]
			total += geo.Distance(cur, entryPoint(t)) + innerLeg(t)
			cur = exitPoint(t)
			tasks = append(tasks, t.ID)
		}
		report.AgentAssignments = append(report.AgentAssignments, model.Assignment{
			AgentID:       agent.ID,
			Tasks:         tasks,
			TotalDistance: total,
			LastLocation:  cur,
		})
		report.TotalDistanceCovered += total
	}

	for _, ti := range sol.Unassigned {
		if ti < 0 || ti >= len(m.Tasks) {
			return report, fmt.Errorf("decode: unassigned set references unknown task index %d", ti)
		}
		if seen[ti] {
			return report, fmt.Errorf("decode: task %s is both assigned and unassigned", m.Tasks[ti].ID)
		}
		seen[ti] = true
	}
	// Emit unassigned ids in task input order for stable output.
	for ti, t := range m.Tasks {
		if !seen[ti] {
			return report, fmt.Errorf("decode: task %s missing from solution", t.ID)
		}
	}
	for _, ti := range sortedCopy(sol.Unassigned) {
		report.UnassignedTasks = append(report.UnassignedTasks, m.Tasks[ti].ID)
	}
	return report, nil
}

func sortedCopy(idx []int) []int {
	out := append([]int(nil), idx...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
