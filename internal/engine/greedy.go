package engine

import (
	"context"
	"math"
	"time"

	"taskroute/internal/geo"
	"taskroute/internal/model"
)

// defaultTimeBudget bounds a solve when the request does not set one.
const defaultTimeBudget = 2 * time.Second

// GreedySolver is the deterministic backend: cheapest-feasible-insertion
// seeding, followed by 2-opt route improvement in routing mode. Ties
// resolve to the lowest task index, then the lowest agent index, then the
// earliest insertion position (strict < keeps the first minimum found).
type GreedySolver struct{}

func (GreedySolver) Solve(ctx context.Context, m *Model) (Solution, Metrics, error) {
	start := time.Now()
	deadline := solveDeadline(ctx, m, start)

	sol, met := greedySeed(m, deadline)
	met.SeedCost = solutionCost(m, sol)
	if m.Mode == model.ModeRouting {
		improveTwoOpt(m, &sol, &met, deadline)
	}
	met.BestCost = solutionCost(m, sol)
	met.ElapsedMs = time.Since(start).Milliseconds()
	return sol, met, nil
}

func solveDeadline(ctx context.Context, m *Model, start time.Time) time.Time {
	budget := m.TimeBudget
	if budget <= 0 {
		budget = defaultTimeBudget
	}
	deadline := start.Add(budget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// greedySeed builds a feasible solution by repeatedly committing the
// globally cheapest feasible (task, agent, position) insertion.
func greedySeed(m *Model, deadline time.Time) (Solution, Metrics) {
	var met Metrics
	sol := Solution{Status: model.PlanSolved, Routes: make([][]int, len(m.Agents))}
	load := make([]int, len(m.Agents))

	remaining := make([]int, len(m.Tasks))
	for i := range remaining {
		remaining[i] = i
	}

	for len(remaining) > 0 {
		if time.Now().After(deadline) {
			sol.Status = model.PlanTimedOut
			break
		}
		met.Iterations++

		bestTask, bestAgent, bestPos := -1, -1, -1
		bestDelta := math.MaxFloat64
		for ri, ti := range remaining {
			for ai := range m.Agents {
				if !m.Eligible[ti][ai] {
					continue
				}
				if load[ai]+m.Tasks[ti].Duration > m.Capacity[ai] {
					continue
				}
				if m.Mode == model.ModeAssignment {
					// Order-independent cost: append is as good as any slot.
					d := m.StartCost[ti][ai] + innerLeg(m.Tasks[ti])
					if d < bestDelta {
						bestDelta = d
						bestTask, bestAgent, bestPos = ri, ai, len(sol.Routes[ai])
					}
					continue
				}
				for pos := 0; pos <= len(sol.Routes[ai]); pos++ {
					d := insertDelta(m, ai, sol.Routes[ai], ti, pos)
					if d < bestDelta {
						bestDelta = d
						bestTask, bestAgent, bestPos = ri, ai, pos
					}
				}
			}
		}
		if bestTask == -1 {
			// Nothing left is placeable; the rest stay unassigned.
			sol.Unassigned = append(sol.Unassigned, remaining...)
			break
		}

		ti := remaining[bestTask]
		sol.Routes[bestAgent] = insertAt(sol.Routes[bestAgent], bestPos, ti)
		load[bestAgent] += m.Tasks[ti].Duration
		remaining = append(remaining[:bestTask], remaining[bestTask+1:]...)
	}
	if sol.Status == model.PlanTimedOut {
		sol.Unassigned = append(sol.Unassigned, remaining...)
	}
	return sol, met
}

// insertDelta is the marginal route distance of placing task ti at pos,
// measured against the agent's accumulated route.
func insertDelta(m *Model, agent int, route []int, ti, pos int) float64 {
	t := m.Tasks[ti]
	prev := m.Agents[agent].Location
	if pos > 0 {
		prev = exitPoint(m.Tasks[route[pos-1]])
	}
	add := geo.Distance(prev, entryPoint(t)) + innerLeg(t)
	if pos < len(route) {
		next := entryPoint(m.Tasks[route[pos]])
		add += geo.Distance(exitPoint(t), next) - geo.Distance(prev, next)
	}
	return add
}

func insertAt(route []int, pos, ti int) []int {
	route = append(route, 0)
	copy(route[pos+1:], route[pos:])
	route[pos] = ti
	return route
}

// improveTwoOpt reverses route segments while that shortens the walk.
// Segment reversal keeps pickup-delivery pairs intact because a pair is
// a single route unit.
func improveTwoOpt(m *Model, sol *Solution, met *Metrics, deadline time.Time) {
	for ai := range sol.Routes {
		route := sol.Routes[ai]
		n := len(route)
		if n < 3 {
			continue
		}
		improved := true
		for improved {
			improved = false
			if time.Now().After(deadline) {
				return
			}
			base := routeDistance(m, ai, route)
			for i := 0; i < n-1; i++ {
				for k := i + 1; k < n; k++ {
					cand := append([]int(nil), route...)
					for a, b := i, k; a < b; a, b = a+1, b-1 {
						cand[a], cand[b] = cand[b], cand[a]
					}
					if d := routeDistance(m, ai, cand); d+1e-9 < base {
						route = cand
						base = d
						improved = true
						met.Improvements++
					}
				}
			}
		}
		sol.Routes[ai] = route
	}
}
