// Package engine formulates task/agent inputs into a constraint model,
// searches it for a minimum-distance feasible assignment, and decodes the
// raw solution into a plan report.
package engine

import (
	"context"
	"fmt"
	"time"

	"taskroute/internal/geo"
	"taskroute/internal/model"
)

// Model is the solver input: immutable tasks and agents, the pruned
// eligibility edge set, the static cost matrix, and capacity bounds.
type Model struct {
	Tasks  []model.Task
	Agents []model.Agent
	Mode   string

	// Eligible[t][a] is true iff (task t, agent a) is an eligibility edge.
	// Only such pairs may appear in a solution.
	Eligible [][]bool
	// StartCost[t][a] is the distance from agent a's start to task t's
	// entry point. The assignment-mode objective sums these.
	StartCost [][]float64
	// Capacity[a] is agent a's availability in minutes.
	Capacity []int

	TimeBudget time.Duration
	Seed       int64
}

// Solution holds per-agent routes as ordered task indices plus the task
// indices no agent could take. A solution with unassigned tasks is still
// valid; Status records whether search ran to completion.
type Solution struct {
	Status     string // model.PlanSolved or model.PlanTimedOut
	Routes     [][]int
	Unassigned []int
}

// Metrics describes one solver run.
type Metrics struct {
	Iterations    int     `json:"iterations"`
	Improvements  int     `json:"improvements"`
	AcceptedWorse int     `json:"acceptedWorse"`
	SeedCost      float64 `json:"seedCost"`
	BestCost      float64 `json:"bestCost"`
	ElapsedMs     int64   `json:"elapsedMs"`
}

// Solver searches a Model for a minimum-distance feasible solution.
// Implementations must honor capacity and eligibility exactly and return
// the best solution found when the time budget elapses.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Solution, Metrics, error)
}

// Algorithm names accepted by ForAlgorithm.
const (
	AlgoGreedy = "greedy"
	AlgoAnneal = "anneal"
)

// ForAlgorithm returns the solver backend for the given name.
// Empty selects greedy.
func ForAlgorithm(name string) (Solver, error) {
	switch name {
	case "", AlgoGreedy:
		return &GreedySolver{}, nil
	case AlgoAnneal:
		return &AnnealSolver{}, nil
	default:
		return nil, fmt.Errorf("unknown algorithm: %s", name)
	}
}

// entryPoint is where an agent arrives to begin task t.
func entryPoint(t model.Task) geo.Point {
	if t.Kind() == model.TaskPickupDelivery {
		return *t.PickupLocation
	}
	return *t.Location
}

// exitPoint is where an agent stands after finishing task t.
func exitPoint(t model.Task) geo.Point {
	if t.Kind() == model.TaskPickupDelivery {
		return *t.DropLocation
	}
	return *t.Location
}

// innerLeg is the pickup-to-drop distance within t, zero for single tasks.
func innerLeg(t model.Task) float64 {
	if t.Kind() == model.TaskPickupDelivery {
		return geo.Distance(*t.PickupLocation, *t.DropLocation)
	}
	return 0
}

// routeDistance walks a route from the agent's start location.
func routeDistance(m *Model, agent int, route []int) float64 {
	cur := m.Agents[agent].Location
	total := 0.0
	for _, ti := range route {
		t := m.Tasks[ti]
		total += geo.Distance(cur, entryPoint(t)) + innerLeg(t)
		cur = exitPoint(t)
	}
	return total
}

// solutionCost is the search objective: total distance plus a fixed
// penalty per unassigned task, mirroring the disjunction penalty of the
// original model so search prefers covering tasks over short routes.
const unassignedPenaltyKm = 1000.0

func solutionCost(m *Model, s Solution) float64 {
	total := 0.0
	if m.Mode == model.ModeAssignment {
		for a, route := range s.Routes {
			for _, ti := range route {
				total += m.StartCost[ti][a] + innerLeg(m.Tasks[ti])
			}
		}
	} else {
		for a, route := range s.Routes {
			total += routeDistance(m, a, route)
		}
	}
	return total + unassignedPenaltyKm*float64(len(s.Unassigned))
}

func routeLoad(m *Model, route []int) int {
	load := 0
	for _, ti := range route {
		load += m.Tasks[ti].Duration
	}
	return load
}

func cloneRoutes(routes [][]int) [][]int {
	out := make([][]int, len(routes))
	for i, r := range routes {
		out[i] = append([]int(nil), r...)
	}
	return out
}
