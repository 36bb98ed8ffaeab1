package engine

import (
	"context"
	"math"
	"math/rand"
	"time"

	"taskroute/internal/model"
)

// AnnealSolver starts from the greedy seed and runs a remove/reinsert
// improvement loop with simulated-annealing acceptance until the time
// budget or the iteration cap is reached. Deterministic for a fixed
// seed when the cap binds first; seed 0 derives one from the clock.
type AnnealSolver struct{}

const (
	annealInitTemp = 1.0
	annealCooling  = 0.995
	// annealMaxIters bounds the search independently of the clock so a
	// fixed seed replays the same trajectory on small inputs.
	annealMaxIters = 5000
)

func (AnnealSolver) Solve(ctx context.Context, m *Model) (Solution, Metrics, error) {
	start := time.Now()
	deadline := solveDeadline(ctx, m, start)

	seed := m.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	curr, met := greedySeed(m, deadline)
	if m.Mode == model.ModeRouting {
		improveTwoOpt(m, &curr, &met, deadline)
	}
	met.SeedCost = solutionCost(m, curr)
	best := curr
	bestCost := met.SeedCost
	currCost := bestCost
	temp := annealInitTemp

	for iter := 0; iter < annealMaxIters && time.Now().Before(deadline); iter++ {
		met.Iterations++
		k := 1 + rng.Intn(3)
		cand := Solution{Status: curr.Status, Routes: cloneRoutes(curr.Routes), Unassigned: append([]int(nil), curr.Unassigned...)}
		removeRandom(m, &cand, k, rng)
		reinsertCheapest(m, &cand)
		if m.Mode == model.ModeRouting {
			improveTwoOpt(m, &cand, &met, deadline)
		}
		candCost := solutionCost(m, cand)

		delta := candCost - currCost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			currCost = candCost
			if candCost+1e-9 < bestCost {
				best = cand
				bestCost = candCost
				met.Improvements++
			} else if delta > 0 {
				met.AcceptedWorse++
			}
		}
		temp *= annealCooling
	}

	met.BestCost = bestCost
	met.ElapsedMs = time.Since(start).Milliseconds()
	return best, met, nil
}

// removeRandom pulls up to k assigned tasks out of their routes and adds
// them to the unassigned pool for reinsertion.
func removeRandom(m *Model, sol *Solution, k int, rng *rand.Rand) {
	type slot struct{ agent, pos int }
	var slots []slot
	for ai, route := range sol.Routes {
		for pos := range route {
			slots = append(slots, slot{ai, pos})
		}
	}
	for i := 0; i < k && len(slots) > 0; i++ {
		j := rng.Intn(len(slots))
		s := slots[j]
		route := sol.Routes[s.agent]
		if s.pos >= len(route) {
			slots = append(slots[:j], slots[j+1:]...)
			continue
		}
		sol.Unassigned = append(sol.Unassigned, route[s.pos])
		sol.Routes[s.agent] = append(route[:s.pos], route[s.pos+1:]...)
		// Rebuild slots for the shortened route.
		slots = slots[:0]
		for ai, r := range sol.Routes {
			for pos := range r {
				slots = append(slots, slot{ai, pos})
			}
		}
	}
}

// reinsertCheapest places every unassigned task at its cheapest feasible
// slot, leaving tasks with no feasible slot in the unassigned pool.
func reinsertCheapest(m *Model, sol *Solution) {
	load := make([]int, len(m.Agents))
	for ai, route := range sol.Routes {
		load[ai] = routeLoad(m, route)
	}
	pending := sol.Unassigned
	sol.Unassigned = nil
	for _, ti := range pending {
		bestAgent, bestPos := -1, -1
		bestDelta := math.MaxFloat64
		for ai := range m.Agents {
			if !m.Eligible[ti][ai] {
				continue
			}
			if load[ai]+m.Tasks[ti].Duration > m.Capacity[ai] {
				continue
			}
			if m.Mode == model.ModeAssignment {
				if d := m.StartCost[ti][ai] + innerLeg(m.Tasks[ti]); d < bestDelta {
					bestDelta = d
					bestAgent, bestPos = ai, len(sol.Routes[ai])
				}
				continue
			}
			for pos := 0; pos <= len(sol.Routes[ai]); pos++ {
				if d := insertDelta(m, ai, sol.Routes[ai], ti, pos); d < bestDelta {
					bestDelta = d
					bestAgent, bestPos = ai, pos
				}
			}
		}
		if bestAgent == -1 {
			sol.Unassigned = append(sol.Unassigned, ti)
			continue
		}
		sol.Routes[bestAgent] = insertAt(sol.Routes[bestAgent], bestPos, ti)
		load[bestAgent] += m.Tasks[ti].Duration
	}
}
