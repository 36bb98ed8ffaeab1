package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"taskroute/internal/geo"
	"taskroute/internal/model"
)

func pt(lat, lon float64) *geo.Point { return &geo.Point{Lat: lat, Lon: lon} }

func driverTask(id string, p *geo.Point, pincode string, duration int) model.Task {
	return model.Task{ID: model.Key(id), Skill: "driver", Location: p, Pincode: model.Key(pincode), Duration: duration}
}

func solveReport(t *testing.T, req model.PlanRequest) model.PlanReport {
	t.Helper()
	m, err := BuildModel(req)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	s, err := ForAlgorithm(req.Algorithm)
	if err != nil {
		t.Fatalf("ForAlgorithm: %v", err)
	}
	sol, _, err := s.Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	report, err := Decode(m, sol)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checkInvariants(t, req, report)
	return report
}

// checkInvariants asserts the partition, capacity, eligibility and
// total-distance properties for any report.
func checkInvariants(t *testing.T, req model.PlanRequest, r model.PlanReport) {
	t.Helper()
	seen := map[model.Key]int{}
	for _, a := range r.AgentAssignments {
		if len(a.Tasks) == 0 {
			t.Fatalf("agent %s has an empty assignment entry", a.AgentID)
		}
		for _, id := range a.Tasks {
			seen[id]++
		}
	}
	for _, id := range r.UnassignedTasks {
		seen[id]++
	}
	for _, task := range req.Tasks {
		if seen[task.ID] != 1 {
			t.Fatalf("task %s appears %d times across assignments+unassigned, want exactly 1", task.ID, seen[task.ID])
		}
	}

	tasksByID := map[model.Key]model.Task{}
	for _, task := range req.Tasks {
		tasksByID[task.ID] = task
	}
	agentsByID := map[model.Key]model.Agent{}
	for _, ag := range req.Agents {
		agentsByID[ag.ID] = ag
	}
	sum := 0.0
	for _, a := range r.AgentAssignments {
		ag, ok := agentsByID[a.AgentID]
		if !ok {
			t.Fatalf("assignment for unknown agent %s", a.AgentID)
		}
		load := 0
		for _, id := range a.Tasks {
			task := tasksByID[id]
			load += task.Duration
			if !Eligible(task, ag, req.OpenLocations) {
				t.Fatalf("task %s assigned to ineligible agent %s", id, ag.ID)
			}
		}
		if load > ag.Availability {
			t.Fatalf("agent %s load %d exceeds availability %d", ag.ID, load, ag.Availability)
		}
		sum += a.TotalDistance
	}
	if math.Abs(sum-r.TotalDistanceCovered) > 1e-6 {
		t.Fatalf("total_distance_covered = %v, sum of assignments = %v", r.TotalDistanceCovered, sum)
	}
}

func TestEligible(t *testing.T) {
	task := driverTask("t1", pt(12.9, 77.5), "560001", 30)
	agent := model.Agent{ID: "a1", Skills: []string{"driver"}, AllowedLocations: []model.Key{"560001"}}
	if !Eligible(task, agent, "") {
		t.Fatal("expected eligible: matching skill and pincode")
	}
	agent.AllowedLocations = []model.Key{"560002"}
	if Eligible(task, agent, "") {
		t.Fatal("expected ineligible: pincode not allowed")
	}
	agent.AllowedLocations = []model.Key{"560001"}
	agent.Skills = []string{"inspection"}
	if Eligible(task, agent, "") {
		t.Fatal("expected ineligible: missing skill")
	}
}

func TestEligibleEmptyAllowedLocationsPolicy(t *testing.T) {
	task := driverTask("t1", pt(12.9, 77.5), "560001", 30)
	agent := model.Agent{ID: "a1", Skills: []string{"driver"}}
	if Eligible(task, agent, model.OpenLocationsNone) {
		t.Fatal("empty allowedLocations must mean eligible nowhere by default")
	}
	if Eligible(task, agent, "") {
		t.Fatal("unset policy must behave like none")
	}
	if !Eligible(task, agent, model.OpenLocationsAny) {
		t.Fatal("openLocations=any must lift the restriction")
	}
}

func TestBuildModelValidation(t *testing.T) {
	base := func() model.PlanRequest {
		return model.PlanRequest{
			Tasks:  []model.Task{driverTask("t1", pt(12.9, 77.5), "560001", 30)},
			Agents: []model.Agent{{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{Lat: 12.9, Lon: 74.8}, Availability: 120, AllowedLocations: []model.Key{"560001"}}},
		}
	}
	cases := []struct {
		name   string
		mutate func(*model.PlanRequest)
	}{
		{"no tasks", func(r *model.PlanRequest) { r.Tasks = nil }},
		{"no agents", func(r *model.PlanRequest) { r.Agents = nil }},
		{"bad mode", func(r *model.PlanRequest) { r.Mode = "batch" }},
		{"bad openLocations", func(r *model.PlanRequest) { r.OpenLocations = "maybe" }},
		{"missing task id", func(r *model.PlanRequest) { r.Tasks[0].ID = "" }},
		{"missing skill", func(r *model.PlanRequest) { r.Tasks[0].Skill = "" }},
		{"missing pincode", func(r *model.PlanRequest) { r.Tasks[0].Pincode = "" }},
		{"zero duration", func(r *model.PlanRequest) { r.Tasks[0].Duration = 0 }},
		{"missing location", func(r *model.PlanRequest) { r.Tasks[0].Location = nil }},
		{"latitude out of range", func(r *model.PlanRequest) { r.Tasks[0].Location = pt(95, 0) }},
		{"unknown task type", func(r *model.PlanRequest) { r.Tasks[0].Type = "recurring" }},
		{"pickup without drop", func(r *model.PlanRequest) {
			r.Tasks[0].Type = model.TaskPickupDelivery
			r.Tasks[0].PickupLocation = pt(1, 1)
		}},
		{"duplicate task id", func(r *model.PlanRequest) { r.Tasks = append(r.Tasks, r.Tasks[0]) }},
		{"agent no skills", func(r *model.PlanRequest) { r.Agents[0].Skills = nil }},
		{"agent zero availability", func(r *model.PlanRequest) { r.Agents[0].Availability = 0 }},
		{"agent bad location", func(r *model.PlanRequest) { r.Agents[0].Location = geo.Point{Lat: 0, Lon: 200} }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := base()
			c.mutate(&req)
			if _, err := BuildModel(req); err == nil {
				t.Fatalf("expected validation error for %s", c.name)
			}
		})
	}
	if _, err := BuildModel(base()); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestScenarioBothTasksToSingleAgent(t *testing.T) {
	req := model.PlanRequest{
		Mode: model.ModeRouting,
		Tasks: []model.Task{
			driverTask("t1", pt(12.971598, 77.594566), "560001", 50),
			driverTask("t2", pt(12.295810, 76.639381), "560002", 50),
		},
		Agents: []model.Agent{{
			ID: "a1", Skills: []string{"driver"},
			Location:         geo.Point{Lat: 12.914142, Lon: 74.856033},
			Availability:     1000,
			AllowedLocations: []model.Key{"560001", "560002"},
		}},
	}
	r := solveReport(t, req)
	if len(r.UnassignedTasks) != 0 {
		t.Fatalf("unassigned = %v, want empty", r.UnassignedTasks)
	}
	if len(r.AgentAssignments) != 1 || len(r.AgentAssignments[0].Tasks) != 2 {
		t.Fatalf("assignments = %+v, want both tasks on a1", r.AgentAssignments)
	}
}

func TestScenarioSkillMismatchUnassigned(t *testing.T) {
	req := model.PlanRequest{
		Tasks: []model.Task{{ID: "t1", Skill: "inspection", Location: pt(12.9, 77.5), Pincode: "560001", Duration: 30}},
		Agents: []model.Agent{{
			ID: "a1", Skills: []string{"driver"},
			Location: geo.Point{Lat: 12.9, Lon: 74.8}, Availability: 120,
			AllowedLocations: []model.Key{"560001"},
		}},
	}
	r := solveReport(t, req)
	if len(r.UnassignedTasks) != 1 || r.UnassignedTasks[0] != "t1" {
		t.Fatalf("unassigned = %v, want [t1]", r.UnassignedTasks)
	}
	if len(r.AgentAssignments) != 0 {
		t.Fatalf("agent_assignments = %+v, want no entries", r.AgentAssignments)
	}
	if r.TotalDistanceCovered != 0 {
		t.Fatalf("total = %v, want 0", r.TotalDistanceCovered)
	}
}

func TestScenarioCapacityExactBoundary(t *testing.T) {
	task := driverTask("t1", pt(12.9, 77.5), "560001", 60)
	agent := model.Agent{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{Lat: 12.9, Lon: 74.8}, Availability: 60, AllowedLocations: []model.Key{"560001"}}

	r := solveReport(t, model.PlanRequest{Tasks: []model.Task{task}, Agents: []model.Agent{agent}})
	if len(r.UnassignedTasks) != 0 {
		t.Fatalf("availability == duration must assign, got unassigned %v", r.UnassignedTasks)
	}

	agent.Availability = 59
	r = solveReport(t, model.PlanRequest{Tasks: []model.Task{task}, Agents: []model.Agent{agent}})
	if len(r.UnassignedTasks) != 1 {
		t.Fatalf("availability == duration-1 must not assign, got %+v", r)
	}
}

func TestScenarioThreeTasksTwoAgents(t *testing.T) {
	req := model.PlanRequest{
		Mode: model.ModeRouting,
		Tasks: []model.Task{
			driverTask("t0", pt(12.971598, 77.594566), "560001", 50),
			driverTask("t1", pt(12.295810, 76.639381), "560002", 50),
			driverTask("t2", pt(13.082680, 80.270721), "560002", 50),
		},
		Agents: []model.Agent{
			{ID: "a0", Skills: []string{"driver"}, Location: geo.Point{Lat: 12.914142, Lon: 74.856033}, Availability: 120, AllowedLocations: []model.Key{"560001", "560002"}},
			{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{Lat: 13.0, Lon: 80.2}, Availability: 120, AllowedLocations: []model.Key{"560002"}},
		},
	}
	r := solveReport(t, req)
	assigned := 0
	for _, a := range r.AgentAssignments {
		assigned += len(a.Tasks)
	}
	if assigned+len(r.UnassignedTasks) != 3 {
		t.Fatalf("partition broken: %d assigned + %d unassigned", assigned, len(r.UnassignedTasks))
	}
	if assigned == 0 {
		t.Fatal("expected at least one assignment")
	}
}

func TestRoutingModeVisitsNearFirst(t *testing.T) {
	// Agent at origin; t_far is twice as far as t_near along the same
	// meridian, so near-then-far is the unique shortest walk.
	req := model.PlanRequest{
		Mode: model.ModeRouting,
		Tasks: []model.Task{
			driverTask("t_far", pt(2, 0), "p", 10),
			driverTask("t_near", pt(1, 0), "p", 10),
		},
		Agents: []model.Agent{{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{}, Availability: 100, AllowedLocations: []model.Key{"p"}}},
	}
	r := solveReport(t, req)
	if len(r.AgentAssignments) != 1 {
		t.Fatalf("assignments = %+v", r.AgentAssignments)
	}
	got := r.AgentAssignments[0].Tasks
	if got[0] != "t_near" || got[1] != "t_far" {
		t.Fatalf("visiting order = %v, want [t_near t_far]", got)
	}
	want := geo.Distance(geo.Point{}, geo.Point{Lat: 1}) + geo.Distance(geo.Point{Lat: 1}, geo.Point{Lat: 2})
	if math.Abs(r.TotalDistanceCovered-want) > 1e-6 {
		t.Fatalf("total = %v, want %v", r.TotalDistanceCovered, want)
	}
	if r.AgentAssignments[0].LastLocation != (geo.Point{Lat: 2}) {
		t.Fatalf("last_location = %+v, want [2 0]", r.AgentAssignments[0].LastLocation)
	}
}

func TestPickupDeliveryPair(t *testing.T) {
	req := model.PlanRequest{
		Mode: model.ModeRouting,
		Tasks: []model.Task{{
			ID: "pd1", Type: model.TaskPickupDelivery, Skill: "driver",
			PickupLocation: pt(1, 1), DropLocation: pt(2, 1),
			Pincode: "p", Duration: 30,
		}},
		Agents: []model.Agent{{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{}, Availability: 60, AllowedLocations: []model.Key{"p"}}},
	}
	r := solveReport(t, req)
	if len(r.AgentAssignments) != 1 || len(r.AgentAssignments[0].Tasks) != 1 {
		t.Fatalf("pair must be reported once: %+v", r.AgentAssignments)
	}
	want := geo.Distance(geo.Point{}, geo.Point{Lat: 1, Lon: 1}) + geo.Distance(geo.Point{Lat: 1, Lon: 1}, geo.Point{Lat: 2, Lon: 1})
	if math.Abs(r.AgentAssignments[0].TotalDistance-want) > 1e-6 {
		t.Fatalf("distance = %v, want %v (start→pickup→drop)", r.AgentAssignments[0].TotalDistance, want)
	}
	if r.AgentAssignments[0].LastLocation != (geo.Point{Lat: 2, Lon: 1}) {
		t.Fatalf("last_location = %+v, want the drop point", r.AgentAssignments[0].LastLocation)
	}
}

func TestAnnealDeterministicForSeed(t *testing.T) {
	req := model.PlanRequest{
		Mode:         model.ModeRouting,
		Algorithm:    AlgoAnneal,
		Seed:         42,
		TimeBudgetMs: 2000,
		Tasks: []model.Task{
			driverTask("t1", pt(12.97, 77.59), "p", 20),
			driverTask("t2", pt(12.30, 76.64), "p", 20),
			driverTask("t3", pt(13.08, 80.27), "p", 20),
			driverTask("t4", pt(12.50, 78.00), "p", 20),
		},
		Agents: []model.Agent{
			{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{Lat: 12.9, Lon: 74.8}, Availability: 80, AllowedLocations: []model.Key{"p"}},
			{ID: "a2", Skills: []string{"driver"}, Location: geo.Point{Lat: 13.0, Lon: 80.0}, Availability: 80, AllowedLocations: []model.Key{"p"}},
		},
	}
	first := solveReport(t, req)
	second := solveReport(t, req)
	if math.Abs(first.TotalDistanceCovered-second.TotalDistanceCovered) > 1e-9 {
		t.Fatalf("same seed produced different totals: %v vs %v", first.TotalDistanceCovered, second.TotalDistanceCovered)
	}
}

func TestGreedyIdempotent(t *testing.T) {
	req := model.PlanRequest{
		Mode: model.ModeRouting,
		Tasks: []model.Task{
			driverTask("t1", pt(12.97, 77.59), "p", 20),
			driverTask("t2", pt(12.30, 76.64), "p", 20),
			driverTask("t3", pt(13.08, 80.27), "p", 20),
		},
		Agents: []model.Agent{
			{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{Lat: 12.9, Lon: 74.8}, Availability: 60, AllowedLocations: []model.Key{"p"}},
			{ID: "a2", Skills: []string{"driver"}, Location: geo.Point{Lat: 13.0, Lon: 80.0}, Availability: 60, AllowedLocations: []model.Key{"p"}},
		},
	}
	first := solveReport(t, req)
	second := solveReport(t, req)
	if first.TotalDistanceCovered != second.TotalDistanceCovered {
		t.Fatalf("greedy not idempotent: %v vs %v", first.TotalDistanceCovered, second.TotalDistanceCovered)
	}
}

func TestExpiredDeadlineStillConsistent(t *testing.T) {
	req := model.PlanRequest{
		Tasks:  []model.Task{driverTask("t1", pt(12.9, 77.5), "p", 30)},
		Agents: []model.Agent{{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{Lat: 12.9, Lon: 74.8}, Availability: 120, AllowedLocations: []model.Key{"p"}}},
	}
	m, err := BuildModel(req)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	sol, _, err := (GreedySolver{}).Solve(ctx, m)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != model.PlanTimedOut {
		t.Fatalf("status = %s, want timed_out", sol.Status)
	}
	r, err := Decode(m, sol)
	if err != nil {
		t.Fatalf("Decode after timeout: %v", err)
	}
	checkInvariants(t, req, r)
}

func TestDecodeContractViolations(t *testing.T) {
	req := model.PlanRequest{
		Tasks:  []model.Task{driverTask("t1", pt(12.9, 77.5), "p", 30)},
		Agents: []model.Agent{{ID: "a1", Skills: []string{"driver"}, Location: geo.Point{Lat: 12.9, Lon: 74.8}, Availability: 120, AllowedLocations: []model.Key{"p"}}},
	}
	m, err := BuildModel(req)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	cases := []struct {
		name string
		sol  Solution
	}{
		{"unknown index", Solution{Routes: [][]int{{7}}}},
		{"task assigned and unassigned", Solution{Routes: [][]int{{0}}, Unassigned: []int{0}}},
		{"task omitted", Solution{Routes: [][]int{{}}}},
		{"route count mismatch", Solution{Routes: [][]int{{0}, {}}}},
	}
	for _, c := range cases {
		if _, err := Decode(m, c.sol); err == nil {
			t.Fatalf("%s: expected decode error", c.name)
		}
	}
}

func TestForAlgorithm(t *testing.T) {
	if _, err := ForAlgorithm(""); err != nil {
		t.Fatalf("default algorithm: %v", err)
	}
	if _, err := ForAlgorithm(AlgoAnneal); err != nil {
		t.Fatalf("anneal: %v", err)
	}
	if _, err := ForAlgorithm("cplex"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}
