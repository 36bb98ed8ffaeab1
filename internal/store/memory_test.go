package store

import (
	"context"
	"fmt"
	"testing"

	"taskroute/internal/model"
)

func TestListPlansCursor(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		plan := model.Plan{ID: fmt.Sprintf("p%d", i), TenantID: "t1", Status: model.PlanSolved}
		if err := m.SavePlan(ctx, plan); err != nil {
			t.Fatalf("save p%d: %v", i, err)
		}
	}

	first, cursor, err := m.ListPlans(ctx, "t1", "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 || first[0].ID != "p1" || first[1].ID != "p2" {
		t.Fatalf("first page = %+v", first)
	}
	if cursor == "" {
		t.Fatal("expected a cursor for the next page")
	}

	second, next, err := m.ListPlans(ctx, "t1", cursor, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 1 || second[0].ID != "p3" {
		t.Fatalf("second page = %+v", second)
	}
	if next != "" {
		t.Fatalf("expected terminal empty cursor, got %q", next)
	}

	// Unknown cursor restarts from the beginning rather than erroring.
	restart, _, err := m.ListPlans(ctx, "t1", "nope", 10)
	if err != nil || len(restart) != 3 {
		t.Fatalf("unknown cursor: %v %+v", err, restart)
	}
}

func TestListPlansTenantScoped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.SavePlan(ctx, model.Plan{ID: "pa", TenantID: "t_a"})
	_ = m.SavePlan(ctx, model.Plan{ID: "pb", TenantID: "t_b"})

	plans, _, err := m.ListPlans(ctx, "t_a", "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(plans) != 1 || plans[0].ID != "pa" {
		t.Fatalf("t_a plans = %+v", plans)
	}
	if _, err := m.GetPlan(ctx, "t_b", "pa"); err != ErrNotFound {
		t.Fatalf("cross-tenant get: %v, want ErrNotFound", err)
	}
}

func TestListSubscriptionsCursor(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var ids []string
	for i := 1; i <= 3; i++ {
		sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
			TenantID: "t1",
			URL:      fmt.Sprintf("https://example.com/h%d", i),
			Events:   []string{"plan.completed"},
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, sub.ID)
	}

	first, cursor, err := m.ListSubscriptions(ctx, "t1", "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 || first[0].ID != ids[0] || first[1].ID != ids[1] {
		t.Fatalf("first page = %+v", first)
	}
	if cursor != ids[1] {
		t.Fatalf("cursor = %q, want %q", cursor, ids[1])
	}

	second, next, err := m.ListSubscriptions(ctx, "t1", cursor, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 1 || second[0].ID != ids[2] {
		t.Fatalf("second page = %+v", second)
	}
	if next != "" {
		t.Fatalf("expected terminal empty cursor, got %q", next)
	}
}
