package usage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetInitializesFreeTier(t *testing.T) {
	svc := NewService()

	u, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Plan != PlanFree || u.Limit != 10 || u.Used != 0 {
		t.Fatalf("unexpected defaults: %+v", u)
	}
	if !u.ResetsAt.After(time.Now().UTC()) {
		t.Fatalf("resetsAt should be in the future, got %v", u.ResetsAt)
	}
}

func TestConsumeEnforcesLimit(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := svc.Consume(ctx, "user-1", 1); err != nil {
			t.Fatalf("Consume %d: %v", i, err)
		}
	}
	if _, err := svc.Consume(ctx, "user-1", 1); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}

	ok, u, err := svc.CanConsume(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("CanConsume: %v", err)
	}
	if ok {
		t.Fatalf("expected CanConsume false at limit, usage %+v", u)
	}
}

func TestResetClearsCounter(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	if _, err := svc.Consume(ctx, "user-1", 5); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	u, err := svc.Reset(ctx, "user-1")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if u.Used != 0 {
		t.Fatalf("expected used 0 after reset, got %d", u.Used)
	}
}

func TestSetPlanKeepsCounter(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	if _, err := svc.Consume(ctx, "user-1", 3); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	u, err := svc.SetPlan(ctx, "user-1", PlanStarter)
	if err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	if u.Plan != PlanStarter || u.Limit != 100 || u.Used != 3 {
		t.Fatalf("unexpected usage after upgrade: %+v", u)
	}

	// Downgrade keeps the counter too; enforcement happens on consume.
	u, err = svc.SetPlan(ctx, "user-1", PlanFree)
	if err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	if u.Limit != 10 || u.Used != 3 {
		t.Fatalf("unexpected usage after downgrade: %+v", u)
	}
}

func TestPlanLimit(t *testing.T) {
	cases := map[string]int{
		PlanFree:         10,
		PlanStarter:      100,
		PlanProfessional: 1000,
		"unknown":        10,
	}
	for plan, want := range cases {
		if got := PlanLimit(plan); got != want {
			t.Errorf("PlanLimit(%q) = %d, want %d", plan, got, want)
		}
	}
}
