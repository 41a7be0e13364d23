package resource

import (
	"context"
	"reflect"
	"testing"

	"github.com/statecraft/statecraft/pkg/platform"
)

// stubResource lets tests drive PlanResource with fixed actual/desired
// states, with no transport behind it.
type stubResource struct {
	Base
	actual  State
	desired State
	checks  int
}

func newStub(actual, desired State) *stubResource {
	return &stubResource{Base: NewBase("stub", "s"), actual: actual, desired: desired}
}

func (s *stubResource) Check(ctx context.Context, p platform.Platform) (State, error) {
	s.checks++
	return s.actual, nil
}

func (s *stubResource) DesiredState() State { return s.desired }

func (s *stubResource) Apply(ctx context.Context, plan Plan, p platform.Platform) error { return nil }

var _ Resource = (*stubResource)(nil)

func TestPlanResourceActions(t *testing.T) {
	tests := []struct {
		name    string
		actual  State
		desired State
		action  Action
		changes int
	}{
		{
			"create when absent but desired",
			State{"exists": false},
			State{"exists": true, "content": "x", "mode": "0644"},
			ActionCreate, 2,
		},
		{
			"delete when present but unwanted",
			State{"exists": true, "content": "x"},
			State{"exists": false},
			ActionDelete, 1,
		},
		{
			"none when absent and unwanted",
			State{"exists": false},
			State{"exists": false},
			ActionNone, 0,
		},
		{
			"none when states agree",
			State{"exists": true, "content": "x"},
			State{"exists": true, "content": "x"},
			ActionNone, 0,
		},
		{
			"update on a differing attribute",
			State{"exists": true, "content": "x", "mode": "0644"},
			State{"exists": true, "content": "y", "mode": "0644"},
			ActionUpdate, 1,
		},
		{
			"absent and nil attributes are equal",
			State{"exists": true, "content": "x"},
			State{"exists": true, "content": "x", "owner": nil},
			ActionNone, 0,
		},
	}

	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, _, err := PlanResource(ctx, newStub(tt.actual, tt.desired), p)
			if err != nil {
				t.Fatalf("PlanResource: %v", err)
			}
			if plan.Action != tt.action {
				t.Fatalf("action = %s, want %s (changes=%v)", plan.Action, tt.action, plan.Changes)
			}
			if len(plan.Changes) != tt.changes {
				t.Fatalf("changes = %v, want %d entries", plan.Changes, tt.changes)
			}
			if (plan.Action == ActionNone) != (len(plan.Changes) == 0) {
				t.Fatalf("action/changes invariant broken: %s with %v", plan.Action, plan.Changes)
			}
		})
	}
}

func TestPlanResourceIsPure(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	r := newStub(
		State{"exists": true, "content": "x"},
		State{"exists": true, "content": "y"},
	)

	first, _, err := PlanResource(ctx, r, p)
	if err != nil {
		t.Fatalf("first plan: %v", err)
	}
	second, _, err := PlanResource(ctx, r, p)
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}

	if first.Action != second.Action || !reflect.DeepEqual(first.Changes, second.Changes) {
		t.Fatalf("repeated planning diverged: %+v vs %+v", first, second)
	}
	if r.checks != 2 {
		t.Fatalf("Check calls = %d, want exactly one per plan", r.checks)
	}
}

func TestChangeOrderingIsDeterministic(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	r := newStub(
		State{"exists": false},
		State{"exists": true, "mode": "0644", "content": "x", "owner": "root"},
	)

	plan, _, err := PlanResource(ctx, r, p)
	if err != nil {
		t.Fatalf("PlanResource: %v", err)
	}
	want := []string{"content", "mode", "owner"}
	if len(plan.Changes) != len(want) {
		t.Fatalf("changes = %v", plan.Changes)
	}
	for i, field := range want {
		if plan.Changes[i].Field != field {
			t.Fatalf("Changes[%d].Field = %s, want %s (sorted key order)", i, plan.Changes[i].Field, field)
		}
	}
}
