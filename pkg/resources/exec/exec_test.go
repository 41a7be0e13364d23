package exec

import (
	"context"
	"testing"

	"github.com/statecraft/statecraft/pkg/errs"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/secvalidate"
	"github.com/statecraft/statecraft/pkg/transport/fake"
)

type nopRegisterer struct{ added []resource.Resource }

func (r *nopRegisterer) Add(res resource.Resource) { r.added = append(r.added, res) }

func TestExecRunsWhenGuardsAllow(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	tr := fake.New()

	reg := &nopRegisterer{}
	e, err := New(ctx, reg, Config{Name: "touch-marker", Command: "touch /tmp/marker", SafeMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, e, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plan = e.RemapAction(plan)
	if plan.Action != resource.ActionRunnable {
		t.Fatalf("action = %s, want runnable", plan.Action)
	}
	if err := e.Apply(ctx, plan, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
	found := false
	for _, c := range tr.Calls {
		if c == "touch /tmp/marker" {
			found = true
		}
	}
	if !found {
		t.Fatalf("command not run, calls=%v", tr.Calls)
	}
}

func TestExecSkipsWhenCreatesExists(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	tr := fake.New().WithFile("/tmp/already-there", []byte("x"), "0644", "root", "root")

	reg := &nopRegisterer{}
	e, err := New(ctx, reg, Config{Name: "skip-me", Command: "echo hi", Creates: "/tmp/already-there", SafeMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, e, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plan = e.RemapAction(plan)
	if plan.Action != resource.ActionNone {
		t.Fatalf("action = %s, want none", plan.Action)
	}
}

func TestExecSkipsWhenUnlessSucceeds(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	tr := fake.New()
	tr.RespondPrefix("test -f /tmp/sentinel", "", 0)

	reg := &nopRegisterer{}
	e, err := New(ctx, reg, Config{Name: "skip-unless", Command: "echo hi", Unless: "test -f /tmp/sentinel", SafeMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, e, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plan = e.RemapAction(plan)
	if plan.Action != resource.ActionNone {
		t.Fatalf("action = %s, want none", plan.Action)
	}
}

func TestExecDryRunSkipsGuardsDuringCheck(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	tr := fake.New()
	// If Check evaluated Unless, this would mark should_run false; dry_run
	// must skip the guard entirely so the preview never runs it.
	tr.RespondPrefix("true", "", 0)

	reg := &nopRegisterer{}
	e, err := New(ctx, reg, Config{Name: "dry", Command: "echo hi", Unless: "true", DryRun: true, SafeMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, e, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plan = e.RemapAction(plan)
	if plan.Action != resource.ActionRunnable {
		t.Fatalf("action = %s, want runnable", plan.Action)
	}
	if len(tr.Calls) != 0 {
		t.Fatalf("dry_run check invoked guard commands: %v", tr.Calls)
	}
	if err := e.Apply(ctx, plan, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(tr.Calls) != 0 {
		t.Fatalf("dry_run apply should not execute, calls=%v", tr.Calls)
	}
}

func TestExecDryRunStillHonorsCreatesGuard(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	tr := fake.New().WithFile("/tmp/already-there", []byte("x"), "0644", "root", "root")

	reg := &nopRegisterer{}
	e, err := New(ctx, reg, Config{Name: "dry-skip", Command: "echo hi", Creates: "/tmp/already-there", DryRun: true, SafeMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, e, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plan = e.RemapAction(plan)
	if plan.Action != resource.ActionNone {
		t.Fatalf("action = %s, want none (creates path exists, even in dry_run)", plan.Action)
	}
}

func TestExecStrictModeRejectsDangerousCommand(t *testing.T) {
	_, err := build(Config{
		Name:          "wipe",
		Command:       "rm -rf /",
		SecurityLevel: secvalidate.LevelStrict,
	})
	if err == nil {
		t.Fatal("expected security validation error")
	}
	if !errs.IsValidation(err) {
		t.Fatalf("expected a validation-class error, got %v", err)
	}
}

func TestExecSafeModeImpliesStrict(t *testing.T) {
	_, err := build(Config{
		Name:     "wipe2",
		Command:  "rm -rf /",
		SafeMode: true,
	})
	if err == nil {
		t.Fatal("expected safe_mode to imply strict and reject")
	}
}

func TestExecWarnModeRegistersDespiteFindings(t *testing.T) {
	e, err := build(Config{
		Name:          "chain",
		Command:       "echo a; echo b",
		SecurityLevel: secvalidate.LevelWarn,
	})
	if err != nil {
		t.Fatalf("expected warn-level finding to still register: %v", err)
	}
	if e == nil {
		t.Fatal("expected a constructed resource")
	}
}

func TestExecRejectsEmptyCommand(t *testing.T) {
	if _, err := build(Config{Name: "empty"}); err == nil {
		t.Fatal("expected validation error for empty command")
	}
}
