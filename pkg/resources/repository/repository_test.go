package repository

import (
	"context"
	"testing"

	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/transport/fake"
)

type nopRegisterer struct{}

func (nopRegisterer) Add(resource.Resource) {}

func TestRepositoryUpdateStaleRemapsToMaintenance(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux", Distribution: "debian"}
	tr := fake.New()
	// No cache stamp file present -> treated as stale.
	tr.RespondPrefix("DEBIAN_FRONTEND=noninteractive apt-get update", "", 0)

	r, err := New(ctx, nopRegisterer{}, Config{Action: ActionUpdate})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, r, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plan = r.RemapAction(plan)
	if plan.Action != resource.ActionMaintenance {
		t.Fatalf("action = %s, want maintenance", plan.Action)
	}
	if err := r.Apply(ctx, plan, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestRepositoryUpdateFreshIsNone(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux", Distribution: "debian"}
	tr := fake.New().WithFile(aptCacheStamp, []byte("x"), "0644", "root", "root")
	tr.RespondPrefix("stat -c %Y", "9999999999", 0) // far future mtime -> fresh
	tr.RespondPrefix("date +%s", "1000000000", 0)

	r, _ := New(ctx, nopRegisterer{}, Config{Action: ActionUpdate})
	r.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, r, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plan = r.RemapAction(plan)
	if plan.Action != resource.ActionNone {
		t.Fatalf("action = %s, want none", plan.Action)
	}
}

func TestRepositoryAddWritesDebianFragment(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux", Distribution: "debian", Version: "12", Codename: "bookworm"}
	tr := fake.New()

	r, err := New(ctx, nopRegisterer{}, Config{
		Action:   ActionAdd,
		RepoLine: "deb https://example.com/repo {distro_codename} main",
		Filename: "example",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, r, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Action != resource.ActionCreate {
		t.Fatalf("action = %s, want create", plan.Action)
	}
	if err := r.Apply(ctx, plan, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
	data, err := tr.ReadFile(ctx, aptFragmentDir+"/example.list")
	if err != nil {
		t.Fatalf("fragment not written: %v", err)
	}
	if got := string(data); got != "deb https://example.com/repo bookworm main\n" {
		t.Fatalf("fragment content = %q", got)
	}
}

func TestRepositoryRejectsAddWithoutSource(t *testing.T) {
	if _, err := build(Config{Action: ActionAdd}); err == nil {
		t.Fatal("expected validation error")
	}
}
