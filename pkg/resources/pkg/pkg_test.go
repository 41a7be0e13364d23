package pkgresource

import (
	"context"
	"testing"

	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/transport/fake"
)

type nopRegisterer struct{}

func (nopRegisterer) Add(resource.Resource) {}

func TestPackageInstallOnDebian(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux", Distribution: "debian"}
	tr := fake.New()
	tr.RespondPrefix("dpkg-query", "", 1) // not installed
	tr.RespondPrefix("DEBIAN_FRONTEND=noninteractive apt-get install", "", 0)

	pkg, err := New(ctx, nopRegisterer{}, Config{Name: "nginx"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pkg.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, pkg, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Action != resource.ActionCreate {
		t.Fatalf("action = %s, want create", plan.Action)
	}
	if err := pkg.Apply(ctx, plan, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestPackageAlreadyPresentIsNone(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux", Distribution: "debian"}
	tr := fake.New()
	tr.RespondPrefix("dpkg-query", "1.2.3", 0)

	pkg, _ := New(ctx, nopRegisterer{}, Config{Name: "nginx"})
	pkg.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, pkg, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Action != resource.ActionNone {
		t.Fatalf("action = %s, want none", plan.Action)
	}
}

func TestPackageUnsupportedPlatform(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "plan9", Distribution: "unknown"}
	tr := fake.New()

	pkg, _ := New(ctx, nopRegisterer{}, Config{Name: "nginx"})
	pkg.BindTransport(tr)

	if _, _, err := resource.PlanResource(ctx, pkg, p); err == nil {
		t.Fatal("expected platform-unsupported error")
	}
}

func TestPackageRequiresName(t *testing.T) {
	if _, err := build(Config{}); err == nil {
		t.Fatal("expected validation error for empty package list")
	}
}
