package executor

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/statecraft/statecraft/pkg/drift"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/resources/file"
	pkgresource "github.com/statecraft/statecraft/pkg/resources/pkg"
	"github.com/statecraft/statecraft/pkg/resources/service"
	"github.com/statecraft/statecraft/pkg/store"
	"github.com/statecraft/statecraft/pkg/transport/fake"
)

func TestAddReplacesInPlacePreservingPosition(t *testing.T) {
	ctx := context.Background()
	ex := New(fake.New())
	ex.SetPlatform(platform.Platform{System: "linux", Distribution: "debian"})

	if _, err := pkgresource.New(ctx, ex, pkgresource.Config{Name: "nginx"}); err != nil {
		t.Fatalf("New nginx: %v", err)
	}
	if _, err := pkgresource.New(ctx, ex, pkgresource.Config{Name: "curl"}); err != nil {
		t.Fatalf("New curl: %v", err)
	}
	if ex.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ex.Len())
	}

	// Re-registering the same id (pkg:nginx) replaces in place rather than
	// appending, preserving declaration order.
	if _, err := pkgresource.New(ctx, ex, pkgresource.Config{Name: "nginx", Ensure: pkgresource.EnsureLatest}); err != nil {
		t.Fatalf("New nginx again: %v", err)
	}
	if ex.Len() != 2 {
		t.Fatalf("Len() after replace = %d, want 2 (last-writer-wins)", ex.Len())
	}

	pr := ex.Plan(ctx)
	if len(pr.Order) != 2 || pr.Order[0] != "pkg:nginx" || pr.Order[1] != "pkg:curl" {
		t.Fatalf("Order = %v, want [pkg:nginx pkg:curl] (position preserved)", pr.Order)
	}
}

func TestApplyOrderingFollowsRegistration(t *testing.T) {
	ctx := context.Background()
	tr := fake.New()
	tr.RespondPrefix("DEBIAN_FRONTEND=noninteractive apt-get install", "", 0)
	ex := New(tr)
	ex.SetPlatform(platform.Platform{System: "linux", Distribution: "debian"})

	names := []string{"a", "b", "c"}
	for _, n := range names {
		if _, err := pkgresource.New(ctx, ex, pkgresource.Config{Name: n}); err != nil {
			t.Fatalf("New %s: %v", n, err)
		}
	}

	pr := ex.Plan(ctx)
	if pr.HasErrors() {
		t.Fatalf("plan errors: %v", pr.Errors)
	}

	ar, err := ex.Apply(ctx, pr, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(ar.Changed) != 3 {
		t.Fatalf("changed = %v, want 3 entries", ar.Changed)
	}
	want := []string{"pkg:a", "pkg:b", "pkg:c"}
	for i, id := range want {
		if ar.Changed[i] != id {
			t.Fatalf("Changed[%d] = %s, want %s (apply must follow registration order)", i, ar.Changed[i], id)
		}
	}
}

func TestTriggerRestartTakesPrecedenceOverReload(t *testing.T) {
	ctx := context.Background()
	tr := fake.New()
	ex := New(tr)
	ex.SetPlatform(platform.Platform{System: "linux", Distribution: "debian"})

	running := true
	svc, err := service.New(ctx, ex, service.Config{
		Name:      "nginx",
		Running:   &running,
		ReloadOn:  []interface{}{"file:/etc/nginx/nginx.conf"},
		RestartOn: []interface{}{"file:/etc/nginx/nginx.conf"},
	})
	if err != nil {
		t.Fatalf("New service: %v", err)
	}
	_ = svc

	changed := map[string]bool{"file:/etc/nginx/nginx.conf": true}
	ex.fireTriggers(ctx, []resource.Resource{svc}, changed)

	restarted, reloaded := false, false
	for _, c := range tr.Calls {
		if c == "systemctl restart nginx" {
			restarted = true
		}
		if c == "systemctl reload nginx" {
			reloaded = true
		}
	}
	if !restarted {
		t.Fatalf("expected restart call, got calls=%v", tr.Calls)
	}
	if reloaded {
		t.Fatalf("reload should not fire when restart also matches, calls=%v", tr.Calls)
	}
}

func TestFailedValidationDoesNotRegister(t *testing.T) {
	ctx := context.Background()
	ex := New(fake.New())
	ex.SetPlatform(platform.Platform{System: "linux", Distribution: "debian"})

	before := ex.Len()
	// Exec construction is covered by pkg/resources/exec; here we only
	// assert that a failed registration (invalid Package config) never
	// touches the registry.
	if _, err := pkgresource.New(ctx, ex, pkgresource.Config{}); err == nil {
		t.Fatal("expected validation error for empty package config")
	}
	if ex.Len() != before {
		t.Fatalf("Len() changed after failed registration: before=%d after=%d", before, ex.Len())
	}
}

func TestApplyPersistsResourceStateAndHistory(t *testing.T) {
	ctx := context.Background()
	tr := fake.New()
	tr.RespondPrefix("DEBIAN_FRONTEND=noninteractive apt-get install", "", 0)
	ex := New(tr)
	ex.SetPlatform(platform.Platform{System: "linux", Distribution: "debian"})
	ex.User = "alice"

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "statecraft.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ex.AttachStore(st)

	if _, err := pkgresource.New(ctx, ex, pkgresource.Config{Name: "curl"}); err != nil {
		t.Fatalf("New curl: %v", err)
	}

	pr := ex.Plan(ctx)
	ar, err := ex.Apply(ctx, pr, ApplyOptions{Persist: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !ar.Success() {
		t.Fatalf("apply errors: %v", ar.Errors)
	}

	rs, err := st.GetResource(ctx, "pkg:curl")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if rs.Status != store.StatusSuccess {
		t.Fatalf("status = %s, want success", rs.Status)
	}
	if rs.AppliedBy != "alice" {
		t.Fatalf("applied_by = %s, want alice", rs.AppliedBy)
	}

	hist, err := st.ListHistory(ctx, "pkg:curl", 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history entries = %d, want 1", len(hist))
	}
}

func TestPersistStoresCheckedStateForConvergedResources(t *testing.T) {
	ctx := context.Background()
	// The target already matches desired state: the file exists with the
	// declared content. The resource manages content only, so its desired
	// state omits mode/owner/group — but Check still observes them, and it
	// is that full observation that must be persisted.
	tr := fake.New().WithFile("/etc/app.conf", []byte("hello\n"), "0644", "root", "root")
	p := platform.Platform{System: "linux", Distribution: "debian"}
	ex := New(tr)
	ex.SetPlatform(p)

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "statecraft.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ex.AttachStore(st)

	if _, err := file.New(ctx, ex, file.Config{Path: "/etc/app.conf", Content: "hello\n"}); err != nil {
		t.Fatalf("New file: %v", err)
	}

	pr := ex.Plan(ctx)
	if pr.HasErrors() {
		t.Fatalf("plan errors: %v", pr.Errors)
	}
	if plan := pr.Plans["file:/etc/app.conf"]; plan.Action != resource.ActionNone {
		t.Fatalf("action = %s, want none (already converged)", plan.Action)
	}

	ar, err := ex.Apply(ctx, pr, ApplyOptions{Persist: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(ar.Changed) != 0 {
		t.Fatalf("changed = %v, want none", ar.Changed)
	}

	rs, err := st.GetResource(ctx, "file:/etc/app.conf")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if rs.Status != store.StatusUnchanged {
		t.Fatalf("status = %s, want unchanged", rs.Status)
	}

	var stored resource.State
	if err := json.Unmarshal([]byte(rs.ActualState), &stored); err != nil {
		t.Fatalf("parse stored actual_state: %v", err)
	}
	for _, field := range []string{"mode", "owner", "group"} {
		if _, ok := stored[field]; !ok {
			t.Fatalf("stored actual_state missing observed field %q: %s", field, rs.ActualState)
		}
	}

	// With the full observation persisted, an untouched target shows no
	// drift on the unmanaged metadata fields.
	report, err := drift.New(st, tr, p).Check(ctx, "file:/etc/app.conf")
	if err != nil {
		t.Fatalf("drift check: %v", err)
	}
	if report.Drifted {
		t.Fatalf("spurious drift on converged resource: %v", report.Fields)
	}
}
