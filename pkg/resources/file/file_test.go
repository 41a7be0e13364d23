package file

import (
	"context"
	"testing"

	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/transport/fake"
)

type nopRegisterer struct{ added []resource.Resource }

func (r *nopRegisterer) Add(res resource.Resource) { r.added = append(r.added, res) }

func TestFileCreateThenIdempotent(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux", Distribution: "debian"}
	tr := fake.New()

	reg := &nopRegisterer{}
	f, err := New(ctx, reg, Config{Path: "/tmp/seed-a.txt", Content: "hi\n", Mode: "0644"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, f, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Action != resource.ActionCreate {
		t.Fatalf("action = %s, want create", plan.Action)
	}
	wantFields := map[string]bool{"type": false, "content": false, "mode": false}
	for _, c := range plan.Changes {
		if _, ok := wantFields[c.Field]; ok {
			wantFields[c.Field] = true
		}
	}
	for field, found := range wantFields {
		if !found {
			t.Errorf("missing change for field %q", field)
		}
	}

	if err := f.Apply(ctx, plan, p); err != nil {
		t.Fatalf("apply: %v", err)
	}

	data, err := tr.ReadFile(ctx, "/tmp/seed-a.txt")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hi\n" {
		t.Fatalf("content = %q, want %q", data, "hi\n")
	}

	plan2, _, err := resource.PlanResource(ctx, f, p)
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if plan2.Action != resource.ActionNone {
		t.Fatalf("second plan action = %s, want none (changes=%v)", plan2.Action, plan2.Changes)
	}
}

func TestFileDeleteWhenNotDesired(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	tr := fake.New().WithFile("/tmp/gone.txt", []byte("x"), "0644", "root", "root")

	reg := &nopRegisterer{}
	f, err := New(ctx, reg, Config{Path: "/tmp/gone.txt", Ensure: EnsureAbsent})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, f, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Action != resource.ActionDelete {
		t.Fatalf("action = %s, want delete", plan.Action)
	}
	if err := f.Apply(ctx, plan, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
	exists, _ := tr.FileExists(ctx, "/tmp/gone.txt")
	if exists {
		t.Fatal("file still exists after delete apply")
	}
}

func TestFileRejectsMultipleContentSources(t *testing.T) {
	_, err := build(Config{Path: "/tmp/x", Content: "a", Source: "/tmp/b"})
	if err == nil {
		t.Fatal("expected error for conflicting content sources")
	}
}

func TestFileDirectoryCreate(t *testing.T) {
	ctx := context.Background()
	p := platform.Platform{System: "linux"}
	tr := fake.New()
	reg := &nopRegisterer{}

	f, err := New(ctx, reg, Config{Path: "/tmp/newdir", Ensure: EnsureDirectory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.BindTransport(tr)

	plan, _, err := resource.PlanResource(ctx, f, p)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Action != resource.ActionCreate {
		t.Fatalf("action = %s, want create", plan.Action)
	}
	if err := f.Apply(ctx, plan, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
	exists, _ := tr.FileExists(ctx, "/tmp/newdir")
	if !exists {
		t.Fatal("directory was not created")
	}
}
