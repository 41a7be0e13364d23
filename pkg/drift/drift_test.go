package drift

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/store"
	"github.com/statecraft/statecraft/pkg/transport/fake"
)

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "statecraft.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCheckReportsNoDriftWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tr := fake.New().WithFile("/etc/app.conf", []byte("hello\n"), "0644", "root", "root")
	p := platform.Platform{System: "linux"}

	if err := st.UpsertResource(ctx, store.ResourceState{
		ID:          "file:/etc/app.conf",
		Type:        "file",
		ActualState: `{"exists":true,"type":"file","mode":"0644","owner":"root","group":"root","content":"hello\n"}`,
		Status:      store.StatusSuccess,
	}); err != nil {
		t.Fatalf("seed resource: %v", err)
	}

	d := New(st, tr, p)
	report, err := d.Check(ctx, "file:/etc/app.conf")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Drifted {
		t.Fatalf("expected no drift, got fields=%v", report.Fields)
	}
}

func TestCheckDetectsContentDrift(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tr := fake.New().WithFile("/etc/app.conf", []byte("changed\n"), "0644", "root", "root")
	p := platform.Platform{System: "linux"}

	if err := st.UpsertResource(ctx, store.ResourceState{
		ID:          "file:/etc/app.conf",
		Type:        "file",
		ActualState: `{"exists":true,"type":"file","mode":"0644","owner":"root","group":"root","content":"hello\n"}`,
		Status:      store.StatusSuccess,
	}); err != nil {
		t.Fatalf("seed resource: %v", err)
	}

	d := New(st, tr, p)
	report, err := d.Check(ctx, "file:/etc/app.conf")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.Drifted {
		t.Fatal("expected drift on content field")
	}
	fd, ok := report.Fields["content"]
	if !ok {
		t.Fatalf("expected content field drift, got %v", report.Fields)
	}
	if fd.Expected != "hello\n" || fd.Actual != "changed\n" {
		t.Fatalf("field drift = %+v", fd)
	}

	rs, err := st.GetResource(ctx, "file:/etc/app.conf")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if rs.Status != store.StatusDrift {
		t.Fatalf("status = %s, want drift", rs.Status)
	}
}

func TestCheckAllWalksEveryStoredResource(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tr := fake.New().
		WithFile("/etc/a.conf", []byte("a\n"), "0644", "root", "root").
		WithFile("/etc/b.conf", []byte("b\n"), "0644", "root", "root")
	p := platform.Platform{System: "linux"}

	for _, id := range []string{"file:/etc/a.conf", "file:/etc/b.conf"} {
		if err := st.UpsertResource(ctx, store.ResourceState{
			ID:          id,
			Type:        "file",
			ActualState: `{"exists":true,"type":"file","mode":"0644","owner":"root","group":"root"}`,
			Status:      store.StatusSuccess,
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	d := New(st, tr, p)
	reports, err := d.CheckAll(ctx)
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
}
