// Package drift compares previously persisted resource state against a
// fresh observation to detect configuration drift, restricted to
// field-level comparison — no DAG or dependency-aware reconciliation.
package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/statecraft/statecraft/pkg/errs"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/resources/exec"
	"github.com/statecraft/statecraft/pkg/resources/file"
	pkgresource "github.com/statecraft/statecraft/pkg/resources/pkg"
	"github.com/statecraft/statecraft/pkg/resources/repository"
	"github.com/statecraft/statecraft/pkg/resources/service"
	"github.com/statecraft/statecraft/pkg/store"
	"github.com/statecraft/statecraft/pkg/transport"
)

// FieldDrift is one attribute whose stored and freshly-observed values
// disagree.
type FieldDrift struct {
	Expected interface{} `json:"expected"`
	Actual   interface{} `json:"actual"`
}

// Report is the outcome of comparing one stored resource against a fresh
// Check.
type Report struct {
	ResourceID string
	Drifted    bool
	DetectedAt time.Time
	Fields     map[string]FieldDrift
}

// Detector recreates a minimal resource instance per stored type+name,
// checks it against the current platform, and diffs the result against the
// last-persisted actual state.
type Detector struct {
	st        store.Store
	transport transport.Transport
	platform  platform.Platform
}

// New constructs a Detector bound to st for lookups and t/p for the fresh
// Check pass.
func New(st store.Store, t transport.Transport, p platform.Platform) *Detector {
	return &Detector{st: st, transport: t, platform: p}
}

// discard is a resource.Resource registerer that never actually registers;
// drift recreates resources purely to call Check, never Plan or Apply.
type discard struct{}

func (discard) Add(resource.Resource) {}

// Check recreates the stored resource by id, runs a fresh Check, and
// reports any field (other than "exists") that disagrees with the stored
// actual_state. If drift is found, the stored record's status is flipped
// to drift.
func (d *Detector) Check(ctx context.Context, id string) (Report, error) {
	rs, err := d.st.GetResource(ctx, id)
	if err != nil {
		return Report{}, errs.New(errs.ClassStateStore, "load resource for drift check", err).WithResource(id)
	}

	r, err := recreate(ctx, id, rs.Type)
	if err != nil {
		return Report{}, err
	}
	r.BindTransport(d.transport)

	fresh, err := r.Check(ctx, d.platform)
	if err != nil {
		return Report{}, errs.New(errs.ClassTransport, "check resource for drift", err).WithResource(id)
	}

	var stored resource.State
	if err := json.Unmarshal([]byte(rs.ActualState), &stored); err != nil {
		return Report{}, errs.New(errs.ClassStateStore, "parse stored actual_state", err).WithResource(id)
	}

	report := Report{ResourceID: id, DetectedAt: time.Now(), Fields: diffFields(stored, fresh)}
	report.Drifted = len(report.Fields) > 0

	if report.Drifted {
		rs.Status = store.StatusDrift
		rs.ActualState = canonicalJSON(fresh)
		if err := d.st.UpsertResource(ctx, rs); err != nil {
			return report, errs.New(errs.ClassStateStore, "persist drift status", err).WithResource(id)
		}
	}

	return report, nil
}

// CheckAll walks every stored resource and runs Check against each.
func (d *Detector) CheckAll(ctx context.Context) ([]Report, error) {
	resources, err := d.st.ListResources(ctx)
	if err != nil {
		return nil, errs.New(errs.ClassStateStore, "list resources for drift scan", err)
	}

	reports := make([]Report, 0, len(resources))
	for _, rs := range resources {
		report, err := d.Check(ctx, rs.ID)
		if err != nil {
			// A single resource's recreation/check failure does not abort
			// the sweep; it simply contributes no report for that id.
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// diffFields compares stored against fresh over the union of their keys,
// skipping "exists"; two values are equal when their JSON encodings match.
func diffFields(stored, fresh resource.State) map[string]FieldDrift {
	keys := make(map[string]bool)
	for k := range stored {
		keys[k] = true
	}
	for k := range fresh {
		keys[k] = true
	}
	delete(keys, "exists")

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make(map[string]FieldDrift)
	for _, k := range names {
		sv, fv := stored[k], fresh[k]
		if equalValues(sv, fv) {
			continue
		}
		out[k] = FieldDrift{Expected: sv, Actual: fv}
	}
	return out
}

func equalValues(a, b interface{}) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

func canonicalJSON(s resource.State) string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// recreate builds a minimal resource instance sufficient for Check, given
// only the stored type tag and name portion of id.
func recreate(ctx context.Context, id, typ string) (resource.Resource, error) {
	_, name, ok := strings.Cut(id, ":")
	if !ok {
		return nil, errs.New(errs.ClassValidation, "malformed resource id", fmt.Errorf("%q", id)).WithResource(id)
	}

	switch typ {
	case "file":
		return file.New(ctx, discard{}, file.Config{Path: name})
	case "pkg":
		return pkgresource.New(ctx, discard{}, pkgresource.Config{Packages: strings.Split(name, ",")})
	case "svc":
		return service.New(ctx, discard{}, service.Config{Name: name})
	case "exec":
		return exec.New(ctx, discard{}, exec.Config{Name: name, Command: "true"})
	case "repository":
		switch name {
		case "update":
			return repository.New(ctx, discard{}, repository.Config{Action: repository.ActionUpdate})
		case "upgrade":
			return repository.New(ctx, discard{}, repository.Config{Action: repository.ActionUpgrade})
		default:
			return repository.New(ctx, discard{}, repository.Config{Action: repository.ActionAdd, Filename: name, RepoLine: "drift-check placeholder"})
		}
	default:
		return nil, errs.New(errs.ClassValidation, "unknown resource type for drift recreation", fmt.Errorf("%q", typ)).WithResource(id)
	}
}
