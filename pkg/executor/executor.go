// Package executor owns the ordered resource registry and drives the
// Check→Plan→Apply pipeline with a straight-line ordering and registration
// scheme: no dependency graph, no worker pool. Resources run strictly in
// registration order, and a failed apply does not roll back or stop the
// pass; later resources still run and the failure is carried in the result.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/statecraft/statecraft/pkg/errs"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/policy"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/store"
	"github.com/statecraft/statecraft/pkg/telemetry"
	"github.com/statecraft/statecraft/pkg/transport"
)

// ErrPolicyDenied is returned by Apply when an attached policy engine
// reports an error- or critical-severity violation. No resource is touched.
var ErrPolicyDenied = fmt.Errorf("apply denied by policy")

// Executor owns the ordered resource list, the id→position index, the
// bound transport, and the cached platform probe.
type Executor struct {
	mu sync.Mutex

	transport transport.Transport
	platform  platform.Platform

	resources []resource.Resource
	index     map[string]int

	policyEngine *policy.Engine
	store        store.Store

	// ConfigFile and User are recorded into persisted state/history rows.
	ConfigFile string
	User       string
}

// New constructs an Executor bound to t. Probe the target separately with
// SetPlatform or Probe before calling Plan.
func New(t transport.Transport) *Executor {
	return &Executor{
		transport: t,
		index:     make(map[string]int),
	}
}

// SetPlatform sets the cached platform probe used for every Check/Apply
// call this run.
func (e *Executor) SetPlatform(p platform.Platform) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.platform = p
}

// Probe runs platform.Probe against the bound transport and caches the
// result.
func (e *Executor) Probe(ctx context.Context) platform.Platform {
	p := platform.Probe(ctx, e.transport)
	e.SetPlatform(p)
	return p
}

// Platform returns the cached platform probe.
func (e *Executor) Platform() platform.Platform {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.platform
}

// Transport returns the bound transport, so collaborators like the drift
// detector can reuse it without duplicating connection setup.
func (e *Executor) Transport() transport.Transport {
	return e.transport
}

// AttachPolicy enables the optional Rego policy gate evaluated before Apply.
func (e *Executor) AttachPolicy(eng *policy.Engine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policyEngine = eng
}

// AttachStore enables optional state persistence after Apply.
func (e *Executor) AttachStore(s store.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = s
}

// Add registers r, binding its transport, and upserts it into the ordered
// list: a resource with an id already present replaces it in place,
// preserving its original declaration position (last-writer-wins).
func (e *Executor) Add(r resource.Resource) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r.BindTransport(e.transport)

	id := r.ID()
	if pos, ok := e.index[id]; ok {
		e.resources[pos] = r
		return
	}
	e.index[id] = len(e.resources)
	e.resources = append(e.resources, r)
}

// Len returns the number of registered resources.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.resources)
}

// Plan iterates every registered resource in declaration order, computing
// its per-resource plan. A resource's failure becomes a planning error and
// does not abort the pass.
func (e *Executor) Plan(ctx context.Context) *resource.PlanResult {
	e.mu.Lock()
	resources := append([]resource.Resource(nil), e.resources...)
	p := e.platform
	e.mu.Unlock()

	pr := resource.NewPlanResult()
	for _, r := range resources {
		id := r.ID()
		pr.Order = append(pr.Order, id)

		plan, actual, err := resource.PlanResource(ctx, r, p)
		if err != nil {
			pr.Errors[id] = err
			continue
		}
		if remapper, ok := r.(resource.ActionRemapper); ok {
			plan = remapper.RemapAction(plan)
		}
		pr.Plans[id] = plan
		pr.Actuals[id] = actual
	}
	return pr
}

// ApplyOptions carries the run metadata recorded alongside persisted state.
type ApplyOptions struct {
	Persist bool
	Policy  policy.Context
}

// Apply mutates every resource whose plan has a non-none action, in
// declaration order. A failure is recorded and the pass continues. After
// the resource pass, services whose restart_on/reload_on intersect the
// changed set are restarted or reloaded (restart wins), then, if
// persistence is enabled, state and history are written.
func (e *Executor) Apply(ctx context.Context, pr *resource.PlanResult, opts ApplyOptions) (*resource.ApplyResult, error) {
	start := time.Now()

	e.mu.Lock()
	resources := append([]resource.Resource(nil), e.resources...)
	p := e.platform
	policyEngine := e.policyEngine
	st := e.store
	e.mu.Unlock()

	if policyEngine != nil {
		result, err := policyEngine.EvaluatePlan(ctx, pr, opts.Policy)
		if err != nil {
			return nil, errs.New(errs.ClassValidation, "evaluate policy", err)
		}
		if !result.Allowed {
			return nil, ErrPolicyDenied
		}
	}

	logger := telemetry.FromContext(ctx)
	ar := resource.NewApplyResult()
	changed := make(map[string]bool)

	// Start from the state each Check observed during planning; resources
	// that actually change are re-checked below and overwrite their entry.
	actualByID := make(map[string]resource.State, len(resources))
	for id, actual := range pr.Actuals {
		actualByID[id] = actual
	}

	for _, r := range resources {
		id := r.ID()
		plan, ok := pr.Plans[id]
		if !ok || !plan.HasChanges() {
			continue
		}

		if err := r.Apply(ctx, plan, p); err != nil {
			ar.Errors[id] = err
			logger.WithResourceID(id).WithError(err).Error("apply failed")
			continue
		}

		ar.Changed = append(ar.Changed, id)
		changed[id] = true

		actual, checkErr := r.Check(ctx, p)
		if checkErr != nil {
			logger.WithResourceID(id).WithError(checkErr).Warn("refresh check after apply failed")
		} else {
			actualByID[id] = actual
		}
	}

	e.fireTriggers(ctx, resources, changed)

	ar.Duration = time.Since(start)

	if opts.Persist && st != nil {
		e.persist(ctx, st, resources, pr, ar, actualByID)
	}

	return ar, nil
}

// fireTriggers walks every Triggerable resource once, restarting in
// preference to reloading when both trigger lists intersect the changed set.
func (e *Executor) fireTriggers(ctx context.Context, resources []resource.Resource, changed map[string]bool) {
	logger := telemetry.FromContext(ctx)
	for _, r := range resources {
		t, ok := r.(resource.Triggerable)
		if !ok {
			continue
		}
		switch {
		case t.ShouldRestart(changed):
			if err := t.Restart(ctx); err != nil {
				logger.WithResourceID(r.ID()).WithError(err).Warn("restart trigger failed")
			}
		case t.ShouldReload(changed):
			if err := t.Reload(ctx); err != nil {
				logger.WithResourceID(r.ID()).WithError(err).Warn("reload trigger failed")
			}
		}
	}
}

// persist writes a ResourceState row per resource and a HistoryEntry for
// each resource whose plan carried changes. State-store failures are
// logged, never surfaced as apply failures.
func (e *Executor) persist(ctx context.Context, st store.Store, resources []resource.Resource, pr *resource.PlanResult, ar *resource.ApplyResult, actualByID map[string]resource.State) {
	logger := telemetry.FromContext(ctx)
	hostname, _ := os.Hostname()
	now := time.Now()

	for _, r := range resources {
		id := r.ID()
		plan, hasPlan := pr.Plans[id]

		status := store.StatusUnchanged
		applyErr, failed := ar.Errors[id]
		switch {
		case failed:
			status = store.StatusFailed
		case hasPlan && plan.HasChanges():
			status = store.StatusSuccess
		}

		desired := canonicalJSON(r.DesiredState())
		// The planning Check (or the refresh after apply) is the source of
		// truth for actual state; desired is only a stand-in when no check
		// ever completed for this resource (its plan errored).
		actual := desired
		if a, ok := actualByID[id]; ok {
			actual = canonicalJSON(a)
		}

		rs := store.ResourceState{
			ID:           id,
			Type:         r.ResourceType(),
			DesiredState: desired,
			ActualState:  actual,
			AppliedAt:    now,
			AppliedBy:    e.User,
			Hostname:     hostname,
			ConfigFile:   e.ConfigFile,
			Status:       status,
		}
		if err := st.UpsertResource(ctx, rs); err != nil {
			logger.WithResourceID(id).WithError(err).Warn("persist resource state failed")
		}

		if hasPlan && plan.HasChanges() {
			h := store.HistoryEntry{
				Timestamp:  now,
				ResourceID: id,
				Action:     string(plan.Action),
				User:       e.User,
				Hostname:   hostname,
				Success:    !failed,
				Changes:    canonicalChanges(plan.Changes),
			}
			if failed {
				h.Error = applyErr.Error()
			}
			if err := st.AppendHistory(ctx, h); err != nil {
				logger.WithResourceID(id).WithError(err).Warn("append history failed")
			}
		}
	}
}

func canonicalJSON(s resource.State) string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func canonicalChanges(changes []resource.Change) string {
	b, err := json.Marshal(changes)
	if err != nil {
		return "[]"
	}
	return string(b)
}

var (
	defaultMu sync.Mutex
	defaultEx *Executor
)

// Default returns the process-wide executor singleton, so resource
// constructors can register against executor.Default() without an
// explicit handle threaded through a configuration script. It is nil until
// SetDefault is called.
func Default() *Executor {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultEx
}

// SetDefault installs e as the process-wide executor singleton.
func SetDefault(e *Executor) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEx = e
}

// ResetDefault clears the singleton; tests call this between cases so one
// test's resources never leak into another's registry.
func ResetDefault() {
	SetDefault(nil)
}
