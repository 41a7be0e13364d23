package resource

import (
	"context"
	"reflect"
	"sort"

	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/transport"
)

// Resource is the contract every managed resource type implements. The base
// plan algorithm in PlanResource() is defined once against this interface; resource
// types never implement their own diffing.
type Resource interface {
	// ID returns the globally unique "type:name" identifier.
	ID() string

	// ResourceType returns the short type tag (file, pkg, svc, exec, repository).
	ResourceType() string

	// Check performs a pure observation of current state. Must not mutate.
	Check(ctx context.Context, p platform.Platform) (State, error)

	// DesiredState returns the state derived from constructor arguments.
	// Must be deterministic.
	DesiredState() State

	// Apply performs the mutations implied by plan.
	Apply(ctx context.Context, plan Plan, p platform.Platform) error

	// BindTransport attaches the transport this resource will use for every
	// mutating and observing operation. Called once, at registration.
	BindTransport(t transport.Transport)
}

// PlanResource computes the per-resource plan shared by every resource type:
//  1. actual = r.Check(p), desired = r.DesiredState()
//  2. !a.Exists && d.Exists   -> create, changes = every desired attr but exists
//  3. a.Exists && !d.Exists   -> delete, changes = every actual attr but exists
//  4. !a.Exists && !d.Exists  -> none
//  5. a.Exists && d.Exists    -> update iff any attr differs, else none
//
// Equality is structural; absent/nil on both sides is equal.
func PlanResource(ctx context.Context, r Resource, p platform.Platform) (Plan, State, error) {
	actual, err := r.Check(ctx, p)
	if err != nil {
		return Plan{}, nil, err
	}
	desired := r.DesiredState()

	a := actual.Exists()
	d := desired.Exists()

	switch {
	case !a && d:
		return Plan{
			Action:  ActionCreate,
			Changes: changesFrom(nil, desired),
			Reason:  "resource does not exist and is desired",
		}, actual, nil

	case a && !d:
		return Plan{
			Action:  ActionDelete,
			Changes: changesFrom(actual, nil),
			Reason:  "resource exists and is no longer desired",
		}, actual, nil

	case !a && !d:
		return Plan{Action: ActionNone, Reason: "resource does not exist and is not desired"}, actual, nil

	default: // a && d
		changes := diff(actual, desired)
		if len(changes) == 0 {
			return Plan{Action: ActionNone, Reason: "actual state matches desired state"}, actual, nil
		}
		return Plan{
			Action:  ActionUpdate,
			Changes: changes,
			Reason:  "actual state differs from desired state",
		}, actual, nil
	}
}

// changesFrom builds the change list for a pure create (from==nil) or pure
// delete (to==nil) transition: every attribute of the non-nil side except
// "exists".
func changesFrom(from, to State) []Change {
	src := from
	if src == nil {
		src = to
	}
	keys := sortedKeys(src)
	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		if k == "exists" {
			continue
		}
		var fv, tv interface{}
		if from != nil {
			fv = from[k]
		}
		if to != nil {
			tv = to[k]
		}
		changes = append(changes, Change{Field: k, From: fv, To: tv})
	}
	return changes
}

// diff compares actual against desired, attribute by attribute, skipping
// "exists". Absent/nil on both sides counts as equal.
func diff(actual, desired State) []Change {
	keys := sortedKeys(desired)
	changes := make([]Change, 0)
	for _, k := range keys {
		if k == "exists" {
			continue
		}
		dv := desired[k]
		av := actual[k]
		if equalValues(av, dv) {
			continue
		}
		changes = append(changes, Change{Field: k, From: av, To: dv})
	}
	return changes
}

func equalValues(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if isZeroish(a) && isZeroish(b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isZeroish(v interface{}) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case map[string]string:
		return len(t) == 0
	}
	return false
}

func sortedKeys(s State) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
