package resource

import "context"

// Triggerable is implemented by resources that can react to another
// resource's change by reloading or restarting themselves — the Service
// resource, in practice. It lives here rather than in pkg/executor so
// both the executor and pkg/resources/service can depend on it without a
// package cycle.
type Triggerable interface {
	Resource

	// ShouldReload reports whether changed (a set of resource ids that
	// applied successfully this run) intersects this resource's reload
	// triggers.
	ShouldReload(changed map[string]bool) bool

	// ShouldRestart reports whether changed intersects this resource's
	// restart triggers. Callers must check ShouldRestart before
	// ShouldReload: restart takes precedence.
	ShouldRestart(changed map[string]bool) bool

	// Reload performs the reload action directly, bypassing plan/apply.
	Reload(ctx context.Context) error

	// Restart performs the restart action directly, bypassing plan/apply.
	Restart(ctx context.Context) error
}
