// Package exec implements the Exec resource: arbitrary command execution
// gated by idempotence guards (creates/unless/only_if) and screened by
// pkg/secvalidate at construction time. Like Repository, its desired state
// is unconditionally "should not run"; a pending run surfaces through
// resource.ActionRemapper as resource.ActionRunnable rather than update.
package exec

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/statecraft/statecraft/pkg/errs"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/secvalidate"
	"github.com/statecraft/statecraft/pkg/shellquote"
	"github.com/statecraft/statecraft/pkg/telemetry"
	"github.com/statecraft/statecraft/pkg/validate"
)

// Config is the constructor input for an Exec resource.
type Config struct {
	Name    string `validate:"required"` // identifies this resource; does not have to match Command
	Command string `validate:"required"`

	Creates string // skip if this path exists
	Unless  string // skip if this command exits zero
	OnlyIf  string // run only if this command exits zero

	Cwd         string
	Environment map[string]string

	DryRun bool

	SafeMode       bool // true implies SecurityLevel = strict
	SecurityLevel  secvalidate.Level
	AllowPipes     bool
	AllowRedirects bool
}

// Registerer is the subset of *executor.Executor the constructor needs.
type Registerer interface {
	Add(resource.Resource)
}

// Exec runs one command line, subject to idempotence guards.
type Exec struct {
	resource.Base
	cfg Config
}

// New validates and security-screens cfg, then constructs and registers an
// Exec resource. A strict-mode security finding returns an error and the
// resource is never registered.
func New(ctx context.Context, ex Registerer, cfg Config) (*Exec, error) {
	e, err := build(cfg)
	if err != nil {
		return nil, err
	}
	ex.Add(e)
	return e, nil
}

func build(cfg Config) (*Exec, error) {
	id := "exec:" + cfg.Name
	if err := validate.Struct(cfg, id); err != nil {
		return nil, err
	}
	logger := telemetry.FromContext(context.Background()).WithResourceID(id)

	if cfg.SafeMode {
		cfg.SecurityLevel = secvalidate.LevelStrict
	} else {
		logger.Warn("safe_mode disabled: command is not screened for dangerous shell constructs")
	}
	if cfg.SecurityLevel == "" {
		cfg.SecurityLevel = secvalidate.LevelWarn
	}

	findings := secvalidate.Check(secvalidate.Options{
		Level:          cfg.SecurityLevel,
		AllowPipes:     cfg.AllowPipes,
		AllowRedirects: cfg.AllowRedirects,
	}, cfg.Command, cfg.Unless, cfg.OnlyIf, cfg.Cwd, cfg.Creates, cfg.Environment)

	if len(findings) > 0 {
		switch cfg.SecurityLevel {
		case secvalidate.LevelStrict:
			return nil, errs.New(errs.ClassSecurityViolation, "exec command failed security validation", &secvalidate.Violation{Findings: findings}).WithResource(id)
		case secvalidate.LevelWarn:
			for _, f := range findings {
				logger.WithField("field", f.Field).WithField("pattern", f.Pattern).WithField("match", f.Match).Warn("security validation finding")
			}
		}
	}

	return &Exec{Base: resource.NewBase("exec", cfg.Name), cfg: cfg}, nil
}

// DesiredState is unconditionally "should not run": every run this resource
// triggers is, from the planner's point of view, an unwanted drift away
// from quiescence. The guards in Check decide whether that drift exists.
func (e *Exec) DesiredState() resource.State {
	return resource.State{"exists": true, "should_run": false}
}

// Check evaluates the idempotence guards. When dry_run is set, the two
// command guards (unless/only_if) are skipped so a preview never invokes a
// side-effecting probe; the creates guard is a plain existence check and is
// honored even in a preview.
func (e *Exec) Check(ctx context.Context, p platform.Platform) (resource.State, error) {
	if e.cfg.Creates != "" {
		exists, err := e.Transport.FileExists(ctx, e.cfg.Creates)
		if err != nil {
			return nil, errs.New(errs.ClassTransport, "check creates path", err).WithResource(e.ID())
		}
		if exists {
			return resource.State{"exists": true, "should_run": false}, nil
		}
	}

	if e.cfg.DryRun {
		return resource.State{"exists": true, "should_run": true}, nil
	}

	if e.cfg.Unless != "" {
		_, code := e.Transport.RunShell(ctx, e.cfg.Unless)
		if code == 0 {
			return resource.State{"exists": true, "should_run": false}, nil
		}
	}

	if e.cfg.OnlyIf != "" {
		_, code := e.Transport.RunShell(ctx, e.cfg.OnlyIf)
		if code != 0 {
			return resource.State{"exists": true, "should_run": false}, nil
		}
	}

	return resource.State{"exists": true, "should_run": true}, nil
}

// Apply builds and runs the final command line. When dry_run is set, it
// logs the command it would have run and returns without executing it.
func (e *Exec) Apply(ctx context.Context, plan resource.Plan, p platform.Platform) error {
	line := e.buildCommand()
	logger := telemetry.FromContext(ctx).WithResourceID(e.ID())

	if e.cfg.DryRun {
		logger.WithField("command", line).Info("dry_run: command not executed")
		return nil
	}

	if !e.cfg.SafeMode {
		logger.Warn("executing with safe_mode disabled")
	}

	out, code := e.Transport.RunShell(ctx, line)
	if code != 0 {
		return errs.New(errs.ClassTransport, "exec command failed", fmt.Errorf("exit %d: %s", code, out)).WithResource(e.ID()).WithOperation("run")
	}
	return nil
}

// RemapAction replaces the shared planner's ActionUpdate with
// ActionRunnable, since this resource's desired_state is never really
// "updated" — it either runs this pass or it doesn't.
func (e *Exec) RemapAction(plan resource.Plan) resource.Plan {
	if plan.Action == resource.ActionUpdate {
		plan.Action = resource.ActionRunnable
	}
	return plan
}

// buildCommand renders the environment prefix and cwd wrapper around the
// configured command, using shell-safe quoting throughout.
func (e *Exec) buildCommand() string {
	var b strings.Builder

	if len(e.cfg.Environment) > 0 {
		keys := make([]string, 0, len(e.cfg.Environment))
		for k := range e.cfg.Environment {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(shellquote.Env(k, e.cfg.Environment[k]))
			b.WriteString(" ")
		}
	}

	if e.cfg.Cwd != "" {
		b.WriteString("cd ")
		b.WriteString(shellquote.Quote(e.cfg.Cwd))
		b.WriteString(" && ")
	}

	b.WriteString(e.cfg.Command)
	return b.String()
}

var _ resource.Resource = (*Exec)(nil)
var _ resource.ActionRemapper = (*Exec)(nil)
