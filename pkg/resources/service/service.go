// Package service implements the Service resource: start/stop/enable/
// disable/reload/restart against systemd on Linux and launchctl on macOS,
// dispatching between the two managers and exposing the reload/restart
// trigger predicates the executor's trigger pass calls.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/statecraft/statecraft/pkg/errs"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/validate"
)

// Registerer is the subset of *executor.Executor the constructor needs.
type Registerer interface {
	Add(resource.Resource)
}

// Config is the constructor input for a Service resource. Running and
// Enabled are tri-state: nil means "don't manage this field." ReloadOn and
// RestartOn each accept a mix of resource ids (string) and resource.Resource
// values; both are normalized to ids at construction.
type Config struct {
	Name      string `validate:"required"`
	Running   *bool
	Enabled   *bool
	ReloadOn  []interface{}
	RestartOn []interface{}
}

// Service manages one system service's running/enabled state and exposes
// the reload/restart trigger predicates the executor's apply pass uses.
type Service struct {
	resource.Base
	cfg        Config
	reloadOn   map[string]bool
	restartOn  map[string]bool
	lastSystem string
}

// New constructs a Service resource and registers it with ex.
func New(ctx context.Context, ex Registerer, cfg Config) (*Service, error) {
	s, err := build(cfg)
	if err != nil {
		return nil, err
	}
	ex.Add(s)
	return s, nil
}

func build(cfg Config) (*Service, error) {
	if err := validate.Struct(cfg, "svc:"+cfg.Name); err != nil {
		return nil, err
	}
	reloadOn, err := normalizeTriggers(cfg.ReloadOn)
	if err != nil {
		return nil, errs.New(errs.ClassValidation, "invalid reload_on entry", err).WithResource("svc:" + cfg.Name)
	}
	restartOn, err := normalizeTriggers(cfg.RestartOn)
	if err != nil {
		return nil, errs.New(errs.ClassValidation, "invalid restart_on entry", err).WithResource("svc:" + cfg.Name)
	}
	return &Service{
		Base:      resource.NewBase("svc", cfg.Name),
		cfg:       cfg,
		reloadOn:  toSet(reloadOn),
		restartOn: toSet(restartOn),
	}, nil
}

// normalizeTriggers reduces a mixed list of ids and resource.Resource
// values to a plain id list, so all downstream code works with strings.
func normalizeTriggers(items []interface{}) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			ids = append(ids, v)
		case resource.Resource:
			ids = append(ids, v.ID())
		default:
			return nil, fmt.Errorf("trigger entry must be a resource id or resource.Resource, got %T", item)
		}
	}
	return ids, nil
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// DesiredState carries only the fields the constructor actually set.
func (s *Service) DesiredState() resource.State {
	state := resource.State{"exists": true}
	if s.cfg.Running != nil {
		state["running"] = *s.cfg.Running
	}
	if s.cfg.Enabled != nil {
		state["enabled"] = *s.cfg.Enabled
	}
	return state
}

// Check queries the service manager for the probed platform.
func (s *Service) Check(ctx context.Context, p platform.Platform) (resource.State, error) {
	s.lastSystem = p.System
	switch p.System {
	case "linux":
		return s.checkSystemd(ctx)
	case "darwin":
		return s.checkLaunchctl(ctx)
	default:
		return resource.State{"exists": true}, nil
	}
}

func (s *Service) checkSystemd(ctx context.Context) (resource.State, error) {
	activeOut, _ := s.Transport.RunShell(ctx, "systemctl is-active "+s.cfg.Name)
	enabledOut, _ := s.Transport.RunShell(ctx, "systemctl is-enabled "+s.cfg.Name)
	return resource.State{
		"exists":  true,
		"running": strings.TrimSpace(activeOut) == "active",
		"enabled": strings.TrimSpace(enabledOut) == "enabled",
	}, nil
}

func (s *Service) checkLaunchctl(ctx context.Context) (resource.State, error) {
	out, code := s.Transport.RunShell(ctx, "launchctl list "+s.cfg.Name)
	return resource.State{
		"exists":  true,
		"running": code == 0 && !strings.Contains(out, "Could not find"),
	}, nil
}

// Apply mutates only the fields the plan says differ.
func (s *Service) Apply(ctx context.Context, plan resource.Plan, p platform.Platform) error {
	for _, c := range plan.Changes {
		switch c.Field {
		case "running":
			want, _ := c.To.(bool)
			if want {
				if err := s.start(ctx, p); err != nil {
					return err
				}
			} else if err := s.stop(ctx, p); err != nil {
				return err
			}
		case "enabled":
			want, _ := c.To.(bool)
			if want {
				if err := s.enable(ctx, p); err != nil {
					return err
				}
			} else if err := s.disable(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) ctl(p platform.Platform) string {
	if p.System == "darwin" {
		return "launchctl"
	}
	return "systemctl"
}

func (s *Service) run(ctx context.Context, verb, resourceOp string, p platform.Platform) error {
	line := fmt.Sprintf("%s %s %s", s.ctl(p), verb, s.cfg.Name)
	if out, code := s.Transport.RunShell(ctx, line); code != 0 {
		return errs.New(errs.ClassTransport, resourceOp+" service", fmt.Errorf("exit %d: %s", code, out)).WithResource(s.ID()).WithOperation(resourceOp)
	}
	return nil
}

func (s *Service) start(ctx context.Context, p platform.Platform) error   { return s.run(ctx, "start", "start", p) }
func (s *Service) stop(ctx context.Context, p platform.Platform) error    { return s.run(ctx, "stop", "stop", p) }
func (s *Service) enable(ctx context.Context, p platform.Platform) error  { return s.run(ctx, "enable", "enable", p) }
func (s *Service) disable(ctx context.Context, p platform.Platform) error { return s.run(ctx, "disable", "disable", p) }

// ShouldReload reports whether changed intersects this service's reload
// triggers.
func (s *Service) ShouldReload(changed map[string]bool) bool {
	return intersects(s.reloadOn, changed)
}

// ShouldRestart reports whether changed intersects this service's restart
// triggers. Callers must check this before ShouldReload: restart takes
// precedence.
func (s *Service) ShouldRestart(changed map[string]bool) bool {
	return intersects(s.restartOn, changed)
}

func intersects(set, changed map[string]bool) bool {
	for id := range changed {
		if set[id] {
			return true
		}
	}
	return false
}

// Reload performs the reload action directly, bypassing plan/apply.
func (s *Service) Reload(ctx context.Context) error {
	return s.run(ctx, "reload", "reload", platform.Platform{System: s.systemHint()})
}

// Restart performs the restart action directly, bypassing plan/apply.
func (s *Service) Restart(ctx context.Context) error {
	return s.run(ctx, "restart", "restart", platform.Platform{System: s.systemHint()})
}

// systemHint lets Reload/Restart pick systemctl vs launchctl without a
// platform argument, by remembering the last Check's system. Defaults to
// "linux" (systemctl) if Check has not run yet.
func (s *Service) systemHint() string {
	if s.lastSystem != "" {
		return s.lastSystem
	}
	return "linux"
}

var _ resource.Resource = (*Service)(nil)
var _ resource.Triggerable = (*Service)(nil)
