// Package pkgresource implements the Package resource: install, remove, and
// upgrade packages across the package manager selected from the probed
// platform. Manager dispatch operates over a list of packages per call,
// keyed off the platform probe's package family rather than per-package
// dpkg-query/rpm-query detection.
package pkgresource

import (
	"context"
	"fmt"
	"strings"

	"github.com/statecraft/statecraft/pkg/errs"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/validate"
)

// Ensure is the desired installation state.
type Ensure string

const (
	EnsurePresent Ensure = "present"
	EnsureAbsent  Ensure = "absent"
	EnsureLatest  Ensure = "latest"
)

// Config is the constructor input for a Package resource. Packages accepts
// either a single name or an explicit list; New normalizes to a list.
type Config struct {
	Name     string   // convenience for a single package
	Packages []string // explicit list; takes precedence over Name if both set
	Version  string   // optional, applies to single-package installs only
	Ensure   Ensure   `validate:"omitempty,oneof=present absent latest"`
}

// Registerer is the subset of *executor.Executor the constructor needs.
type Registerer interface {
	Add(resource.Resource)
}

// Package manages a set of packages through the platform's package manager.
type Package struct {
	resource.Base
	cfg      Config
	packages []string
}

// New constructs a Package resource and registers it with ex.
func New(ctx context.Context, ex Registerer, cfg Config) (*Package, error) {
	p, err := build(cfg)
	if err != nil {
		return nil, err
	}
	ex.Add(p)
	return p, nil
}

func build(cfg Config) (*Package, error) {
	if err := validate.Struct(cfg, "pkg:"+strings.Join(append([]string{cfg.Name}, cfg.Packages...), ",")); err != nil {
		return nil, err
	}
	packages := cfg.Packages
	if len(packages) == 0 && cfg.Name != "" {
		packages = []string{cfg.Name}
	}
	if len(packages) == 0 {
		return nil, errs.New(errs.ClassValidation, "package resource requires at least one package name", nil)
	}
	if cfg.Ensure == "" {
		cfg.Ensure = EnsurePresent
	}
	name := strings.Join(packages, ",")
	return &Package{Base: resource.NewBase("pkg", name), cfg: cfg, packages: packages}, nil
}

// DesiredState derives the desired per-package installed map.
func (p *Package) DesiredState() resource.State {
	if p.cfg.Ensure == EnsureAbsent {
		return resource.State{"exists": false}
	}
	installed := make(map[string]bool, len(p.packages))
	for _, name := range p.packages {
		installed[name] = true
	}
	s := resource.State{"exists": true, "installed": installed}
	if p.cfg.Version != "" {
		s["version"] = p.cfg.Version
	}
	return s
}

// Check asks the platform's manager for each package's installed version.
func (p *Package) Check(ctx context.Context, plat platform.Platform) (resource.State, error) {
	manager, err := managerFor(plat)
	if err != nil {
		return nil, errs.New(errs.ClassPlatformUnsupported, "no package manager for platform", err).WithResource(p.ID())
	}

	installed := make(map[string]bool, len(p.packages))
	versions := make(map[string]string, len(p.packages))
	allInstalled := true
	for _, name := range p.packages {
		ok, version, err := manager.queryInstalled(ctx, p.Transport, name)
		if err != nil {
			return nil, errs.New(errs.ClassTransport, "query package status", err).WithResource(p.ID()).WithOperation("check")
		}
		installed[name] = ok
		if ok {
			versions[name] = version
		} else {
			allInstalled = false
		}
	}

	state := resource.State{"exists": allInstalled, "installed": installed}
	if len(versions) > 0 {
		state["version"] = firstVersion(versions, p.packages)
	}
	return state, nil
}

// Apply dispatches install/remove/upgrade to the selected manager.
func (p *Package) Apply(ctx context.Context, plan resource.Plan, plat platform.Platform) error {
	manager, err := managerFor(plat)
	if err != nil {
		return errs.New(errs.ClassPlatformUnsupported, "no package manager for platform", err).WithResource(p.ID())
	}

	switch plan.Action {
	case resource.ActionDelete:
		return manager.remove(ctx, p.Transport, p.packages, p.ID())
	case resource.ActionCreate:
		return manager.install(ctx, p.Transport, p.packages, p.cfg.Version, p.ID())
	case resource.ActionUpdate:
		if p.cfg.Ensure == EnsureLatest {
			return manager.upgrade(ctx, p.Transport, p.packages, p.ID())
		}
		return manager.install(ctx, p.Transport, p.packages, p.cfg.Version, p.ID())
	}
	return nil
}

func firstVersion(versions map[string]string, order []string) string {
	for _, name := range order {
		if v, ok := versions[name]; ok {
			return v
		}
	}
	return ""
}

var _ resource.Resource = (*Package)(nil)

var errUnsupportedPlatform = fmt.Errorf("unsupported platform")
