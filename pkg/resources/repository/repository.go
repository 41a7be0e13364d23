// Package repository implements the Repository resource: package-manager
// source management (update, upgrade, add) across apt/dnf/pacman/brew.
// Update/upgrade declare a "desired-false" state (the cache should never
// need refreshing) so a stale cache surfaces as a change; that change is
// reported as a distinct resource.ActionMaintenance value via
// resource.ActionRemapper rather than overloading ActionUpdate.
package repository

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/statecraft/statecraft/pkg/errs"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/shellquote"
	"github.com/statecraft/statecraft/pkg/validate"
)

// Action is which of the three Repository operations this resource performs.
type Action string

const (
	ActionUpdate  Action = "update"
	ActionUpgrade Action = "upgrade"
	ActionAdd     Action = "add"
)

// Ensure is the desired state for an Add repository.
type Ensure string

const (
	EnsurePresent Ensure = "present"
	EnsureAbsent  Ensure = "absent"
)

// freshnessThreshold is how stale the package cache must be before Check
// reports needs_update: true.
const freshnessThreshold = time.Hour

// Config is the constructor input. Action selects which of update/upgrade/
// add this resource performs; the Add-only fields are ignored otherwise.
type Config struct {
	Action Action `validate:"required,oneof=update upgrade add"`

	// Add-only fields.
	RepoLine  string // Debian-style "deb https://... {distro_codename} main"
	PPA       string // "ppa:user/name" shorthand
	Tap       string // macOS brew tap name
	KeyURL    string
	KeyID     string
	KeyServer string
	Filename  string // sources fragment basename, without extension
	Ensure    Ensure `validate:"omitempty,oneof=present absent"`
}

// Registerer is the subset of *executor.Executor the constructor needs.
type Registerer interface {
	Add(resource.Resource)
}

// Repository manages package-manager sources and cache/upgrade actions.
type Repository struct {
	resource.Base
	cfg Config
}

// New constructs a Repository resource and registers it with ex.
func New(ctx context.Context, ex Registerer, cfg Config) (*Repository, error) {
	r, err := build(cfg)
	if err != nil {
		return nil, err
	}
	ex.Add(r)
	return r, nil
}

func build(cfg Config) (*Repository, error) {
	if err := validate.Struct(cfg, "repository:"+name(cfg)); err != nil {
		return nil, err
	}
	switch cfg.Action {
	case ActionUpdate, ActionUpgrade:
		// no further validation: these are machine-wide operations
	case ActionAdd:
		if cfg.RepoLine == "" && cfg.PPA == "" && cfg.Tap == "" {
			return nil, errs.New(errs.ClassValidation, "repository add requires repo_line, ppa, or tap", nil)
		}
		if cfg.Ensure == "" {
			cfg.Ensure = EnsurePresent
		}
	}
	return &Repository{Base: resource.NewBase("repository", name(cfg)), cfg: cfg}, nil
}

func name(cfg Config) string {
	switch cfg.Action {
	case ActionUpdate:
		return "update"
	case ActionUpgrade:
		return "upgrade"
	default:
		switch {
		case cfg.Filename != "":
			return cfg.Filename
		case cfg.PPA != "":
			return cfg.PPA
		case cfg.Tap != "":
			return cfg.Tap
		default:
			return fmt.Sprintf("repo-%x", sha256.Sum256([]byte(cfg.RepoLine)))[:12]
		}
	}
}

// DesiredState carries the "desired-false" trick for update/upgrade: the
// maintenance operation is only "desired" in the sense that the cache
// should not be stale, so desired unconditionally says false. Add behaves
// like every other resource: exists iff Ensure is present.
func (r *Repository) DesiredState() resource.State {
	switch r.cfg.Action {
	case ActionUpdate:
		return resource.State{"exists": true, "needs_update": false}
	case ActionUpgrade:
		return resource.State{"exists": true, "needs_upgrade": false}
	default:
		return resource.State{"exists": r.cfg.Ensure != EnsureAbsent}
	}
}

// Check reads cache freshness, upgradable count, or fragment existence
// depending on Action.
func (r *Repository) Check(ctx context.Context, p platform.Platform) (resource.State, error) {
	mgr, err := managerFor(p)
	if err != nil {
		return nil, errs.New(errs.ClassPlatformUnsupported, "no package manager for platform", err).WithResource(r.ID())
	}

	switch r.cfg.Action {
	case ActionUpdate:
		stale, err := mgr.cacheStale(ctx, r.Transport, freshnessThreshold)
		if err != nil {
			return nil, errs.New(errs.ClassTransport, "check cache freshness", err).WithResource(r.ID())
		}
		return resource.State{"exists": true, "needs_update": stale}, nil

	case ActionUpgrade:
		n, err := mgr.upgradableCount(ctx, r.Transport)
		if err != nil {
			return nil, errs.New(errs.ClassTransport, "check upgradable count", err).WithResource(r.ID())
		}
		return resource.State{"exists": true, "needs_upgrade": n > 0}, nil

	default: // ActionAdd
		exists, err := mgr.sourceExists(ctx, r.Transport, r)
		if err != nil {
			return nil, errs.New(errs.ClassTransport, "check repository source", err).WithResource(r.ID())
		}
		return resource.State{"exists": exists}, nil
	}
}

// Apply ignores plan.Action for update/upgrade — this resource decides from
// its own Config.Action, not the remapped plan action — and issues the
// cache-refresh or upgrade-all command; for add it writes or removes the
// source.
func (r *Repository) Apply(ctx context.Context, plan resource.Plan, p platform.Platform) error {
	mgr, err := managerFor(p)
	if err != nil {
		return errs.New(errs.ClassPlatformUnsupported, "no package manager for platform", err).WithResource(r.ID())
	}

	switch r.cfg.Action {
	case ActionUpdate:
		return mgr.update(ctx, r.Transport, r.ID())
	case ActionUpgrade:
		return mgr.upgradeAll(ctx, r.Transport, r.ID())
	default:
		if plan.Action == resource.ActionDelete {
			return mgr.removeSource(ctx, r.Transport, r)
		}
		return mgr.addSource(ctx, r.Transport, r, p)
	}
}

// RemapAction replaces the shared planner's ActionUpdate with the
// maintenance action for update/upgrade resources.
func (r *Repository) RemapAction(plan resource.Plan) resource.Plan {
	if r.cfg.Action != ActionUpdate && r.cfg.Action != ActionUpgrade {
		return plan
	}
	if plan.Action == resource.ActionUpdate {
		plan.Action = resource.ActionMaintenance
	}
	return plan
}

func quotedPath(path string) string {
	return shellquote.Quote(path)
}

func parseEpoch(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

var _ resource.Resource = (*Repository)(nil)
var _ resource.ActionRemapper = (*Repository)(nil)
