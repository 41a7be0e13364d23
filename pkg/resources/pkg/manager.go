package pkgresource

import (
	"context"
	"fmt"
	"strings"

	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/shellquote"
	"github.com/statecraft/statecraft/pkg/transport"
)

// manager is the per-family package manager dispatch: query/install/
// remove/upgrade, each built from one or more shell commands run through
// the resource's transport.
type manager struct {
	queryInstalled func(ctx context.Context, t transport.Transport, name string) (installed bool, version string, err error)
	install        func(ctx context.Context, t transport.Transport, names []string, version, resourceID string) error
	remove         func(ctx context.Context, t transport.Transport, names []string, resourceID string) error
	upgrade        func(ctx context.Context, t transport.Transport, names []string, resourceID string) error
}

// managerFor selects the package manager for the probed platform's family.
func managerFor(p platform.Platform) (*manager, error) {
	switch p.PackageFamily() {
	case "debian":
		return aptManager, nil
	case "rhel":
		return dnfManager, nil
	case "arch":
		return pacmanManager, nil
	case "darwin":
		return brewManager, nil
	default:
		return nil, fmt.Errorf("%w: %s/%s", errUnsupportedPlatform, p.System, p.Distribution)
	}
}

var aptManager = &manager{
	queryInstalled: func(ctx context.Context, t transport.Transport, name string) (bool, string, error) {
		out, code := t.RunShell(ctx, fmt.Sprintf("dpkg-query -W -f='${Version}' %s 2>/dev/null", shellquote.Quote(name)))
		if code != 0 {
			return false, "", nil
		}
		return true, strings.TrimSpace(out), nil
	},
	install: func(ctx context.Context, t transport.Transport, names []string, version, resourceID string) error {
		spec := names
		if version != "" && len(names) == 1 {
			spec = []string{fmt.Sprintf("%s=%s", names[0], version)}
		}
		return runOrFail(ctx, t, resourceID, "install", "DEBIAN_FRONTEND=noninteractive apt-get install -y "+quoteAll(spec))
	},
	remove: func(ctx context.Context, t transport.Transport, names []string, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "remove", "DEBIAN_FRONTEND=noninteractive apt-get remove -y "+quoteAll(names))
	},
	upgrade: func(ctx context.Context, t transport.Transport, names []string, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "upgrade", "DEBIAN_FRONTEND=noninteractive apt-get install --only-upgrade -y "+quoteAll(names))
	},
}

var dnfManager = &manager{
	queryInstalled: func(ctx context.Context, t transport.Transport, name string) (bool, string, error) {
		out, code := t.RunShell(ctx, fmt.Sprintf("rpm -q --queryformat '%%{VERSION}-%%{RELEASE}' %s 2>/dev/null", shellquote.Quote(name)))
		if code != 0 {
			return false, "", nil
		}
		return true, strings.TrimSpace(out), nil
	},
	install: func(ctx context.Context, t transport.Transport, names []string, version, resourceID string) error {
		spec := names
		if version != "" && len(names) == 1 {
			spec = []string{fmt.Sprintf("%s-%s", names[0], version)}
		}
		return runOrFail(ctx, t, resourceID, "install", "dnf install -y "+quoteAll(spec))
	},
	remove: func(ctx context.Context, t transport.Transport, names []string, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "remove", "dnf remove -y "+quoteAll(names))
	},
	upgrade: func(ctx context.Context, t transport.Transport, names []string, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "upgrade", "dnf upgrade -y "+quoteAll(names))
	},
}

var pacmanManager = &manager{
	queryInstalled: func(ctx context.Context, t transport.Transport, name string) (bool, string, error) {
		out, code := t.RunShell(ctx, fmt.Sprintf("pacman -Q %s 2>/dev/null", shellquote.Quote(name)))
		if code != 0 {
			return false, "", nil
		}
		fields := strings.Fields(strings.TrimSpace(out))
		if len(fields) < 2 {
			return true, "", nil
		}
		return true, fields[1], nil
	},
	install: func(ctx context.Context, t transport.Transport, names []string, version, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "install", "pacman -S --noconfirm "+quoteAll(names))
	},
	remove: func(ctx context.Context, t transport.Transport, names []string, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "remove", "pacman -R --noconfirm "+quoteAll(names))
	},
	upgrade: func(ctx context.Context, t transport.Transport, names []string, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "upgrade", "pacman -S --noconfirm "+quoteAll(names))
	},
}

var brewManager = &manager{
	queryInstalled: func(ctx context.Context, t transport.Transport, name string) (bool, string, error) {
		out, code := t.RunShell(ctx, fmt.Sprintf("brew list --versions %s 2>/dev/null", shellquote.Quote(name)))
		if code != 0 || strings.TrimSpace(out) == "" {
			return false, "", nil
		}
		fields := strings.Fields(strings.TrimSpace(out))
		if len(fields) < 2 {
			return true, "", nil
		}
		return true, fields[len(fields)-1], nil
	},
	install: func(ctx context.Context, t transport.Transport, names []string, version, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "install", "brew install "+quoteAll(names))
	},
	remove: func(ctx context.Context, t transport.Transport, names []string, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "remove", "brew uninstall "+quoteAll(names))
	},
	upgrade: func(ctx context.Context, t transport.Transport, names []string, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "upgrade", "brew upgrade "+quoteAll(names))
	},
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = shellquote.Quote(n)
	}
	return strings.Join(quoted, " ")
}

func runOrFail(ctx context.Context, t transport.Transport, resourceID, op, line string) error {
	out, code := t.RunShell(ctx, line)
	if code != 0 {
		return fmt.Errorf("%s %s failed (exit %d): %s", op, resourceID, code, out)
	}
	return nil
}
