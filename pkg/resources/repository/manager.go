package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/shellquote"
	"github.com/statecraft/statecraft/pkg/transport"
)

type repoManager struct {
	cacheStale      func(ctx context.Context, t transport.Transport, threshold time.Duration) (bool, error)
	upgradableCount func(ctx context.Context, t transport.Transport) (int, error)
	sourceExists    func(ctx context.Context, t transport.Transport, r *Repository) (bool, error)
	update          func(ctx context.Context, t transport.Transport, resourceID string) error
	upgradeAll      func(ctx context.Context, t transport.Transport, resourceID string) error
	addSource       func(ctx context.Context, t transport.Transport, r *Repository, p platform.Platform) error
	removeSource    func(ctx context.Context, t transport.Transport, r *Repository) error
}

func managerFor(p platform.Platform) (*repoManager, error) {
	switch p.PackageFamily() {
	case "debian":
		return aptRepoManager, nil
	case "rhel":
		return dnfRepoManager, nil
	case "arch":
		return pacmanRepoManager, nil
	case "darwin":
		return brewRepoManager, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s/%s", p.System, p.Distribution)
	}
}

// --- Debian/apt ---

const aptCacheStamp = "/var/cache/apt/pkgcache.bin"
const aptFragmentDir = "/etc/apt/sources.list.d"
const aptKeyDir = "/etc/apt/trusted.gpg.d"

var aptRepoManager = &repoManager{
	cacheStale: func(ctx context.Context, t transport.Transport, threshold time.Duration) (bool, error) {
		return cacheOlderThan(ctx, t, aptCacheStamp, threshold)
	},
	upgradableCount: func(ctx context.Context, t transport.Transport) (int, error) {
		out, code := t.RunShell(ctx, "apt list --upgradable 2>/dev/null | grep -c upgradable")
		if code != 0 {
			return 0, nil
		}
		return atoiSafe(out), nil
	},
	sourceExists: func(ctx context.Context, t transport.Transport, r *Repository) (bool, error) {
		ok, err := t.FileExists(ctx, aptFragmentDir+"/"+r.Name+".list")
		return ok, err
	},
	update: func(ctx context.Context, t transport.Transport, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "update", "DEBIAN_FRONTEND=noninteractive apt-get update -y")
	},
	upgradeAll: func(ctx context.Context, t transport.Transport, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "upgrade", "DEBIAN_FRONTEND=noninteractive apt-get upgrade -y")
	},
	addSource: func(ctx context.Context, t transport.Transport, r *Repository, p platform.Platform) error {
		if r.cfg.PPA != "" {
			return runOrFail(ctx, t, r.ID(), "add-ppa", fmt.Sprintf("add-apt-repository -y %s", shellquote.Quote(r.cfg.PPA)))
		}
		if r.cfg.KeyURL != "" {
			keyPath := aptKeyDir + "/" + r.Name + ".gpg"
			line := fmt.Sprintf("curl -fsSL %s | gpg --dearmor -o %s", shellquote.Quote(r.cfg.KeyURL), shellquote.Quote(keyPath))
			if err := runOrFail(ctx, t, r.ID(), "fetch-key", line); err != nil {
				return err
			}
		}
		codename := p.Codename
		if codename == "" {
			codename = p.Version
		}
		repoLine := strings.ReplaceAll(r.cfg.RepoLine, "{distro_codename}", codename)
		return t.WriteFile(ctx, aptFragmentDir+"/"+r.Name+".list", []byte(repoLine+"\n"))
	},
	removeSource: func(ctx context.Context, t transport.Transport, r *Repository) error {
		return runOrFail(ctx, t, r.ID(), "remove-source", "rm -f "+quotedPath(aptFragmentDir+"/"+r.Name+".list"))
	},
}

// --- RHEL/dnf ---

const yumRepoDir = "/etc/yum.repos.d"

var dnfRepoManager = &repoManager{
	cacheStale: func(ctx context.Context, t transport.Transport, threshold time.Duration) (bool, error) {
		return cacheOlderThan(ctx, t, "/var/cache/dnf", threshold)
	},
	upgradableCount: func(ctx context.Context, t transport.Transport) (int, error) {
		out, code := t.RunShell(ctx, "dnf check-update --quiet 2>/dev/null | grep -c . || true")
		if code > 100 { // dnf returns 100 when updates are available; anything else is an error we tolerate
			return 0, nil
		}
		return atoiSafe(out), nil
	},
	sourceExists: func(ctx context.Context, t transport.Transport, r *Repository) (bool, error) {
		return t.FileExists(ctx, yumRepoDir+"/"+r.Name+".repo")
	},
	update: func(ctx context.Context, t transport.Transport, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "update", "dnf makecache -y")
	},
	upgradeAll: func(ctx context.Context, t transport.Transport, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "upgrade", "dnf upgrade -y")
	},
	addSource: func(ctx context.Context, t transport.Transport, r *Repository, p platform.Platform) error {
		gpgCheck := "0"
		if r.cfg.KeyURL != "" {
			gpgCheck = "1"
		}
		content := fmt.Sprintf("[%s]\nname=%s\nbaseurl=%s\ngpgcheck=%s\nenabled=1\n", r.Name, r.Name, r.cfg.RepoLine, gpgCheck)
		if r.cfg.KeyURL != "" {
			content += "gpgkey=" + r.cfg.KeyURL + "\n"
		}
		return t.WriteFile(ctx, yumRepoDir+"/"+r.Name+".repo", []byte(content))
	},
	removeSource: func(ctx context.Context, t transport.Transport, r *Repository) error {
		return runOrFail(ctx, t, r.ID(), "remove-source", "rm -f "+quotedPath(yumRepoDir+"/"+r.Name+".repo"))
	},
}

// --- Arch/pacman ---

const pacmanConf = "/etc/pacman.conf"

var pacmanRepoManager = &repoManager{
	cacheStale: func(ctx context.Context, t transport.Transport, threshold time.Duration) (bool, error) {
		return cacheOlderThan(ctx, t, "/var/lib/pacman/sync", threshold)
	},
	upgradableCount: func(ctx context.Context, t transport.Transport) (int, error) {
		out, code := t.RunShell(ctx, "pacman -Qu 2>/dev/null | wc -l")
		if code != 0 {
			return 0, nil
		}
		return atoiSafe(out), nil
	},
	sourceExists: func(ctx context.Context, t transport.Transport, r *Repository) (bool, error) {
		out, code := t.RunShell(ctx, fmt.Sprintf("grep -F '[%s]' %s", r.Name, quotedPath(pacmanConf)))
		return code == 0 && strings.TrimSpace(out) != "", nil
	},
	update: func(ctx context.Context, t transport.Transport, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "update", "pacman -Sy --noconfirm")
	},
	upgradeAll: func(ctx context.Context, t transport.Transport, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "upgrade", "pacman -Syu --noconfirm")
	},
	addSource: func(ctx context.Context, t transport.Transport, r *Repository, p platform.Platform) error {
		section := fmt.Sprintf("\n[%s]\nServer = %s\n", r.Name, r.cfg.RepoLine)
		return runOrFail(ctx, t, r.ID(), "add-source", fmt.Sprintf("printf '%%s' %s >> %s", shellquote.Quote(section), quotedPath(pacmanConf)))
	},
	removeSource: func(ctx context.Context, t transport.Transport, r *Repository) error {
		return runOrFail(ctx, t, r.ID(), "remove-source", fmt.Sprintf("sed -i '/^\\[%s\\]/,/^$/d' %s", r.Name, quotedPath(pacmanConf)))
	},
}

// --- macOS/brew ---

var brewRepoManager = &repoManager{
	cacheStale: func(ctx context.Context, t transport.Transport, threshold time.Duration) (bool, error) {
		return cacheOlderThan(ctx, t, "/usr/local/Homebrew/Library/Taps", threshold)
	},
	upgradableCount: func(ctx context.Context, t transport.Transport) (int, error) {
		out, code := t.RunShell(ctx, "brew outdated | wc -l")
		if code != 0 {
			return 0, nil
		}
		return atoiSafe(out), nil
	},
	sourceExists: func(ctx context.Context, t transport.Transport, r *Repository) (bool, error) {
		out, code := t.RunShell(ctx, fmt.Sprintf("brew tap | grep -F %s", shellquote.Quote(r.cfg.Tap)))
		return code == 0 && strings.TrimSpace(out) != "", nil
	},
	update: func(ctx context.Context, t transport.Transport, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "update", "brew update")
	},
	upgradeAll: func(ctx context.Context, t transport.Transport, resourceID string) error {
		return runOrFail(ctx, t, resourceID, "upgrade", "brew upgrade")
	},
	addSource: func(ctx context.Context, t transport.Transport, r *Repository, p platform.Platform) error {
		return runOrFail(ctx, t, r.ID(), "tap", "brew tap "+shellquote.Quote(r.cfg.Tap))
	},
	removeSource: func(ctx context.Context, t transport.Transport, r *Repository) error {
		return runOrFail(ctx, t, r.ID(), "untap", "brew untap "+shellquote.Quote(r.cfg.Tap))
	},
}

func cacheOlderThan(ctx context.Context, t transport.Transport, path string, threshold time.Duration) (bool, error) {
	exists, err := t.FileExists(ctx, path)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}
	out, code := t.RunShell(ctx, fmt.Sprintf("stat -c %%Y %s", quotedPath(path)))
	if code != 0 {
		return true, nil
	}
	mtime, err := parseEpoch(out)
	if err != nil {
		return true, nil
	}
	nowOut, code := t.RunShell(ctx, "date +%s")
	if code != 0 {
		return false, nil
	}
	now, err := parseEpoch(nowOut)
	if err != nil {
		return false, nil
	}
	return time.Duration(now-mtime)*time.Second > threshold, nil
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func runOrFail(ctx context.Context, t transport.Transport, resourceID, op, line string) error {
	out, code := t.RunShell(ctx, line)
	if code != 0 {
		return fmt.Errorf("%s %s failed (exit %d): %s", op, resourceID, code, out)
	}
	return nil
}
