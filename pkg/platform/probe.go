// Package platform probes the system, distribution, version, and
// architecture of a target reached through a transport.
package platform

import (
	"bufio"
	"context"
	"strings"

	"github.com/statecraft/statecraft/pkg/transport"
)

// Platform identifies the target a resource is being checked/applied against.
type Platform struct {
	System       string // e.g. "linux", "darwin"
	Distribution string // e.g. "debian", "ubuntu", "rhel", "arch", "darwin"
	Version      string
	Codename     string // release codename, e.g. "bookworm"; empty when unknown
	Architecture string
}

const unknown = "unknown"

// Probe runs a small fixed sequence over t to learn the platform. It never
// fails the run: unresolved fields default to "unknown".
func Probe(ctx context.Context, t transport.Transport) Platform {
	p := Platform{System: unknown, Distribution: unknown, Version: unknown, Architecture: unknown}

	if out, code := t.RunShell(ctx, "uname -s"); code == 0 {
		p.System = strings.ToLower(strings.TrimSpace(out))
	}
	if out, code := t.RunShell(ctx, "uname -m"); code == 0 {
		p.Architecture = strings.TrimSpace(out)
	}

	switch p.System {
	case "linux":
		if rel, ok := probeOSRelease(ctx, t); ok {
			p.Distribution = rel.id
			p.Version = rel.version
			p.Codename = rel.codename
		}
	case "darwin":
		p.Distribution = "darwin"
		if out, code := t.RunShell(ctx, "sw_vers -productVersion"); code == 0 {
			p.Version = strings.TrimSpace(out)
		}
	}

	return p
}

type osRelease struct {
	id       string
	version  string
	codename string
}

// probeOSRelease parses the standard /etc/os-release key/value file for ID,
// VERSION_ID, and VERSION_CODENAME.
func probeOSRelease(ctx context.Context, t transport.Transport) (osRelease, bool) {
	out, code := t.RunShell(ctx, "cat /etc/os-release")
	if code != 0 {
		return osRelease{}, false
	}

	var rel osRelease
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		k, v, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		v = strings.Trim(v, `"`)
		switch k {
		case "ID":
			rel.id = v
		case "VERSION_ID":
			rel.version = v
		case "VERSION_CODENAME":
			rel.codename = v
		}
	}
	return rel, rel.id != ""
}

// PackageFamily groups distributions under the package manager family they share.
func (p Platform) PackageFamily() string {
	switch p.Distribution {
	case "debian", "ubuntu", "raspbian", "linuxmint", "pop":
		return "debian"
	case "rhel", "centos", "fedora", "rocky", "almalinux", "amzn":
		return "rhel"
	case "arch", "manjaro", "endeavouros":
		return "arch"
	case "darwin":
		return "darwin"
	default:
		return unknown
	}
}
