package platform

import (
	"context"
	"testing"

	"github.com/statecraft/statecraft/pkg/transport/fake"
)

func TestProbeLinuxParsesOSRelease(t *testing.T) {
	tr := fake.New()
	tr.RespondPrefix("uname -s", "Linux\n", 0)
	tr.RespondPrefix("uname -m", "x86_64\n", 0)
	tr.RespondPrefix("cat /etc/os-release", "ID=debian\nVERSION_ID=\"12\"\nVERSION_CODENAME=bookworm\nPRETTY_NAME=\"Debian GNU/Linux 12\"\n", 0)

	p := Probe(context.Background(), tr)
	if p.System != "linux" {
		t.Fatalf("System = %q", p.System)
	}
	if p.Distribution != "debian" || p.Version != "12" || p.Codename != "bookworm" {
		t.Fatalf("os-release parse = %+v", p)
	}
	if p.Architecture != "x86_64" {
		t.Fatalf("Architecture = %q", p.Architecture)
	}
	if p.PackageFamily() != "debian" {
		t.Fatalf("PackageFamily() = %q", p.PackageFamily())
	}
}

func TestProbeDarwinUsesSwVers(t *testing.T) {
	tr := fake.New()
	tr.RespondPrefix("uname -s", "Darwin\n", 0)
	tr.RespondPrefix("uname -m", "arm64\n", 0)
	tr.RespondPrefix("sw_vers -productVersion", "14.5\n", 0)

	p := Probe(context.Background(), tr)
	if p.System != "darwin" || p.Distribution != "darwin" || p.Version != "14.5" {
		t.Fatalf("darwin probe = %+v", p)
	}
	if p.PackageFamily() != "darwin" {
		t.Fatalf("PackageFamily() = %q", p.PackageFamily())
	}
}

func TestProbeNeverFails(t *testing.T) {
	// Every command erroring still yields a usable, fully defaulted probe.
	tr := fake.New()
	tr.Respond(func(line string) (string, int, bool) { return "", 1, true })

	p := Probe(context.Background(), tr)
	if p.System != "unknown" || p.Distribution != "unknown" || p.Architecture != "unknown" {
		t.Fatalf("expected unknown defaults, got %+v", p)
	}
	if p.PackageFamily() != "unknown" {
		t.Fatalf("PackageFamily() = %q", p.PackageFamily())
	}
}
