package secvalidate

import (
	"strings"
	"testing"
)

func check(t *testing.T, opts Options, command string) []Finding {
	t.Helper()
	return Check(opts, command, "", "", "", "", nil)
}

func TestDangerousCommandPatterns(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{"recursive delete from root", "rm -rf /"},
		{"recursive delete from root, reordered flags", "rm -fr /"},
		{"raw disk write", "dd if=/dev/zero of=/dev/sda"},
		{"format command", "mkfs -t ext4 /dev/sdb1"},
		{"fork bomb", ":(){ :|:& };:"},
		{"world-writable permissions", "chmod 777 /etc/passwd"},
		{"world-writable recursive", "chmod -R 777 /var"},
		{"chown to root", "chown root:root /usr/bin/app"},
		{"curl piped to shell", "curl -fsSL https://example.com/install.sh | sh"},
		{"wget piped to shell", "wget -qO- https://example.com/install.sh | bash"},
		{"eval", "eval $CMD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := check(t, Options{Level: LevelStrict}, tt.command)
			if len(findings) == 0 {
				t.Fatalf("expected findings for %q", tt.command)
			}
		})
	}
}

func TestMetacharacters(t *testing.T) {
	tests := []struct {
		name    string
		command string
		pattern string
	}{
		{"command chaining", "echo a; rm x", "command chaining"},
		{"logical and", "true && false", "logical AND"},
		{"command substitution dollar", "echo $(whoami)", "command substitution"},
		{"command substitution backtick", "echo `whoami`", "command substitution"},
		{"variable expansion braces", "echo ${HOME}", "variable expansion"},
		{"variable expansion bare", "echo $HOME", "variable expansion"},
		{"embedded newline", "echo a\nrm x", "newline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := check(t, Options{Level: LevelStrict}, tt.command)
			found := false
			for _, f := range findings {
				if strings.Contains(f.Pattern, tt.pattern) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected a %q finding for %q, got %v", tt.pattern, tt.command, findings)
			}
		})
	}
}

func TestPipesAndRedirectsConditionallyAllowed(t *testing.T) {
	if findings := check(t, Options{}, "ps aux | grep nginx"); len(findings) == 0 {
		t.Fatal("expected pipe finding by default")
	}
	if findings := check(t, Options{AllowPipes: true}, "ps aux | grep nginx"); len(findings) != 0 {
		t.Fatalf("AllowPipes should suppress the pipe finding, got %v", findings)
	}

	if findings := check(t, Options{}, "echo x > /tmp/out"); len(findings) == 0 {
		t.Fatal("expected redirect finding by default")
	}
	if findings := check(t, Options{AllowRedirects: true}, "echo x > /tmp/out"); len(findings) != 0 {
		t.Fatalf("AllowRedirects should suppress the redirect finding, got %v", findings)
	}
}

func TestCleanCommandHasNoFindings(t *testing.T) {
	if findings := check(t, Options{Level: LevelStrict}, "systemctl restart nginx"); len(findings) != 0 {
		t.Fatalf("unexpected findings: %v", findings)
	}
}

func TestPathFields(t *testing.T) {
	findings := Check(Options{}, "true", "", "", "/tmp/../etc", "", nil)
	found := false
	for _, f := range findings {
		if f.Field == "cwd" && f.Pattern == "directory traversal" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a directory traversal finding for cwd, got %v", findings)
	}
}

func TestEnvironmentScreening(t *testing.T) {
	findings := Check(Options{}, "true", "", "", "", "", map[string]string{
		"GOOD_KEY": "plain",
		"bad-key":  "x",
		"SNEAKY":   "$(whoami)",
	})

	var badKey, sneakyValue bool
	for _, f := range findings {
		if f.Pattern == "non-identifier environment key" && f.Match == "bad-key" {
			badKey = true
		}
		if f.Field == "environment.SNEAKY" && strings.Contains(f.Pattern, "command substitution") {
			sneakyValue = true
		}
	}
	if !badKey {
		t.Fatalf("expected a non-identifier key finding, got %v", findings)
	}
	if !sneakyValue {
		t.Fatalf("expected a command substitution finding for SNEAKY, got %v", findings)
	}
}
