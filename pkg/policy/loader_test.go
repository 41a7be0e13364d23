package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoaderLoadFromFile(t *testing.T) {
	l := NewLoader(testLogger())

	dir := t.TempDir()
	path := filepath.Join(dir, "custom-check.rego")
	rego := "# Requires a backup window\npackage statecraft.policies.custom\n\nimport rego.v1\n"
	if err := os.WriteFile(path, []byte(rego), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	p, err := l.loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	if p.Name != "custom-check" {
		t.Errorf("Name = %q, want custom-check", p.Name)
	}
	if p.Description != "Requires a backup window" {
		t.Errorf("Description = %q", p.Description)
	}
	if !p.Enabled {
		t.Error("expected loaded policy to default to enabled")
	}
}

func TestLoaderLoadFromDirectorySkipsNonRego(t *testing.T) {
	l := NewLoader(testLogger())

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.rego"), []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a policy"), 0o644); err != nil {
		t.Fatal(err)
	}

	policies, err := l.LoadFromPaths([]string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected exactly 1 policy, got %d", len(policies))
	}
}
