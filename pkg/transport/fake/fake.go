// Package fake provides an in-memory transport.Transport for resource
// tests, so Check/Plan/Apply can be exercised without touching the real
// filesystem or spawning processes.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/statecraft/statecraft/pkg/transport"
)

type fileEntry struct {
	data  []byte
	isDir bool
	mode  string
	owner string
	group string
}

// Responder lets a test script a RunShell response for a command prefix.
type Responder func(line string) (output string, exitCode int, handled bool)

// Transport is an in-memory filesystem plus a table of scripted shell
// responses. Commands not matched by a Responder fall back to a small set
// of built-ins (stat, mkdir -p, rm -rf, chmod, chown, touch) that operate on the
// in-memory filesystem, so File/Exec tests don't need to script every call.
type Transport struct {
	mu         sync.Mutex
	files      map[string]*fileEntry
	responders []Responder
	Calls      []string // every RunShell/RunCommand line, in order, for assertions
}

// New returns an empty fake transport.
func New() *Transport {
	return &Transport{files: make(map[string]*fileEntry)}
}

// WithFile seeds a regular file.
func (t *Transport) WithFile(path string, data []byte, mode, owner, group string) *Transport {
	t.files[path] = &fileEntry{data: data, mode: mode, owner: owner, group: group}
	return t
}

// WithDir seeds a directory.
func (t *Transport) WithDir(path string) *Transport {
	t.files[path] = &fileEntry{isDir: true, mode: "0755", owner: "root", group: "root"}
	return t
}

// Respond registers a scripted response, checked in registration order
// before the built-in fallback.
func (t *Transport) Respond(r Responder) { t.responders = append(t.responders, r) }

// RespondPrefix is a convenience Responder for an exact command prefix.
func (t *Transport) RespondPrefix(prefix, output string, exitCode int) {
	t.Respond(func(line string) (string, int, bool) {
		if strings.HasPrefix(line, prefix) {
			return output, exitCode, true
		}
		return "", 0, false
	})
}

func (t *Transport) RunShell(ctx context.Context, line string) (string, int) {
	t.mu.Lock()
	t.Calls = append(t.Calls, line)
	t.mu.Unlock()

	for _, r := range t.responders {
		if out, code, handled := r(line); handled {
			return out, code
		}
	}
	return t.builtin(line)
}

func (t *Transport) RunCommand(ctx context.Context, argv []string) (string, int) {
	return t.RunShell(ctx, strings.Join(argv, " "))
}

func (t *Transport) ReadFile(ctx context.Context, path string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.files[path]
	if !ok || e.isDir {
		return nil, &transport.Error{Op: "read_file", Err: fmt.Errorf("not found: %s", path), IsNotFound: true}
	}
	return e.data, nil
}

func (t *Transport) WriteFile(ctx context.Context, path string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.files[path]
	mode, owner, group := "0644", "", ""
	if ok {
		mode, owner, group = existing.mode, existing.owner, existing.group
	}
	t.files[path] = &fileEntry{data: data, mode: mode, owner: owner, group: group}
	return nil
}

func (t *Transport) FileExists(ctx context.Context, path string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.files[path]
	return ok, nil
}

func (t *Transport) CopyFile(ctx context.Context, localPath, remotePath string) error {
	return t.WriteFile(ctx, remotePath, []byte("copied:"+localPath))
}

func (t *Transport) Close() error { return nil }

// builtin handles the small set of shell commands File/Exec issue directly,
// operating on the in-memory filesystem map.
func (t *Transport) builtin(line string) (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", 0
	}

	switch fields[0] {
	case "stat":
		path := unquote(fields[len(fields)-1])
		e, ok := t.files[path]
		if !ok {
			return "", 1
		}
		kind := "regular file"
		if e.isDir {
			kind = "directory"
		}
		return fmt.Sprintf("%s|%s|%d|%s|%s", kind, strings.TrimPrefix(e.mode, "0"), len(e.data), valueOr(e.owner, "root"), valueOr(e.group, "root")), 0

	case "mkdir":
		path := unquote(fields[len(fields)-1])
		t.files[path] = &fileEntry{isDir: true, mode: "0755"}
		return "", 0

	case "rm":
		path := unquote(fields[len(fields)-1])
		delete(t.files, path)
		return "", 0

	case "chmod":
		path := unquote(fields[len(fields)-1])
		if e, ok := t.files[path]; ok {
			e.mode = fields[len(fields)-2]
		}
		return "", 0

	case "chown":
		path := unquote(fields[len(fields)-1])
		spec := fields[len(fields)-2]
		owner, group, _ := strings.Cut(spec, ":")
		if e, ok := t.files[path]; ok {
			e.owner, e.group = owner, group
		}
		return "", 0

	case "touch":
		path := unquote(fields[len(fields)-1])
		if _, ok := t.files[path]; !ok {
			t.files[path] = &fileEntry{mode: "0644"}
		}
		return "", 0
	}

	return "", 127
}

func unquote(s string) string {
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimSuffix(s, "'")
	return s
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Paths returns every seeded/written path, sorted, for assertions.
func (t *Transport) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.files))
	for p := range t.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var _ transport.Transport = (*Transport)(nil)
