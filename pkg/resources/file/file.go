// Package file implements the File resource: regular files, directories,
// content, mode, and ownership, managed entirely through a transport.
// Apply-side command construction runs directly over pkg/transport, local
// or remote, with no separate RPC envelope in between.
package file

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/statecraft/statecraft/pkg/errs"
	"github.com/statecraft/statecraft/pkg/platform"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/shellquote"
	"github.com/statecraft/statecraft/pkg/validate"
)

func readLocal(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Ensure is the desired kind of filesystem entry.
type Ensure string

const (
	EnsureFile      Ensure = "file"
	EnsureDirectory Ensure = "directory"
	EnsureAbsent    Ensure = "absent"
)

// Renderer renders a template at path with vars into bytes. It is an
// external collaborator: the File resource needs only this one method and
// stays agnostic about the templating engine behind it.
type Renderer interface {
	Render(ctx context.Context, templatePath string, vars map[string]string) ([]byte, error)
}

// Config is the constructor input for a File resource. At most one of
// Content, Source, or Template may be set; with none set, the desired
// content of an EnsureFile entry is empty.
type Config struct {
	Path     string `validate:"required"`
	Content  string
	Source   string // local path, read when DesiredState is computed and again at apply time
	Template string // path rendered via Renderer at apply time
	Vars     map[string]string
	Ensure   Ensure `validate:"omitempty,oneof=file directory absent"`
	Mode     string // octal, e.g. "0644"; empty means unmanaged
	Owner    string
	Group    string
	Renderer Renderer
}

// File manages one path's existence, content, mode, and ownership.
type File struct {
	resource.Base
	cfg Config
}

// New constructs a File resource and registers it with ex. Returns an
// error if cfg is invalid (multiple content sources, missing path).
func New(ctx context.Context, ex Registerer, cfg Config) (*File, error) {
	f, err := build(cfg)
	if err != nil {
		return nil, err
	}
	ex.Add(f)
	return f, nil
}

// Registerer is the subset of *executor.Executor the constructor needs;
// declared here to avoid an import cycle (pkg/executor depends on
// pkg/resource, which pkg/resources/file also depends on).
type Registerer interface {
	Add(resource.Resource)
}

func build(cfg Config) (*File, error) {
	if err := validate.Struct(cfg, "file:"+cfg.Path); err != nil {
		return nil, err
	}
	if cfg.Ensure == "" {
		cfg.Ensure = EnsureFile
	}
	sources := 0
	for _, s := range []string{cfg.Content, cfg.Source, cfg.Template} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return nil, errs.New(errs.ClassValidation, "file resource accepts only one of content, source, template", nil).WithResource("file:" + cfg.Path)
	}
	if cfg.Template != "" && cfg.Renderer == nil {
		return nil, errs.New(errs.ClassValidation, "file resource with template requires a Renderer", nil).WithResource("file:" + cfg.Path)
	}
	return &File{Base: resource.NewBase("file", cfg.Path), cfg: cfg}, nil
}

// DesiredState derives the desired attribute map from constructor inputs.
func (f *File) DesiredState() resource.State {
	if f.cfg.Ensure == EnsureAbsent {
		return resource.State{"exists": false}
	}
	s := resource.State{
		"exists": true,
		"type":   string(f.cfg.Ensure),
	}
	if f.cfg.Ensure == EnsureFile {
		switch {
		case f.cfg.Source != "":
			// Read eagerly so plan/check diffing sees the same bytes apply
			// will write; DesiredState has no error return, so an unreadable
			// source simply drops out of the diff rather than failing here —
			// Apply surfaces the read failure instead.
			if b, err := readLocal(f.cfg.Source); err == nil {
				s["content"] = string(b)
			}
		case f.cfg.Template != "":
			// Rendering needs a context and can fail; DesiredState supports
			// neither, so templated files are diffed on type/mode/ownership
			// only and always re-rendered on create.
		default:
			s["content"] = f.cfg.Content
		}
	}
	if f.cfg.Mode != "" {
		s["mode"] = normalizeMode(f.cfg.Mode)
	}
	if f.cfg.Owner != "" {
		s["owner"] = f.cfg.Owner
	}
	if f.cfg.Group != "" {
		s["group"] = f.cfg.Group
	}
	return s
}

// Check performs a pure observation of current path state via the transport.
func (f *File) Check(ctx context.Context, p platform.Platform) (resource.State, error) {
	exists, err := f.Transport.FileExists(ctx, f.cfg.Path)
	if err != nil {
		return nil, errs.New(errs.ClassTransport, "check file existence", err).WithResource(f.ID()).WithOperation("file_exists")
	}
	if !exists {
		return resource.State{"exists": false}, nil
	}

	out, code := f.Transport.RunShell(ctx, fmt.Sprintf("stat -c '%%F|%%a|%%s|%%U|%%G' %s", shellquote.Quote(f.cfg.Path)))
	if code != 0 {
		return nil, errs.New(errs.ClassTransport, "stat file", fmt.Errorf("exit %d: %s", code, out)).WithResource(f.ID()).WithOperation("stat")
	}
	parts := strings.Split(strings.TrimSpace(out), "|")
	if len(parts) != 5 {
		return nil, errs.New(errs.ClassTransport, "parse stat output", fmt.Errorf("unexpected output: %q", out)).WithResource(f.ID())
	}
	kind, mode, owner, group := parts[0], parts[1], parts[3], parts[4]
	ftype := statKindToEnsure(kind)

	state := resource.State{
		"exists": true,
		"type":   string(ftype),
		"mode":   normalizeMode(mode),
		"owner":  owner,
		"group":  group,
	}

	if ftype == EnsureFile {
		content, err := f.Transport.ReadFile(ctx, f.cfg.Path)
		if err != nil {
			return nil, errs.New(errs.ClassTransport, "read file content", err).WithResource(f.ID()).WithOperation("read_file")
		}
		if utf8.Valid(content) {
			state["content"] = string(content)
		}
		// else: binary content is exposed as unavailable, key stays absent
	}

	return state, nil
}

// Apply performs the mutations implied by plan.
func (f *File) Apply(ctx context.Context, plan resource.Plan, p platform.Platform) error {
	switch plan.Action {
	case resource.ActionDelete:
		if _, code := f.Transport.RunShell(ctx, "rm -rf "+shellquote.Quote(f.cfg.Path)); code != 0 {
			return errs.New(errs.ClassTransport, "delete file", fmt.Errorf("rm exited %d", code)).WithResource(f.ID()).WithOperation("delete")
		}
		return nil

	case resource.ActionCreate:
		if err := f.createOrUpdate(ctx); err != nil {
			return err
		}
		return f.applyMetadata(ctx)

	case resource.ActionUpdate:
		for _, c := range plan.Changes {
			switch c.Field {
			case "content":
				if err := f.writeContent(ctx); err != nil {
					return err
				}
			case "mode":
				if err := f.chmod(ctx); err != nil {
					return err
				}
			case "owner", "group":
				if err := f.chown(ctx); err != nil {
					return err
				}
			case "type":
				if err := f.createOrUpdate(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return nil
}

func (f *File) createOrUpdate(ctx context.Context) error {
	if f.cfg.Ensure == EnsureDirectory {
		if _, code := f.Transport.RunShell(ctx, "mkdir -p "+shellquote.Quote(f.cfg.Path)); code != 0 {
			return errs.New(errs.ClassTransport, "create directory", fmt.Errorf("mkdir exited %d", code)).WithResource(f.ID()).WithOperation("create")
		}
		return nil
	}
	return f.writeContent(ctx)
}

func (f *File) writeContent(ctx context.Context) error {
	content, err := f.resolveContent(ctx)
	if err != nil {
		return err
	}
	if err := f.Transport.WriteFile(ctx, f.cfg.Path, content); err != nil {
		return errs.New(errs.ClassTransport, "write file", err).WithResource(f.ID()).WithOperation("write_file")
	}
	return nil
}

func (f *File) resolveContent(ctx context.Context) ([]byte, error) {
	switch {
	case f.cfg.Template != "":
		b, err := f.cfg.Renderer.Render(ctx, f.cfg.Template, f.cfg.Vars)
		if err != nil {
			return nil, errs.New(errs.ClassTransport, "render template", err).WithResource(f.ID())
		}
		return b, nil
	case f.cfg.Source != "":
		// Source is read from the local filesystem at apply time and
		// written through the transport, so remote targets work too.
		b, err := readLocal(f.cfg.Source)
		if err != nil {
			return nil, errs.New(errs.ClassTransport, "read source file", err).WithResource(f.ID())
		}
		return b, nil
	default:
		return []byte(f.cfg.Content), nil
	}
}

func (f *File) applyMetadata(ctx context.Context) error {
	if f.cfg.Mode != "" {
		if err := f.chmod(ctx); err != nil {
			return err
		}
	}
	if f.cfg.Owner != "" || f.cfg.Group != "" {
		if err := f.chown(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) chmod(ctx context.Context) error {
	mode := normalizeMode(f.cfg.Mode)
	if _, code := f.Transport.RunShell(ctx, fmt.Sprintf("chmod %s %s", mode, shellquote.Quote(f.cfg.Path))); code != 0 {
		return errs.New(errs.ClassTransport, "chmod file", fmt.Errorf("chmod exited %d", code)).WithResource(f.ID()).WithOperation("chmod")
	}
	return nil
}

func (f *File) chown(ctx context.Context) error {
	spec := f.cfg.Owner
	if f.cfg.Group != "" {
		spec += ":" + f.cfg.Group
	}
	if _, code := f.Transport.RunShell(ctx, fmt.Sprintf("chown %s %s", spec, shellquote.Quote(f.cfg.Path))); code != 0 {
		return errs.New(errs.ClassTransport, "chown file", fmt.Errorf("chown exited %d", code)).WithResource(f.ID()).WithOperation("chown")
	}
	return nil
}

func statKindToEnsure(kind string) Ensure {
	switch {
	case strings.Contains(kind, "directory"):
		return EnsureDirectory
	default:
		return EnsureFile
	}
}

// normalizeMode renders a mode string (either "644" or "0644") as a
// four-digit octal string so Check and DesiredState agree regardless of
// how the constructor spelled it.
func normalizeMode(mode string) string {
	v, err := strconv.ParseUint(strings.TrimPrefix(mode, "0o"), 8, 32)
	if err != nil {
		return mode
	}
	return fmt.Sprintf("0%o", v)
}

var _ resource.Resource = (*File)(nil)
