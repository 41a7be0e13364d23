// Package local implements transport.Transport against the local OS: every
// operation is a subprocess invocation or a direct filesystem call.
package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/statecraft/statecraft/pkg/transport"
)

// Transport runs every operation on the machine the engine itself runs on.
type Transport struct{}

// New returns a local transport.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) RunShell(ctx context.Context, line string) (string, int) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", line)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), exitCode(err)
}

func (t *Transport) RunCommand(ctx context.Context, argv []string) (string, int) {
	if len(argv) == 0 {
		return "", -1
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), exitCode(err)
}

func (t *Transport) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &transport.Error{Op: "read_file", Err: err, IsNotFound: true}
		}
		return nil, &transport.Error{Op: "read_file", Err: err}
	}
	return data, nil
}

func (t *Transport) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &transport.Error{Op: "write_file", Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &transport.Error{Op: "write_file", Err: err}
	}
	return nil
}

func (t *Transport) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &transport.Error{Op: "file_exists", Err: err}
}

func (t *Transport) CopyFile(ctx context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return &transport.Error{Op: "copy_file", Err: err}
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(remotePath), 0o755); err != nil {
		return &transport.Error{Op: "copy_file", Err: err}
	}
	dst, err := os.Create(remotePath)
	if err != nil {
		return &transport.Error{Op: "copy_file", Err: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &transport.Error{Op: "copy_file", Err: err}
	}
	return nil
}

func (t *Transport) Close() error {
	return nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

var _ transport.Transport = (*Transport)(nil)
