// Package null provides the zero-value Transport: every operation fails
// loudly, pointing at the registration contract, instead of a resource
// silently touching nothing or panicking on a nil transport.
package null

import (
	"context"
	"fmt"

	"github.com/statecraft/statecraft/pkg/transport"
)

// Transport is bound to a resource that has not gone through
// executor.Add. Every call returns an error explaining the contract.
type Transport struct {
	ResourceID string
}

func (t Transport) err(op string) error {
	id := t.ResourceID
	if id == "" {
		id = "<unregistered>"
	}
	return fmt.Errorf("resource %s has no transport bound: call executor.Add(resource) before plan/apply (op=%s)", id, op)
}

func (t Transport) RunShell(ctx context.Context, line string) (string, int) {
	return t.err("run_shell").Error(), -1
}

func (t Transport) RunCommand(ctx context.Context, argv []string) (string, int) {
	return t.err("run_command").Error(), -1
}
func (t Transport) ReadFile(ctx context.Context, path string) ([]byte, error)      { return nil, t.err("read_file") }
func (t Transport) WriteFile(ctx context.Context, path string, data []byte) error  { return t.err("write_file") }
func (t Transport) FileExists(ctx context.Context, path string) (bool, error)      { return false, t.err("file_exists") }
func (t Transport) CopyFile(ctx context.Context, local, remote string) error       { return t.err("copy_file") }
func (t Transport) Close() error                                                  { return nil }

var _ transport.Transport = Transport{}
