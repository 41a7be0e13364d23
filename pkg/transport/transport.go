// Package transport is the uniform command/file interface every resource
// uses to touch a target host, local or remote. No resource ever calls
// os/exec or the filesystem directly; every mutating or observing operation
// funnels through a Transport.
package transport

import "context"

// Transport is the capability set resources use against a target: local
// subprocess/filesystem operations, or a secure-shell session. Implementations
// are bound to a resource at registration time.
type Transport interface {
	// RunShell executes a single shell command line and returns the merged
	// stdout/stderr and the exit code.
	RunShell(ctx context.Context, line string) (output string, exitCode int)

	// RunCommand executes argv without shell interpretation; preferred when
	// arguments are structured rather than a single shell line.
	RunCommand(ctx context.Context, argv []string) (output string, exitCode int)

	// ReadFile returns the bytes at path, or a NotFound error if absent.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates or overwrites path with data, creating parent
	// directories as needed.
	WriteFile(ctx context.Context, path string, data []byte) error

	// FileExists reports whether path exists.
	FileExists(ctx context.Context, path string) (bool, error)

	// CopyFile copies a local file to path on the transport's target.
	CopyFile(ctx context.Context, localPath, remotePath string) error

	// Close releases any connection resources.
	Close() error
}

// Error is the uniform transport-layer error, classified for retry and
// recovery decisions the way an EngineError would be.
type Error struct {
	Op          string
	Err         error
	IsTemporary bool
	IsAuthError bool
	IsNotFound  bool
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether the error is transient and worth retrying.
func (e *Error) Temporary() bool {
	return e.IsTemporary
}

// NotFound reports whether the error represents a missing file.
func (e *Error) NotFound() bool {
	return e.IsNotFound
}

// IsNotFound reports whether err (or anything it wraps) is a not-found
// transport error.
func IsNotFound(err error) bool {
	var te *Error
	return asError(err, &te) && te.IsNotFound
}

func asError(err error, target **Error) bool {
	for err != nil {
		if te, ok := err.(*Error); ok {
			*target = te
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
