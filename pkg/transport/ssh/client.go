// Package ssh implements transport.Transport over a secure shell session:
// one persistent connection per Transport, sessions opened per command,
// SFTP for file operations.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/statecraft/statecraft/pkg/transport"
)

// Transport runs every operation against a single remote host over SSH.
type Transport struct {
	cfg    *Config
	mu     sync.Mutex
	client *ssh.Client
}

// New validates cfg and returns a Transport. The underlying connection is
// established lazily on first use so construction never touches the network.
func New(cfg *Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ssh transport config: %w", err)
	}
	return &Transport{cfg: cfg}, nil
}

func (t *Transport) connect() (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}

	clientCfg, err := t.cfg.clientConfig()
	if err != nil {
		return nil, &transport.Error{Op: "connect", Err: err, IsAuthError: true}
	}

	client, err := ssh.Dial("tcp", t.cfg.Address(), clientCfg)
	if err != nil {
		return nil, &transport.Error{Op: "connect", Err: err, IsTemporary: true}
	}
	t.client = client
	return client, nil
}

// escalationPrefix returns the non-interactive privilege-escalation prefix
// used when cfg.Escalate is set. sudo -n fails fast rather than blocking on
// a password prompt that can never be answered over this channel.
func (t *Transport) escalationPrefix() string {
	if !t.cfg.Escalate {
		return ""
	}
	return "sudo -n "
}

func (t *Transport) RunShell(ctx context.Context, line string) (string, int) {
	client, err := t.connect()
	if err != nil {
		return err.Error(), -1
	}

	session, err := client.NewSession()
	if err != nil {
		return err.Error(), -1
	}
	defer session.Close()

	cmd := t.escalationPrefix() + line

	var buf bytes.Buffer
	session.Stdout = &buf
	session.Stderr = &buf

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return buf.String(), -1
	case runErr := <-done:
		return buf.String(), exitCode(runErr)
	}
}

func (t *Transport) RunCommand(ctx context.Context, argv []string) (string, int) {
	if len(argv) == 0 {
		return "", -1
	}
	line := shellJoin(argv)
	return t.RunShell(ctx, line)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus()
	}
	return -1
}

// shellJoin quotes argv for a single /bin/sh -c line. Each argument is
// wrapped in single quotes with embedded quotes escaped, matching the
// convention RunShell itself executes against.
func shellJoin(argv []string) string {
	var buf bytes.Buffer
	for i, a := range argv {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteByte('\'')
		for _, r := range a {
			if r == '\'' {
				buf.WriteString(`'\''`)
			} else {
				buf.WriteRune(r)
			}
		}
		buf.WriteByte('\'')
	}
	return buf.String()
}

var _ transport.Transport = (*Transport)(nil)
