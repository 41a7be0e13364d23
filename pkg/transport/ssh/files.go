package ssh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"

	"github.com/statecraft/statecraft/pkg/transport"
)

func (t *Transport) sftpClient() (*sftp.Client, error) {
	client, err := t.connect()
	if err != nil {
		return nil, err
	}
	return sftp.NewClient(client)
}

func (t *Transport) ReadFile(ctx context.Context, path string) ([]byte, error) {
	sc, err := t.sftpClient()
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	f, err := sc.Open(path)
	if err != nil {
		if sftpIsNotExist(err) {
			return nil, &transport.Error{Op: "read_file", Err: err, IsNotFound: true}
		}
		return nil, &transport.Error{Op: "read_file", Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &transport.Error{Op: "read_file", Err: err}
	}
	return data, nil
}

// WriteFile writes data to path. Under privilege escalation, sftp itself
// cannot elevate, so the file is staged to a sibling path under the
// connecting user's privileges and then moved into place with `sudo mv`.
func (t *Transport) WriteFile(ctx context.Context, destPath string, data []byte) error {
	sc, err := t.sftpClient()
	if err != nil {
		return err
	}
	defer sc.Close()

	if err := sc.MkdirAll(path.Dir(destPath)); err != nil {
		return &transport.Error{Op: "write_file", Err: err}
	}

	if !t.cfg.Escalate {
		return writeSFTPFile(sc, destPath, data)
	}

	stagePath := stagingPath(destPath)
	if err := writeSFTPFile(sc, stagePath, data); err != nil {
		return err
	}

	out, code := t.RunShell(ctx, fmt.Sprintf("mv %s %s", shellQuote(stagePath), shellQuote(destPath)))
	if code != 0 {
		return &transport.Error{Op: "write_file", Err: fmt.Errorf("staged move failed: %s", out)}
	}
	return nil
}

func writeSFTPFile(sc *sftp.Client, path string, data []byte) error {
	f, err := sc.Create(path)
	if err != nil {
		return &transport.Error{Op: "write_file", Err: err}
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return &transport.Error{Op: "write_file", Err: err}
	}
	return nil
}

func (t *Transport) FileExists(ctx context.Context, path string) (bool, error) {
	// Under escalation an unprivileged SFTP session may report "not found"
	// for a file it simply cannot read; fall back to a remote shell test
	// running under the escalated identity.
	if t.cfg.Escalate {
		_, code := t.RunShell(ctx, fmt.Sprintf("test -e %s", shellQuote(path)))
		return code == 0, nil
	}

	sc, err := t.sftpClient()
	if err != nil {
		return false, err
	}
	defer sc.Close()

	_, err = sc.Stat(path)
	if err == nil {
		return true, nil
	}
	if sftpIsNotExist(err) {
		return false, nil
	}
	return false, &transport.Error{Op: "file_exists", Err: err}
}

func (t *Transport) CopyFile(ctx context.Context, localPath, remotePath string) error {
	sc, err := t.sftpClient()
	if err != nil {
		return err
	}
	defer sc.Close()

	if err := sc.MkdirAll(path.Dir(remotePath)); err != nil {
		return &transport.Error{Op: "copy_file", Err: err}
	}

	dst, err := sc.Create(remotePath)
	if err != nil {
		return &transport.Error{Op: "copy_file", Err: err}
	}
	defer dst.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return &transport.Error{Op: "copy_file", Err: err}
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &transport.Error{Op: "copy_file", Err: err}
	}
	return nil
}

// stagingPath derives a deterministic sibling path for a staged write: the
// destination directory, a dot-prefixed basename, and an 8-hex-char suffix
// from the SHA-256 of the destination path so repeated staged writes to the
// same destination reuse (and overwrite) the same staging file rather than
// accumulating garbage.
func stagingPath(destPath string) string {
	sum := sha256.Sum256([]byte(destPath))
	suffix := hex.EncodeToString(sum[:])[:8]
	return path.Join(path.Dir(destPath), fmt.Sprintf(".%s.%s.staged", path.Base(destPath), suffix))
}

func shellQuote(s string) string {
	return shellJoin([]string{s})
}

func sftpIsNotExist(err error) bool {
	if sErr, ok := err.(*sftp.StatusError); ok {
		return sErr.Code == 2 // SSH_FX_NO_SUCH_FILE
	}
	return false
}
