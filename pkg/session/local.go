package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Local executes commands and file operations on the caller's own host.
//
// All operations go through the standard library, so Local is safe for
// concurrent use without additional locking.
type Local struct {
	// Shell is the shell used for Execute. Defaults to /bin/sh.
	Shell string
}

var _ Session = (*Local)(nil)

// NewLocal returns a session bound to the local host.
func NewLocal() *Local {
	return &Local{Shell: "/bin/sh"}
}

func (s *Local) shell() string {
	if s.Shell != "" {
		return s.Shell
	}
	return "/bin/sh"
}

// Execute runs cmd through the local shell.
func (s *Local) Execute(ctx context.Context, cmd string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, s.shell(), "-c", cmd)
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return stdout.String(), stderr.String(), &ExitError{
				Cmd:    cmd,
				Code:   exitErr.ExitCode(),
				Stderr: stderr.String(),
			}
		}
		return stdout.String(), stderr.String(), fmt.Errorf("execute %q: %w", cmd, err)
	}
	return stdout.String(), stderr.String(), nil
}

// Exists reports whether path exists on the local filesystem.
func (s *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MkdirAll creates path and any missing parents.
func (s *Local) MkdirAll(_ context.Context, path string) error {
	return os.MkdirAll(path, 0755)
}

// Put copies localPath to remotePath, preserving mode bits.
func (s *Local) Put(_ context.Context, localPath, remotePath string) error {
	return copyFile(localPath, remotePath)
}

// Get copies remotePath to localPath, creating parent directories.
func (s *Local) Get(_ context.Context, remotePath, localPath string) error {
	return copyFile(remotePath, localPath)
}

// Close is a no-op for local sessions.
func (s *Local) Close() error {
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrTransfer, src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrTransfer, src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("%w: create parent of %s: %v", ErrTransfer, dst, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrTransfer, dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: copy %s to %s: %v", ErrTransfer, src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrTransfer, dst, err)
	}
	return nil
}
