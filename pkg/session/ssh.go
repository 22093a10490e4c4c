package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHConfig configures an SSH session.
type SSHConfig struct {
	// Host is the remote hostname or address. Required.
	Host string

	// Port is the SSH port. Defaults to 22.
	Port int

	// User is the login user. Required.
	User string

	// KeyFile is the path to a private key. If empty, SSH agent or
	// password-less methods must be available via AuthMethods.
	KeyFile string

	// AuthMethods overrides the auth methods derived from KeyFile.
	AuthMethods []ssh.AuthMethod

	// HostKeyCallback validates the server host key. Defaults to
	// ssh.InsecureIgnoreHostKey; production callers should supply
	// knownhosts-based validation.
	HostKeyCallback ssh.HostKeyCallback

	// DialTimeout bounds connection establishment. Defaults to 30s.
	DialTimeout time.Duration
}

// SSH executes commands over an SSH transport and moves files with SFTP.
//
// The underlying ssh.Client multiplexes channels and is safe for concurrent
// use; SSH opens a fresh exec or sftp channel per operation, so independent
// jobs can share one SSH session. Lazy connection setup is guarded by a
// mutex.
type SSH struct {
	cfg SSHConfig

	mu     sync.Mutex
	client *ssh.Client
	closed bool
}

var _ Session = (*SSH)(nil)

// NewSSH returns a session bound to the remote host described by cfg.
// The connection is established lazily on first use.
func NewSSH(cfg SSHConfig) (*SSH, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh session: host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh session: user is required")
	}
	return &SSH{cfg: cfg}, nil
}

func (s *SSH) connect() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.client != nil {
		return s.client, nil
	}

	auth := s.cfg.AuthMethods
	if len(auth) == 0 && s.cfg.KeyFile != "" {
		key, err := os.ReadFile(s.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key %s: %w", s.cfg.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", s.cfg.KeyFile, err)
		}
		auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh session: no auth methods configured")
	}

	hostKey := s.cfg.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}

	timeout := s.cfg.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	port := s.cfg.Port
	if port <= 0 {
		port = 22
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	s.client = client
	return client, nil
}

// Execute runs cmd through the remote user's shell.
func (s *SSH) Execute(ctx context.Context, cmd string) (string, string, error) {
	client, err := s.connect()
	if err != nil {
		return "", "", err
	}

	sess, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("open ssh channel: %w", err)
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return stdout.String(), stderr.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				return stdout.String(), stderr.String(), &ExitError{
					Cmd:    cmd,
					Code:   exitErr.ExitStatus(),
					Stderr: stderr.String(),
				}
			}
			return stdout.String(), stderr.String(), fmt.Errorf("execute %q: %w", cmd, err)
		}
		return stdout.String(), stderr.String(), nil
	}
}

// Exists reports whether path exists on the remote host.
func (s *SSH) Exists(ctx context.Context, p string) (bool, error) {
	_, _, err := s.Execute(ctx, fmt.Sprintf("test -e %s", shellQuote(p)))
	if err != nil {
		if _, ok := err.(*ExitError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MkdirAll creates path and any missing parents on the remote host.
func (s *SSH) MkdirAll(ctx context.Context, p string) error {
	_, stderr, err := s.Execute(ctx, fmt.Sprintf("mkdir -p %s", shellQuote(p)))
	if err != nil {
		return fmt.Errorf("mkdir -p %s: %w (%s)", p, err, stderr)
	}
	return nil
}

// Put copies a local file to the remote host over SFTP.
func (s *SSH) Put(ctx context.Context, localPath, remotePath string) error {
	return s.withSFTP(ctx, func(ftp *sftp.Client) error {
		in, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", ErrTransfer, localPath, err)
		}
		defer func() { _ = in.Close() }()

		info, err := in.Stat()
		if err != nil {
			return fmt.Errorf("%w: stat %s: %v", ErrTransfer, localPath, err)
		}

		if err := ftp.MkdirAll(path.Dir(remotePath)); err != nil {
			return fmt.Errorf("%w: create parent of %s: %v", ErrTransfer, remotePath, err)
		}

		out, err := ftp.Create(remotePath)
		if err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrTransfer, remotePath, err)
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return fmt.Errorf("%w: copy to %s: %v", ErrTransfer, remotePath, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("%w: close %s: %v", ErrTransfer, remotePath, err)
		}
		return ftp.Chmod(remotePath, info.Mode().Perm())
	})
}

// Get copies a file from the remote host over SFTP.
func (s *SSH) Get(ctx context.Context, remotePath, localPath string) error {
	return s.withSFTP(ctx, func(ftp *sftp.Client) error {
		in, err := ftp.Open(remotePath)
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", ErrTransfer, remotePath, err)
		}
		defer func() { _ = in.Close() }()

		if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
			return fmt.Errorf("%w: create parent of %s: %v", ErrTransfer, localPath, err)
		}
		out, err := os.Create(localPath)
		if err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrTransfer, localPath, err)
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return fmt.Errorf("%w: copy to %s: %v", ErrTransfer, localPath, err)
		}
		return out.Close()
	})
}

func (s *SSH) withSFTP(_ context.Context, fn func(*sftp.Client) error) error {
	client, err := s.connect()
	if err != nil {
		return err
	}
	ftp, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("open sftp channel: %w", err)
	}
	defer func() { _ = ftp.Close() }()
	return fn(ftp)
}

// Close tears down the SSH connection. Subsequent operations fail with
// ErrSessionClosed.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

// shellQuote wraps s in single quotes, escaping embedded single quotes, so
// paths with spaces or metacharacters survive the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
