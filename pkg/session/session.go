// Package session defines the execution and transport binding to a single
// compute resource.
//
// A Session is the narrow surface the orchestration engine needs from a
// resource: run a command, check a path, make directories, and move files in
// both directions. How that surface is realized (local subprocess, SSH) is a
// per-implementation concern.
//
// Sessions must be safe for concurrent use: multiple orchestrators may share
// one Session while independently progressing through their own job
// lifecycles.
package session

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for session operations.
var (
	// ErrSessionClosed indicates the session has been closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrTransfer indicates a file transfer to or from the resource failed.
	ErrTransfer = errors.New("file transfer failed")
)

// Session executes commands and moves files against one resource.
//
// Implementations must be safe to invoke concurrently from independent jobs.
type Session interface {
	// Execute runs cmd through the resource's shell and returns the captured
	// stdout and stderr. A non-zero exit status is returned as an error with
	// stdout/stderr still populated.
	Execute(ctx context.Context, cmd string) (stdout, stderr string, err error)

	// Exists reports whether path exists on the resource.
	Exists(ctx context.Context, path string) (bool, error)

	// MkdirAll creates path and any missing parents on the resource.
	// It is a no-op if the directory already exists.
	MkdirAll(ctx context.Context, path string) error

	// Put copies a local file to remotePath on the resource, preserving the
	// local file's mode bits.
	Put(ctx context.Context, localPath, remotePath string) error

	// Get copies a file from the resource to localPath, creating parent
	// directories as needed.
	Get(ctx context.Context, remotePath, localPath string) error

	// Close releases any resources held by the session.
	Close() error
}

// ExitError carries the exit status of a command that ran but failed.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d: %s", e.Code, e.Cmd)
}
