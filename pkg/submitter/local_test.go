package submitter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/offloadhq/offload/pkg/session"
)

func TestLocal_SubmitParsesPid(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stdout: "12345\n"},
	}}
	l := NewLocal(sess, Config{})

	id, err := l.Submit(context.Background(), "/srv/meta/submit")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if id != "12345" {
		t.Fatalf("submission id mismatch: got=%q want=%q", id, "12345")
	}
}

func TestLocal_SubmitNoPidIsFireAndForget(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stdout: "\n"},
	}}
	l := NewLocal(sess, Config{})

	id, err := l.Submit(context.Background(), "/srv/meta/submit")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty submission id, got %q", id)
	}
}

func TestLocal_SubmitUnparseablePid(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stdout: "not-a-pid\n"},
	}}
	l := NewLocal(sess, Config{})

	if _, err := l.Submit(context.Background(), "/srv/meta/submit"); err == nil {
		t.Fatal("expected error for unparseable pid")
	}
}

func TestLocal_SubmitCommandFails(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stderr: "sh: not found\n",
			Err: &session.ExitError{Cmd: "/bin/sh", Code: 127}},
	}}
	l := NewLocal(sess, Config{})

	if _, err := l.Submit(context.Background(), "/srv/meta/submit"); err == nil {
		t.Fatal("expected error when the submission command fails")
	}
}

func TestLocal_FollowCompleted(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stdout: "12345\n"},
		// First liveness probe sees the process, second sees it gone.
		{Prefix: "kill -0 12345", Times: 1},
		{Prefix: "kill -0 12345", Err: &session.ExitError{Cmd: "kill", Code: 1}},
		{Prefix: "cat ", Stdout: "0\n"},
	}}
	l := NewLocal(sess, Config{PollInterval: time.Millisecond})

	if _, err := l.Submit(context.Background(), "/srv/meta/submit"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	status, err := l.Follow(context.Background())
	if err != nil {
		t.Fatalf("Follow() error: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("status mismatch: got=%q want=%q", status, StatusCompleted)
	}

	// The status file is read from the submission file's directory.
	for _, cmd := range sess.executed() {
		if strings.HasPrefix(cmd, "cat ") && !strings.Contains(cmd, "/srv/meta/status") {
			t.Fatalf("status read from wrong path: %q", cmd)
		}
	}
}

func TestLocal_FollowNonZeroStatusFails(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stdout: "12345\n"},
		{Prefix: "kill -0 12345", Err: &session.ExitError{Cmd: "kill", Code: 1}},
		{Prefix: "cat ", Stdout: "2\n"},
	}}
	l := NewLocal(sess, Config{PollInterval: time.Millisecond})

	if _, err := l.Submit(context.Background(), "/srv/meta/submit"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	status, err := l.Follow(context.Background())
	if err != nil {
		t.Fatalf("Follow() error: %v", err)
	}
	if status != StatusFailed {
		t.Fatalf("status mismatch: got=%q want=%q", status, StatusFailed)
	}
}

func TestLocal_FollowMissingStatusFileFails(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stdout: "12345\n"},
		{Prefix: "kill -0 12345", Err: &session.ExitError{Cmd: "kill", Code: 1}},
		// cat with 2>/dev/null prints nothing and exits 1 on a missing file,
		// but the shell command itself still succeeds through the redirect.
		{Prefix: "cat ", Stdout: ""},
	}}
	l := NewLocal(sess, Config{PollInterval: time.Millisecond})

	if _, err := l.Submit(context.Background(), "/srv/meta/submit"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	status, err := l.Follow(context.Background())
	if err != nil {
		t.Fatalf("Follow() error: %v", err)
	}
	if status != StatusFailed {
		t.Fatalf("missing status file should map to failed, got %q", status)
	}
}

func TestLocal_FollowTimeout(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stdout: "12345\n"},
		// Process never exits.
		{Prefix: "kill -0 12345"},
	}}
	l := NewLocal(sess, Config{
		PollInterval:  time.Millisecond,
		FollowTimeout: 10 * time.Millisecond,
	})

	if _, err := l.Submit(context.Background(), "/srv/meta/submit"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	status, err := l.Follow(context.Background())
	if err != nil {
		t.Fatalf("Follow() error: %v", err)
	}
	if status != StatusTimedOut {
		t.Fatalf("status mismatch: got=%q want=%q", status, StatusTimedOut)
	}
}

func TestLocal_FollowContextCancelled(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "/bin/sh ", Stdout: "12345\n"},
		{Prefix: "kill -0 12345"},
	}}
	l := NewLocal(sess, Config{PollInterval: 5 * time.Millisecond})

	if _, err := l.Submit(context.Background(), "/srv/meta/submit"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Follow(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
