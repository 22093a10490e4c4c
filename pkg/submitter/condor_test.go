package submitter

import (
	"context"
	"testing"
	"time"

	"github.com/offloadhq/offload/pkg/session"
)

func TestCondor_SubmitParsesClusterID(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "condor_submit -terse ", Stdout: "123.0 - 123.0\n"},
	}}
	c := NewCondor(sess, Config{})

	id, err := c.Submit(context.Background(), "/srv/meta/submit")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if id != "123.0" {
		t.Fatalf("cluster id mismatch: got=%q want=%q", id, "123.0")
	}
}

func TestCondor_SubmitFails(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "condor_submit -terse ", Stderr: "ERROR: no schedd\n",
			Err: &session.ExitError{Cmd: "condor_submit", Code: 1}},
	}}
	c := NewCondor(sess, Config{})

	if _, err := c.Submit(context.Background(), "/srv/meta/submit"); err == nil {
		t.Fatal("expected error when condor_submit fails")
	}
}

func TestCondor_FollowCompleted(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "condor_submit -terse ", Stdout: "123.0 - 123.0\n"},
		// Idle, then running, then gone from the queue.
		{Prefix: "condor_q ", Stdout: condorIdle, Times: 1},
		{Prefix: "condor_q ", Stdout: condorRunning, Times: 1},
		{Prefix: "condor_q ", Stdout: "", Err: &session.ExitError{Cmd: "condor_q", Code: 1}},
		{Prefix: "condor_history ", Stdout: condorCompleted},
	}}
	c := NewCondor(sess, Config{PollInterval: time.Millisecond})

	if _, err := c.Submit(context.Background(), "/srv/meta/submit"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	status, err := c.Follow(context.Background())
	if err != nil {
		t.Fatalf("Follow() error: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("status mismatch: got=%q want=%q", status, StatusCompleted)
	}
}

func TestCondor_FollowRemovedIsCancelled(t *testing.T) {
	sess := &scriptedSession{rules: []execRule{
		{Prefix: "condor_submit -terse ", Stdout: "123.0 - 123.0\n"},
		{Prefix: "condor_q ", Stdout: ""},
		{Prefix: "condor_history ", Stdout: condorRemoved},
	}}
	c := NewCondor(sess, Config{PollInterval: time.Millisecond})

	if _, err := c.Submit(context.Background(), "/srv/meta/submit"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	status, err := c.Follow(context.Background())
	if err != nil {
		t.Fatalf("Follow() error: %v", err)
	}
	if status != StatusCancelled {
		t.Fatalf("status mismatch: got=%q want=%q", status, StatusCancelled)
	}
}

func TestCondor_FollowWithoutJobID(t *testing.T) {
	c := NewCondor(&scriptedSession{}, Config{PollInterval: time.Millisecond})
	status, err := c.Follow(context.Background())
	if err != nil {
		t.Fatalf("Follow() error: %v", err)
	}
	if status != StatusNotFound {
		t.Fatalf("status mismatch: got=%q want=%q", status, StatusNotFound)
	}
}

func TestCondorTerminal(t *testing.T) {
	tests := []struct {
		code string
		want Status
	}{
		{condorCompleted, StatusCompleted},
		{condorRemoved, StatusCancelled},
		{condorIdle, StatusFailed},
		{condorHeld, StatusFailed},
		{"", StatusNotFound},
	}
	for _, tt := range tests {
		if got := condorTerminal(tt.code); got != tt.want {
			t.Errorf("condorTerminal(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
