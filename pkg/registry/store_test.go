package registry

import (
	"testing"
	"time"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rec := &RunRecord{
		JobID:            "20260829-120000-ab12",
		Resource:         "cluster",
		Backend:          "slurm",
		Strategy:         "plain",
		State:            RunStateSubmitted,
		Command:          "echo hi",
		SubmissionID:     "4242",
		WorkingDirectory: "/srv/.offload/datasets/20260829-120000-ab12",
		CreatedAt:        now,
		SubmittedAt:      &now,
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get(rec.JobID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.JobID != rec.JobID {
		t.Fatalf("job_id mismatch: got=%q want=%q", got.JobID, rec.JobID)
	}
	if got.State != RunStateSubmitted {
		t.Fatalf("state mismatch: got=%q want=%q", got.State, RunStateSubmitted)
	}
	if got.SubmissionID != "4242" {
		t.Fatalf("submission_id not persisted: %q", got.SubmissionID)
	}
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(now) {
		t.Fatalf("submitted_at not persisted: %v", got.SubmittedAt)
	}
}

func TestStore_WriteRequiresJobID(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Write(&RunRecord{}); err == nil {
		t.Fatal("expected error for record without job_id")
	}
	if err := s.Write(nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestStore_UpdateStateStampsTimestamps(t *testing.T) {
	s := NewStore(t.TempDir())

	created := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rec := &RunRecord{JobID: "job-1", Resource: "localhost", Backend: "local",
		State: RunStateQueued, Command: "true", CreatedAt: created}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if err := s.UpdateState("job-1", RunStateSubmitted); err != nil {
		t.Fatalf("UpdateState(submitted) error: %v", err)
	}
	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != RunStateSubmitted {
		t.Fatalf("state mismatch: %q", got.State)
	}
	if got.SubmittedAt == nil {
		t.Fatal("submitted_at not stamped")
	}
	if got.EndedAt != nil {
		t.Fatal("ended_at stamped prematurely")
	}

	if err := s.UpdateState("job-1", RunStateCompleted); err != nil {
		t.Fatalf("UpdateState(completed) error: %v", err)
	}
	got, err = s.Get("job-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.EndedAt == nil {
		t.Fatal("ended_at not stamped for terminal state")
	}
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	t1 := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 29, 13, 0, 0, 0, time.UTC)

	if err := s.Write(&RunRecord{JobID: "job-1", Resource: "a", State: RunStateQueued, Command: "x", CreatedAt: t1}); err != nil {
		t.Fatalf("Write job-1: %v", err)
	}
	if err := s.Write(&RunRecord{JobID: "job-2", Resource: "a", State: RunStateQueued, Command: "x", CreatedAt: t2}); err != nil {
		t.Fatalf("Write job-2: %v", err)
	}

	runs, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].JobID != "job-2" || runs[1].JobID != "job-1" {
		t.Fatalf("runs not sorted newest first: %v, %v", runs[0].JobID, runs[1].JobID)
	}
}

func TestStore_ListEmptyRoot(t *testing.T) {
	s := NewStore(t.TempDir())
	runs, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}

func TestRunState_Terminal(t *testing.T) {
	terminal := []RunState{RunStateCompleted, RunStateFailed, RunStateCancelled, RunStateTimedOut}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []RunState{RunStateQueued, RunStateSubmitted, RunStateRunning, RunStateUnknown} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}
