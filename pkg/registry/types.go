package registry

import "time"

// RunState is the lifecycle state of a recorded run.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type RunState string

const (
	RunStateQueued    RunState = "queued"
	RunStateSubmitted RunState = "submitted"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
	RunStateTimedOut  RunState = "timed-out"
	RunStateUnknown   RunState = "unknown"
)

// Terminal reports whether no further transitions occur from s.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled, RunStateTimedOut:
		return true
	}
	return false
}

// RunRecord is the persistent record written to job.json on the caller's
// host. It is the local mirror of the durable metadata the orchestrator
// leaves on the resource.
//
// The schema is designed for backward-compatible extension (additive fields).
type RunRecord struct {
	JobID        string   `json:"job_id"`
	Resource     string   `json:"resource"`
	Backend      string   `json:"backend"`
	Strategy     string   `json:"strategy,omitempty"`
	State        RunState `json:"state"`
	Command      string   `json:"command"`
	SubmissionID string   `json:"submission_id,omitempty"`

	// WorkingDirectory and MetaDirectory are paths on the resource, kept so
	// a human can find the run's durable artifacts without rerunning.
	WorkingDirectory string `json:"working_directory,omitempty"`
	MetaDirectory    string `json:"meta_directory,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}
