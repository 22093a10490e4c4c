// Package submitter abstracts batch-submission backends.
//
// A Submitter knows how to hand a rendered submission file to one backend
// (immediate local execution, or a queued scheduler such as Slurm or HTCondor),
// obtain a trackable submission id, and block until the submission reaches a
// terminal state.
//
// Backends are selected from an explicit registration table, not by runtime
// name-to-type lookup. Each Submitter is bound to exactly one Session at
// construction and must not be reused across resources.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/offloadhq/offload/pkg/session"
)

// Status is a terminal submission status. No further transitions occur from
// any of these values.
type Status string

const (
	// StatusCompleted means the submission finished with a zero exit status.
	StatusCompleted Status = "completed"

	// StatusFailed means the submission finished unsuccessfully.
	StatusFailed Status = "failed"

	// StatusCancelled means the submission was removed before completion.
	StatusCancelled Status = "cancelled"

	// StatusTimedOut means the optional follow timeout expired before the
	// backend reported a terminal state.
	StatusTimedOut Status = "timed-out"

	// StatusNotFound means the backend has no record of the submission.
	StatusNotFound Status = "not-found"
)

// Terminal reports whether s is a terminal status. All Status values are
// terminal; this exists for readability at call sites that also handle raw
// backend states.
func (s Status) Terminal() bool {
	return s != ""
}

// ErrUnknownBackend indicates the requested backend name has no registered
// submitter.
var ErrUnknownBackend = errors.New("unknown submission backend")

// Submitter hands a submission artifact to one batch backend and tracks it.
type Submitter interface {
	// Name is the backend name this submitter serves.
	Name() string

	// Submit hands the resource-local submission file to the backend and
	// returns the backend's submission id. An empty id with a nil error
	// means the backend provided no trackable identifier.
	Submit(ctx context.Context, submissionPath string) (string, error)

	// Follow blocks until the submission reaches a terminal state and
	// returns it. If Config.FollowTimeout was set and expires first, the
	// returned status is StatusTimedOut.
	Follow(ctx context.Context) (Status, error)
}

// Config carries backend-independent submitter settings.
type Config struct {
	// PollInterval bounds how often queued backends query status.
	// Defaults to 10s for queued backends and 1s for local execution.
	PollInterval time.Duration

	// FollowTimeout caps how long Follow blocks. Zero means unbounded.
	FollowTimeout time.Duration

	// Logger receives poll and state-transition events. Defaults to a nop
	// logger.
	Logger *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// Factory constructs a Submitter bound to the given session.
type Factory func(sess session.Session, cfg Config) Submitter

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a backend factory to the registration table. Backends
// register themselves from init; Register panics on duplicates to surface
// wiring mistakes at startup.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("submitter: duplicate registration for %q", name))
	}
	registry[name] = f
}

// New constructs the named backend's submitter bound to sess.
func New(name string, sess session.Session, cfg Config) (Submitter, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownBackend, name, Names())
	}
	return f(sess, cfg), nil
}

// Names returns the registered backend names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
