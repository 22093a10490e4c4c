package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// jobIDStampLayout carries microseconds so that ids minted close together
// still sort by creation time and never reuse a timestamp.
const jobIDStampLayout = "20060102-150405.000000"

var (
	jobIDMu        sync.Mutex
	jobIDLastStamp string
)

// NewJobID produces a job identifier of the form
// <UTC-timestamp>-<4-hex-random>, e.g. "20260829-142501.184233-9f3a".
//
// The timestamp keeps ids sortable and human-readable. Generation waits for
// the clock to advance past the previous id's timestamp, so every id minted
// by one process is distinct regardless of the random suffix.
func NewJobID() string {
	jobIDMu.Lock()
	defer jobIDMu.Unlock()
	for {
		stamp := time.Now().UTC().Format(jobIDStampLayout)
		if stamp != jobIDLastStamp {
			jobIDLastStamp = stamp
			return stamp + "-" + randomSuffix()
		}
	}
}

func newJobIDAt(t time.Time) string {
	return t.UTC().Format(jobIDStampLayout) + "-" + randomSuffix()
}

func randomSuffix() string {
	return uuid.New().String()[:4]
}
