package submitter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/offloadhq/offload/pkg/session"
)

func init() {
	Register("condor", func(sess session.Session, cfg Config) Submitter {
		return NewCondor(sess, cfg)
	})
}

// HTCondor JobStatus codes as reported by condor_q/condor_history.
const (
	condorIdle      = "1"
	condorRunning   = "2"
	condorRemoved   = "3"
	condorCompleted = "4"
	condorHeld      = "5"
)

// Condor submits to an HTCondor pool with condor_submit and tracks the job
// through condor_q, consulting condor_history once the job leaves the queue.
type Condor struct {
	sess   session.Session
	cfg    Config
	logger *zap.Logger

	jobID string
}

var _ Submitter = (*Condor)(nil)

// NewCondor returns an HTCondor submitter bound to sess.
func NewCondor(sess session.Session, cfg Config) *Condor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Condor{sess: sess, cfg: cfg, logger: cfg.logger()}
}

// Name is the backend name this submitter serves.
func (c *Condor) Name() string { return "condor" }

// Submit hands the submission file to condor_submit and records the cluster
// id.
func (c *Condor) Submit(ctx context.Context, submissionPath string) (string, error) {
	stdout, stderr, err := c.sess.Execute(ctx,
		fmt.Sprintf("condor_submit -terse %s", shq(submissionPath)))
	if err != nil {
		return "", fmt.Errorf("condor_submit %s: %w (%s)", submissionPath, err, strings.TrimSpace(stderr))
	}

	// -terse prints "first.proc - last.proc"; a single-proc submit yields
	// "123.0 - 123.0".
	id := firstField(stdout)
	if id == "" {
		return "", nil
	}
	c.jobID = id
	return id, nil
}

// Follow polls HTCondor until the job reaches a terminal state.
func (c *Condor) Follow(ctx context.Context) (Status, error) {
	if c.jobID == "" {
		return StatusNotFound, nil
	}

	var deadline time.Time
	if c.cfg.FollowTimeout > 0 {
		deadline = time.Now().Add(c.cfg.FollowTimeout)
	}

	limiter := rate.NewLimiter(rate.Every(c.cfg.PollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}

		code, inQueue, err := c.queryStatus(ctx)
		if err != nil {
			return "", err
		}
		c.logger.Debug("condor job status",
			zap.String("job_id", c.jobID),
			zap.String("code", code),
			zap.Bool("in_queue", inQueue))

		if !inQueue {
			return condorTerminal(code), nil
		}
		// Idle, running, held, and transfer states keep the job in queue.

		if !deadline.IsZero() && time.Now().After(deadline) {
			return StatusTimedOut, nil
		}
	}
}

// queryStatus returns the JobStatus code and whether the job is still in the
// queue. Once the job leaves condor_q, the code comes from condor_history.
func (c *Condor) queryStatus(ctx context.Context) (string, bool, error) {
	stdout, _, err := c.sess.Execute(ctx,
		fmt.Sprintf("condor_q -format '%%d' JobStatus %s 2>/dev/null", shq(c.jobID)))
	if err != nil {
		if _, ok := err.(*session.ExitError); !ok {
			return "", false, fmt.Errorf("condor_q %s: %w", c.jobID, err)
		}
	}
	if code := strings.TrimSpace(stdout); code != "" {
		return code, true, nil
	}

	stdout, _, err = c.sess.Execute(ctx,
		fmt.Sprintf("condor_history -limit 1 -format '%%d' JobStatus %s 2>/dev/null", shq(c.jobID)))
	if err != nil {
		if _, ok := err.(*session.ExitError); !ok {
			return "", false, fmt.Errorf("condor_history %s: %w", c.jobID, err)
		}
	}
	return strings.TrimSpace(stdout), false, nil
}

// condorTerminal maps a history JobStatus code to a terminal Status.
func condorTerminal(code string) Status {
	switch code {
	case condorCompleted:
		return StatusCompleted
	case condorRemoved:
		return StatusCancelled
	case "":
		return StatusNotFound
	default:
		return StatusFailed
	}
}
