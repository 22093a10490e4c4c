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
	Register("slurm", func(sess session.Session, cfg Config) Submitter {
		return NewSlurm(sess, cfg)
	})
}

// Slurm submits to a Slurm cluster with sbatch and tracks the job through
// sacct, falling back to squeue on clusters without accounting.
type Slurm struct {
	sess   session.Session
	cfg    Config
	logger *zap.Logger

	jobID string
}

var _ Submitter = (*Slurm)(nil)

// NewSlurm returns a Slurm submitter bound to sess.
func NewSlurm(sess session.Session, cfg Config) *Slurm {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Slurm{sess: sess, cfg: cfg, logger: cfg.logger()}
}

// Name is the backend name this submitter serves.
func (s *Slurm) Name() string { return "slurm" }

// Submit hands the submission file to sbatch and records the job id.
func (s *Slurm) Submit(ctx context.Context, submissionPath string) (string, error) {
	stdout, stderr, err := s.sess.Execute(ctx,
		fmt.Sprintf("sbatch --parsable %s", shq(submissionPath)))
	if err != nil {
		return "", fmt.Errorf("sbatch %s: %w (%s)", submissionPath, err, strings.TrimSpace(stderr))
	}

	// --parsable prints "jobid" or "jobid;cluster".
	id := strings.TrimSpace(stdout)
	if i := strings.IndexByte(id, ';'); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		return "", nil
	}
	s.jobID = id
	return id, nil
}

// Follow polls Slurm until the job reaches a terminal state.
func (s *Slurm) Follow(ctx context.Context) (Status, error) {
	if s.jobID == "" {
		return StatusNotFound, nil
	}

	var deadline time.Time
	if s.cfg.FollowTimeout > 0 {
		deadline = time.Now().Add(s.cfg.FollowTimeout)
	}

	limiter := rate.NewLimiter(rate.Every(s.cfg.PollInterval), 1)
	unknown := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}

		state, err := s.queryState(ctx)
		if err != nil {
			return "", err
		}
		s.logger.Debug("slurm job state", zap.String("job_id", s.jobID), zap.String("state", state))

		if state == "" {
			// Accounting can lag briefly after sbatch; only report NotFound
			// once the job has stayed unknown across several polls.
			unknown++
			if unknown < 3 {
				continue
			}
		} else {
			unknown = 0
		}

		if status, terminal := slurmTerminal(state); terminal {
			return status, nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return StatusTimedOut, nil
		}
	}
}

// queryState asks sacct for the job's state, falling back to squeue when
// accounting is unavailable.
func (s *Slurm) queryState(ctx context.Context) (string, error) {
	stdout, _, err := s.sess.Execute(ctx,
		fmt.Sprintf("sacct -j %s -X --noheader --format=State 2>/dev/null", shq(s.jobID)))
	if err == nil {
		if state := firstField(stdout); state != "" {
			return state, nil
		}
	}

	stdout, _, err = s.sess.Execute(ctx,
		fmt.Sprintf("squeue -h -j %s -o %%T 2>/dev/null", shq(s.jobID)))
	if err != nil {
		if _, ok := err.(*session.ExitError); ok {
			// Neither sacct nor squeue know the job.
			return "", nil
		}
		return "", fmt.Errorf("query slurm state for %s: %w", s.jobID, err)
	}
	return firstField(stdout), nil
}

// slurmTerminal maps a Slurm state string to a terminal Status. The second
// return is false while the job is still pending or running.
func slurmTerminal(state string) (Status, bool) {
	// CANCELLED can appear as "CANCELLED by 1000".
	switch {
	case state == "COMPLETED":
		return StatusCompleted, true
	case strings.HasPrefix(state, "CANCELLED"):
		return StatusCancelled, true
	case state == "TIMEOUT":
		return StatusTimedOut, true
	case state == "FAILED", state == "NODE_FAIL", state == "OUT_OF_MEMORY",
		state == "BOOT_FAIL", state == "DEADLINE", state == "PREEMPTED":
		return StatusFailed, true
	case state == "":
		return StatusNotFound, true
	default:
		// PENDING, RUNNING, COMPLETING, SUSPENDED, ...
		return "", false
	}
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
