package submitter

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/offloadhq/offload/pkg/session"
)

func init() {
	Register("local", func(sess session.Session, cfg Config) Submitter {
		return NewLocal(sess, cfg)
	})
}

// Local executes the submission file immediately on the resource.
//
// Submit runs the submission file through the session's shell; the file is
// expected to detach the run script and print the pid, which becomes the
// submission id. Follow polls pid liveness, then reads the run script's
// recorded exit status from the status file next to the submission file.
type Local struct {
	sess   session.Session
	cfg    Config
	logger *zap.Logger

	pid     int
	metaDir string
}

var _ Submitter = (*Local)(nil)

// NewLocal returns a local-execution submitter bound to sess.
func NewLocal(sess session.Session, cfg Config) *Local {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Local{sess: sess, cfg: cfg, logger: cfg.logger()}
}

// Name is the backend name this submitter serves.
func (l *Local) Name() string { return "local" }

// Submit runs the submission file and captures the printed pid.
func (l *Local) Submit(ctx context.Context, submissionPath string) (string, error) {
	stdout, stderr, err := l.sess.Execute(ctx, fmt.Sprintf("/bin/sh %s", shq(submissionPath)))
	if err != nil {
		return "", fmt.Errorf("local submit %s: %w (%s)", submissionPath, err, strings.TrimSpace(stderr))
	}

	l.metaDir = path.Dir(submissionPath)

	pidStr := strings.TrimSpace(stdout)
	if pidStr == "" {
		// Fire-and-forget submission file; nothing to track.
		return "", nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return "", fmt.Errorf("local submit: unparseable pid %q", pidStr)
	}
	l.pid = pid
	return pidStr, nil
}

// Follow waits for the detached process to exit, then maps the recorded exit
// status to a terminal state.
func (l *Local) Follow(ctx context.Context) (Status, error) {
	if l.pid <= 0 {
		// No trackable pid; fall back to the status file alone.
		return l.readStatus(ctx)
	}

	var deadline time.Time
	if l.cfg.FollowTimeout > 0 {
		deadline = time.Now().Add(l.cfg.FollowTimeout)
	}

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		_, _, err := l.sess.Execute(ctx, fmt.Sprintf("kill -0 %d 2>/dev/null", l.pid))
		if err != nil {
			// kill -0 failing means the process is gone.
			break
		}
		l.logger.Debug("local job still running", zap.Int("pid", l.pid))

		if !deadline.IsZero() && time.Now().After(deadline) {
			return StatusTimedOut, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}

	return l.readStatus(ctx)
}

// readStatus reads the exit status the run script recorded next to the
// submission file.
func (l *Local) readStatus(ctx context.Context) (Status, error) {
	if l.metaDir == "" {
		return StatusNotFound, nil
	}
	statusPath := path.Join(l.metaDir, "status")
	stdout, _, err := l.sess.Execute(ctx, fmt.Sprintf("cat %s 2>/dev/null", shq(statusPath)))
	if err != nil {
		l.logger.Warn("status file unreadable; treating job as failed",
			zap.String("path", statusPath), zap.Error(err))
		return StatusFailed, nil
	}
	code := strings.TrimSpace(stdout)
	if code == "" {
		l.logger.Warn("status file missing or empty; treating job as failed",
			zap.String("path", statusPath))
		return StatusFailed, nil
	}
	if code == "0" {
		return StatusCompleted, nil
	}
	return StatusFailed, nil
}

// shq single-quotes s for the remote shell.
func shq(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
