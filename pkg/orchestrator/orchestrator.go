// Package orchestrator turns a job specification into a staged, dispatched,
// and tracked run on a compute resource.
//
// The lifecycle is a strictly forward, single-shot state machine:
//
//	CREATED -> PREPARED -> STAGED -> SUBMITTED -> FOLLOWED
//
// PrepareRemote stages input data, Submit renders and transfers the run and
// submission scripts and hands the latter to the backend, and Follow blocks
// until the backend reports a terminal state before retrieving outputs.
// Create one Orchestrator per submission attempt; instances are not reusable.
//
// Concurrency: one Orchestrator drives one job sequentially. Multiple
// orchestrators may share a single Session, which is required to be safe for
// concurrent use (see pkg/session).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/offloadhq/offload/pkg/jobspec"
	"github.com/offloadhq/offload/pkg/session"
	"github.com/offloadhq/offload/pkg/submitter"
	"github.com/offloadhq/offload/pkg/template"
)

// State is a lifecycle state of an Orchestrator instance.
type State string

const (
	StateCreated   State = "created"
	StatePrepared  State = "prepared"
	StateStaged    State = "staged"
	StateSubmitted State = "submitted"
	StateFollowed  State = "followed"
)

// Options configures an Orchestrator.
type Options struct {
	// Resource is the resource's name, used in the metadata directory layout
	// and log correlation. Required.
	Resource string

	// Backend selects the submission backend ("local", "slurm", "condor").
	// Defaults to "local".
	Backend string

	// Strategy selects the materialization strategy ("plain", "bundle",
	// "objectstore"). Defaults to "plain".
	Strategy string

	// Deps carries strategy collaborators (artifact store, local output
	// directory).
	Deps MaterializerDeps

	// TemplateDirs are user template directories searched before the
	// embedded defaults.
	TemplateDirs []string

	// PollInterval bounds backend status polling during Follow.
	PollInterval time.Duration

	// FollowTimeout caps how long Follow blocks. Zero means unbounded;
	// expiry yields the TimedOut terminal status, not an error.
	FollowTimeout time.Duration

	// Logger receives lifecycle events. Defaults to a nop logger.
	Logger *zap.Logger
}

// Orchestrator coordinates one job through its lifecycle.
type Orchestrator struct {
	resource string
	sess     session.Session
	sub      submitter.Submitter
	spec     *jobspec.Spec
	renderer *template.Renderer
	mat      Materializer
	logger   *zap.Logger

	jobID string

	rootOverride string
	rootOnce     sync.Once
	rootDir      string
	rootErr      error

	mu           sync.Mutex
	state        State
	submissionID string
	status       submitter.Status
}

// New builds an Orchestrator for one submission attempt.
//
// The caller's spec is cloned; the orchestrator never mutates the caller's
// copy. The root-directory override, if present, is consumed from the
// effective spec view here so it cannot be re-read later with a stale value.
func New(sess session.Session, spec *jobspec.Spec, opts Options) (*Orchestrator, error) {
	if sess == nil {
		return nil, fmt.Errorf("%w: session is required", ErrConfiguration)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if strings.TrimSpace(opts.Resource) == "" {
		return nil, fmt.Errorf("%w: resource name is required", ErrConfiguration)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mat, err := NewMaterializer(opts.Strategy, opts.Deps)
	if err != nil {
		return nil, err
	}

	backend := opts.Backend
	if backend == "" {
		backend = "local"
	}
	sub, err := submitter.New(backend, sess, submitter.Config{
		PollInterval:  opts.PollInterval,
		FollowTimeout: opts.FollowTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	local := spec.Clone()
	rootOverride := local.ConsumeRootDirectory()

	o := &Orchestrator{
		resource:     opts.Resource,
		sess:         sess,
		sub:          sub,
		spec:         local,
		renderer:     &template.Renderer{UserDirs: opts.TemplateDirs},
		mat:          mat,
		logger:       logger.With(zap.String("resource", opts.Resource)),
		jobID:        NewJobID(),
		rootOverride: rootOverride,
		state:        StateCreated,
	}
	o.logger = o.logger.With(zap.String("jobid", o.jobID))
	return o, nil
}

// JobID returns the job's stable identifier.
func (o *Orchestrator) JobID() string { return o.jobID }

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SubmissionID returns the backend's submission identifier, or "" if none
// was obtained.
func (o *Orchestrator) SubmissionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submissionID
}

// Status returns the terminal status observed by Follow, or "" before
// Follow completes.
func (o *Orchestrator) Status() submitter.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Session returns the execution binding to the resource. Strategies use it
// for data movement.
func (o *Orchestrator) Session() session.Session { return o.sess }

// Logger returns the orchestrator's job-scoped logger.
func (o *Orchestrator) Logger() *zap.Logger { return o.logger }

// Spec returns the orchestrator's effective (cloned) spec view.
func (o *Orchestrator) Spec() *jobspec.Spec { return o.spec }

// RootDirectory resolves the resource-wide base directory for all jobs of
// this tool.
//
// The result is memoized: repeated calls return the identical path and
// perform at most one resource query. An absolute override from the spec is
// returned verbatim without querying the resource; a relative override is a
// configuration error.
func (o *Orchestrator) RootDirectory(ctx context.Context) (string, error) {
	o.rootOnce.Do(func() {
		o.rootDir, o.rootErr = o.resolveRoot(ctx)
	})
	return o.rootDir, o.rootErr
}

func (o *Orchestrator) resolveRoot(ctx context.Context) (string, error) {
	if o.rootOverride != "" {
		if !path.IsAbs(o.rootOverride) {
			return "", fmt.Errorf("%w: root directory is not an absolute path: %s",
				ErrConfiguration, o.rootOverride)
		}
		return o.rootOverride, nil
	}

	stdout, _, err := o.sess.Execute(ctx, "printf '%s' \"$PWD\"")
	if err != nil {
		return "", fmt.Errorf("%w: querying remote working directory: %v", ErrResourceQuery, err)
	}
	remotePwd := strings.TrimSpace(stdout)
	if remotePwd == "" {
		return "", fmt.Errorf("%w: could not determine PWD on resource %s", ErrResourceQuery, o.resource)
	}

	root := path.Join(remotePwd, ".offload", "datasets")
	o.logger.Info("no root directory supplied; using default", zap.String("root", root))
	return root, nil
}

// WorkingDirectory is the strategy-defined directory in which the command
// runs, always under the root directory.
func (o *Orchestrator) WorkingDirectory(ctx context.Context) (string, error) {
	root, err := o.RootDirectory(ctx)
	if err != nil {
		return "", err
	}
	return o.mat.WorkingDirectory(root, o.jobID), nil
}

// MetaDirectory is the durable per-job metadata directory on the resource:
// working_directory/.offload/jobs/{resource}/{jobid}. Derived, no side
// effects.
func (o *Orchestrator) MetaDirectory(ctx context.Context) (string, error) {
	wd, err := o.WorkingDirectory(ctx)
	if err != nil {
		return "", err
	}
	return path.Join(wd, ".offload", "jobs", o.resource, o.jobID), nil
}

// PrepareRemote ensures the root directory exists on the resource, stages
// the inputs using the materialization strategy, and ensures the metadata
// directory exists. Idempotent with respect to directory creation.
func (o *Orchestrator) PrepareRemote(ctx context.Context, inputs []string) error {
	if err := o.requireState(StateCreated, "PrepareRemote"); err != nil {
		return err
	}

	root, err := o.RootDirectory(ctx)
	if err != nil {
		return o.fail("PrepareRemote", err)
	}

	exists, err := o.sess.Exists(ctx, root)
	if err != nil {
		return o.fail("PrepareRemote", fmt.Errorf("%w: checking root directory: %v", ErrResourceQuery, err))
	}
	if !exists {
		if err := o.sess.MkdirAll(ctx, root); err != nil {
			return o.fail("PrepareRemote", fmt.Errorf("create root directory %s: %w", root, err))
		}
	}

	if err := o.mat.Stage(ctx, o, inputs); err != nil {
		return o.fail("PrepareRemote", fmt.Errorf("stage inputs: %w", err))
	}

	meta, err := o.MetaDirectory(ctx)
	if err != nil {
		return o.fail("PrepareRemote", err)
	}
	if err := o.sess.MkdirAll(ctx, meta); err != nil {
		return o.fail("PrepareRemote", fmt.Errorf("create meta directory %s: %w", meta, err))
	}

	o.setState(StatePrepared)
	o.logger.Info("remote prepared", zap.String("root", root), zap.Int("inputs", len(inputs)))
	return nil
}

// RenderRunscript renders the run script. A pure function of the job id, the
// directory layout, and the spec fields; no remote side effects.
//
// templateName overrides the strategy's default runscript template.
func (o *Orchestrator) RenderRunscript(ctx context.Context, templateName string) (string, error) {
	if templateName == "" {
		templateName = o.mat.RunscriptTemplate()
	}
	vars, err := o.templateVars(ctx)
	if err != nil {
		return "", err
	}
	return o.renderer.RenderNamed(template.KindRunscript, templateName, vars)
}

// RenderSubmission renders the submission file handed to the backend.
//
// templateName overrides the backend's default submission template.
func (o *Orchestrator) RenderSubmission(ctx context.Context, templateName string) (string, error) {
	if templateName == "" {
		templateName = o.sub.Name() + ".template"
	}
	vars, err := o.templateVars(ctx)
	if err != nil {
		return "", err
	}
	return o.renderer.RenderNamed(template.KindSubmission, templateName, vars)
}

// templateVars flattens the spec fields and the orchestration variables into
// one map. Orchestration variables are reserved: a spec option of the same
// name cannot shadow them.
func (o *Orchestrator) templateVars(ctx context.Context) (map[string]any, error) {
	root, err := o.RootDirectory(ctx)
	if err != nil {
		return nil, err
	}
	wd, err := o.WorkingDirectory(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := o.MetaDirectory(ctx)
	if err != nil {
		return nil, err
	}

	vars := o.spec.TemplateVars()
	vars["jobid"] = o.jobID
	vars["root_directory"] = root
	vars["remote_directory"] = wd
	vars["meta_directory"] = meta
	return vars, nil
}

// Submit renders the run and submission scripts, transfers them to the
// metadata directory, hands the submission file to the backend, and persists
// the submission id to the idmap file.
//
// Rendering happens before any transfer, so a bad template never leaves
// partial remote state beyond the directories PrepareRemote already created.
// Local temporary files are deleted on all exit paths. A backend that
// returns no submission id is logged, not an error: some backends are
// fire-and-forget.
func (o *Orchestrator) Submit(ctx context.Context) error {
	if err := o.requireState(StatePrepared, "Submit"); err != nil {
		return err
	}

	runscript, err := o.RenderRunscript(ctx, "")
	if err != nil {
		return o.fail("Submit", err)
	}
	submission, err := o.RenderSubmission(ctx, "")
	if err != nil {
		return o.fail("Submit", err)
	}

	meta, err := o.MetaDirectory(ctx)
	if err != nil {
		return o.fail("Submit", err)
	}

	if err := o.putRendered(ctx, runscript, path.Join(meta, "runscript")); err != nil {
		return o.fail("Submit", err)
	}
	submissionPath := path.Join(meta, "submit")
	if err := o.putRendered(ctx, submission, submissionPath); err != nil {
		return o.fail("Submit", err)
	}
	o.setState(StateStaged)

	subID, err := o.sub.Submit(ctx, submissionPath)
	if err != nil {
		return o.fail("Submit", fmt.Errorf("%w: %v", ErrSubmission, err))
	}

	if subID == "" {
		o.logger.Warn("no submission id obtained; job may be fire-and-forget")
	} else {
		o.logger.Info("job submitted", zap.String("submission_id", subID))
		idmap := path.Join(meta, "idmap")
		if _, _, err := o.sess.Execute(ctx,
			fmt.Sprintf("printf '%%s\\n' %s >%s", shq(subID), shq(idmap))); err != nil {
			return o.fail("Submit", fmt.Errorf("persist idmap: %w", err))
		}
		o.mu.Lock()
		o.submissionID = subID
		o.mu.Unlock()
	}

	o.setState(StateSubmitted)
	return nil
}

// putRendered writes content to a local temporary file, marks it executable,
// transfers it to remotePath, and removes the temporary file regardless of
// transfer success.
func (o *Orchestrator) putRendered(ctx context.Context, content, remotePath string) error {
	tmp, err := os.CreateTemp("", "offload-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o755); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := o.sess.Put(ctx, tmpName, remotePath); err != nil {
		return fmt.Errorf("transfer %s: %w", remotePath, err)
	}
	return nil
}

// Follow blocks until the backend reports a terminal state, then retrieves
// the named outputs with the materialization strategy.
//
// A missing expected output is logged and ignored: the job's own recorded
// exit status, reflected in the returned terminal status, is authoritative.
func (o *Orchestrator) Follow(ctx context.Context, outputs []string) (submitter.Status, error) {
	if err := o.requireState(StateSubmitted, "Follow"); err != nil {
		return "", err
	}

	status, err := o.sub.Follow(ctx)
	if err != nil {
		return "", o.fail("Follow", err)
	}
	o.logger.Info("job reached terminal state", zap.String("status", string(status)))

	if err := o.mat.Retrieve(ctx, o, outputs); err != nil {
		return "", o.fail("Follow", fmt.Errorf("retrieve outputs: %w", err))
	}

	o.mu.Lock()
	o.status = status
	o.mu.Unlock()
	o.setState(StateFollowed)
	return status, nil
}

// Run drives the complete lifecycle: PrepareRemote, Submit, Follow. This is
// the library entry point the CLI wraps.
func (o *Orchestrator) Run(ctx context.Context) (submitter.Status, error) {
	if err := o.PrepareRemote(ctx, o.spec.Inputs); err != nil {
		return "", err
	}
	if err := o.Submit(ctx); err != nil {
		return "", err
	}
	return o.Follow(ctx, o.spec.Outputs)
}

func (o *Orchestrator) requireState(want State, op string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != want {
		return &Error{Op: op, JobID: o.jobID,
			Err: fmt.Errorf("%w: requires state %q, currently %q", ErrLifecycle, want, o.state)}
	}
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.Debug("state transition", zap.String("state", string(s)))
}

func (o *Orchestrator) fail(op string, err error) error {
	return &Error{Op: op, JobID: o.jobID, Err: err}
}

// shq single-quotes s for the remote shell.
func shq(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
