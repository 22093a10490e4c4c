package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/offloadhq/offload/internal/observability"
	"github.com/offloadhq/offload/pkg/artifact"
	"github.com/offloadhq/offload/pkg/jobspec"
	"github.com/offloadhq/offload/pkg/orchestrator"
	"github.com/offloadhq/offload/pkg/registry"
	"github.com/offloadhq/offload/pkg/submitter"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a job from a spec file on a configured resource",
	Long: `Run a job as described in a YAML or JSON job spec file.

The spec names the command, its inputs, and its expected outputs. The
orchestrator stages the inputs to the resource, renders and submits the run
script through the chosen backend, and retrieves the outputs once the job
reaches a terminal state.

Example:
  offload run --job job.yaml --resource cluster
  offload run --job job.yaml --resource localhost --backend local
  offload run --job job.yaml --resource cluster --strategy bundle --no-follow`,
	RunE: runRun,
}

var (
	runJobPath  string
	runResource string
	runBackend  string
	runStrategy string
	runNoFollow bool
	runTimeout  time.Duration
	runOutDir   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runJobPath, "job", "j", "", "Path to job spec file (required)")
	runCmd.Flags().StringVarP(&runResource, "resource", "r", "localhost", "Configured resource to run on")
	runCmd.Flags().StringVarP(&runBackend, "backend", "b", "", "Submission backend (default: the resource's configured backend)")
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "plain", "Materialization strategy (plain|bundle|objectstore)")
	runCmd.Flags().BoolVar(&runNoFollow, "no-follow", false, "Submit and exit without waiting for completion")
	runCmd.Flags().DurationVar(&runTimeout, "follow-timeout", 0, "Cap on how long to wait for completion (0 = unbounded)")
	runCmd.Flags().StringVarP(&runOutDir, "output-dir", "o", "", "Local directory for retrieved outputs (default: current directory)")

	_ = runCmd.MarkFlagRequired("job")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	spec, err := jobspec.Load(runJobPath)
	if err != nil {
		logger.Error("failed to load job spec", zap.String("path", runJobPath), zap.Error(err))
		return err
	}

	res, err := cfg.Resource(runResource)
	if err != nil {
		return err
	}
	sess, err := res.NewSession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	backend := runBackend
	if backend == "" {
		backend = res.Backend
	}

	deps := orchestrator.MaterializerDeps{LocalDir: runOutDir}
	if runStrategy == "objectstore" {
		if cfg.Artifacts == nil {
			return fmt.Errorf("objectstore strategy requires an artifacts section in offload.yaml")
		}
		store, err := artifact.New(ctx, *cfg.Artifacts)
		if err != nil {
			return err
		}
		deps.Artifacts = store
	}

	// Honor the resource-level root override unless the spec carries one.
	if spec.RootDirectory == "" && res.RootDirectory != "" {
		spec = spec.Clone()
		spec.RootDirectory = res.RootDirectory
	}

	timeout := runTimeout
	if timeout == 0 {
		timeout = cfg.FollowTimeout
	}

	o, err := orchestrator.New(sess, spec, orchestrator.Options{
		Resource:      runResource,
		Backend:       backend,
		Strategy:      runStrategy,
		Deps:          deps,
		TemplateDirs:  cfg.TemplateDirs,
		PollInterval:  cfg.PollInterval,
		FollowTimeout: timeout,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	store := registry.NewStore(cfg.RunsDir())
	record := &registry.RunRecord{
		JobID:     o.JobID(),
		Resource:  runResource,
		Backend:   backend,
		Strategy:  runStrategy,
		State:     registry.RunStateQueued,
		Command:   spec.Command,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Write(record); err != nil {
		logger.Warn("failed to record run locally", zap.Error(err))
	}

	fmt.Fprintf(os.Stdout, "job %s\n", o.JobID())

	if err := o.PrepareRemote(ctx, spec.Inputs); err != nil {
		_ = store.UpdateState(o.JobID(), registry.RunStateFailed)
		return err
	}
	recordDirs(ctx, store, o, record)

	if err := o.Submit(ctx); err != nil {
		_ = store.UpdateState(o.JobID(), registry.RunStateFailed)
		return err
	}
	record.SubmissionID = o.SubmissionID()
	record.State = registry.RunStateSubmitted
	now := time.Now().UTC()
	record.SubmittedAt = &now
	if err := store.Write(record); err != nil {
		logger.Warn("failed to update run record", zap.Error(err))
	}

	if runNoFollow {
		fmt.Fprintf(os.Stdout, "submitted (id %s); not following\n", orDash(o.SubmissionID()))
		return nil
	}

	status, err := o.Follow(ctx, spec.Outputs)
	if err != nil {
		_ = store.UpdateState(o.JobID(), registry.RunStateUnknown)
		return err
	}
	_ = store.UpdateState(o.JobID(), stateForStatus(status))

	fmt.Fprintf(os.Stdout, "job %s finished: %s\n", o.JobID(), status)
	if status != submitter.StatusCompleted {
		return fmt.Errorf("job %s did not complete: %s", o.JobID(), status)
	}
	return nil
}

func recordDirs(ctx context.Context, store *registry.Store, o *orchestrator.Orchestrator, record *registry.RunRecord) {
	if wd, err := o.WorkingDirectory(ctx); err == nil {
		record.WorkingDirectory = wd
	}
	if meta, err := o.MetaDirectory(ctx); err == nil {
		record.MetaDirectory = meta
	}
	record.State = registry.RunStateQueued
	_ = store.Write(record)
}

func stateForStatus(status submitter.Status) registry.RunState {
	switch status {
	case submitter.StatusCompleted:
		return registry.RunStateCompleted
	case submitter.StatusCancelled:
		return registry.RunStateCancelled
	case submitter.StatusTimedOut:
		return registry.RunStateTimedOut
	case submitter.StatusNotFound:
		return registry.RunStateUnknown
	default:
		return registry.RunStateFailed
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
