package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/offloadhq/offload/pkg/registry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect recorded runs",
	Long: `Inspect the local record of orchestrated runs.

Every run leaves a record under the tool data dir with stable job ids,
predictable on-disk locations, and optional JSON output for machine parsing.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show the record for one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store := registry.NewStore(cfg.RunsDir())
	runs, err := store.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No runs recorded")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tRESOURCE\tBACKEND\tSTATE\tCREATED\tENDED\tCOMMAND")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.JobID,
			r.Resource,
			orDash(r.Backend),
			r.State,
			r.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(r.EndedAt),
			truncateCommand(r.Command),
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store := registry.NewStore(cfg.RunsDir())
	jobID, err := resolveJobID(store, args[0])
	if err != nil {
		return err
	}
	rec, err := store.Get(jobID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", rec.JobID)
	_, _ = fmt.Fprintf(os.Stdout, "resource=%s\n", rec.Resource)
	_, _ = fmt.Fprintf(os.Stdout, "backend=%s\n", rec.Backend)
	if rec.Strategy != "" {
		_, _ = fmt.Fprintf(os.Stdout, "strategy=%s\n", rec.Strategy)
	}
	_, _ = fmt.Fprintf(os.Stdout, "state=%s\n", rec.State)
	_, _ = fmt.Fprintf(os.Stdout, "command=%s\n", rec.Command)
	if rec.SubmissionID != "" {
		_, _ = fmt.Fprintf(os.Stdout, "submission_id=%s\n", rec.SubmissionID)
	}
	if rec.WorkingDirectory != "" {
		_, _ = fmt.Fprintf(os.Stdout, "working_directory=%s\n", rec.WorkingDirectory)
	}
	if rec.MetaDirectory != "" {
		_, _ = fmt.Fprintf(os.Stdout, "meta_directory=%s\n", rec.MetaDirectory)
	}
	_, _ = fmt.Fprintf(os.Stdout, "created_at=%s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	if rec.SubmittedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "submitted_at=%s\n", rec.SubmittedAt.UTC().Format(time.RFC3339))
	}
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// resolveJobID accepts a full job id or a unique prefix of one.
func resolveJobID(store *registry.Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job_id is required")
	}

	// Exact match first.
	if _, err := store.Get(input); err == nil {
		return input, nil
	}

	runs, err := store.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, r := range runs {
		if strings.HasPrefix(r.JobID, input) {
			matches = append(matches, r.JobID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("job not found: %s", input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("job id prefix is ambiguous (%d matches); use the full job_id", len(matches))
	}
	return matches[0], nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func truncateCommand(cmd string) string {
	cmd = strings.Join(strings.Fields(cmd), " ")
	if len(cmd) <= 48 {
		return cmd
	}
	return cmd[:45] + "..."
}
