// Package cmd implements the offload command-line interface. The CLI is a
// thin layer: all orchestration behavior lives in pkg/orchestrator and is
// reachable without it.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/offloadhq/offload/internal/config"
	"github.com/offloadhq/offload/internal/observability"
)

var (
	cfgPath  string
	logLevel string
	logJSON  bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "offload",
	Short: "Run commands on remote or local compute resources",
	Long: `offload stages a command to a compute resource, submits it through a
batch backend, and retrieves the results when it finishes.

Resources (local shell, SSH hosts) and backends (local, slurm, condor) are
declared in offload.yaml; jobs are described in small YAML or JSON spec
files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		level := logLevel
		if level == "" {
			level = cfg.Logging.Level
		}
		json := logJSON || cfg.Logging.JSON
		return observability.Init(level, json)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to offload.yaml (default: ./offload.yaml, ~/.config/offload/offload.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
}

// Execute runs the root command.
func Execute() error {
	defer observability.Sync()
	return rootCmd.Execute()
}
