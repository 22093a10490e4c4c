package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/offloadhq/offload/internal/observability"
	"github.com/offloadhq/offload/internal/server"
	"github.com/offloadhq/offload/pkg/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only HTTP view of recorded runs",
	Long: `Serve the local run registry over HTTP.

Endpoints:
  GET /healthz            liveness check
  GET /api/v1/jobs        all recorded runs, newest first
  GET /api/v1/jobs/{id}   one run record`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(registry.NewStore(cfg.RunsDir()), observability.CLILogger)
	return srv.ListenAndServe(ctx, addr)
}
