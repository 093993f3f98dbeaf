package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fieldmap/internal/config"
	"fieldmap/internal/history"
	"fieldmap/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve workspace validation over HTTP",
		Long:  "Watches the workspace directory for mapping documents and exposes validation, graph models, and rendered views over a versioned HTTP API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			}))
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}

			hist, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer hist.Close()

			srv, err := server.New(cmd.Context(), cfg, hist, logger)
			if err != nil {
				return err
			}
			return srv.ListenAndServe()
		},
	}
}
