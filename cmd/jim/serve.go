package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Jim/common/version"
	"github.com/bdobrica/Jim/internal/jim/app"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Connect to the configured chat platforms and start answering",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	logger.Info("starting Jim", "version", version.Version, "commit", version.GitCommit, "built", version.BuildTime)

	src, err := source()
	if err != nil {
		return err
	}
	cfg, err := app.LoadConfig(src)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}

	jim, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer jim.Close()

	return jim.Run(ctx)
}
