package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Jim/common/version"
	"github.com/bdobrica/Jim/internal/jim/memory"
)

var pruneDays int

func init() {
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversation contexts and unimportant memories older than --days",
		Args:  cobra.NoArgs,
		RunE:  runPrune,
	}
	pruneCmd.Flags().IntVar(&pruneDays, "days", memory.DefaultRetentionDays, "Retention in days")

	rootCmd.AddCommand(
		pruneCmd,
		&cobra.Command{
			Use:   "forget <user-id>",
			Short: "Erase everything Jim remembers about a user",
			Args:  cobra.ExactArgs(1),
			RunE:  runForget,
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show how many users, memories and conversations are stored",
			Args:  cobra.NoArgs,
			RunE:  runStats,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			},
		},
	)
}

func runPrune(cmd *cobra.Command, _ []string) error {
	if pruneDays <= 0 {
		return fmt.Errorf("--days must be positive, got %d", pruneDays)
	}
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	report, err := o.memory.Prune(cmd.Context(), pruneDays)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	slog.Info("pruned memory", "cutoff", report.Cutoff, "contexts", report.Contexts, "facts", report.Facts)
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d contexts and %d memories older than %s\n",
		report.Contexts, report.Facts, report.Cutoff.Format("2006-01-02"))
	return nil
}

func runForget(cmd *cobra.Command, args []string) error {
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	report, err := o.memory.Forget(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("forget %s: %w", args[0], err)
	}
	if report.Total() == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "nothing stored for %s\n", args[0])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "forgot %s: %d profile, %d memories, %d conversations\n",
		args[0], report.Profiles, report.Facts, report.Contexts)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	st, err := o.memory.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "users: %d\nmemories: %d\nconversations: %d\n", st.Profiles, st.Facts, st.Contexts)
	return nil
}
