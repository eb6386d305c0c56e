package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"igbenford/pkg/config"
	"igbenford/pkg/storage"
	"igbenford/pkg/ui"
)

var runsSQLite string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <username>",
	Short: "Show the journal of the last run for an account",
	Long: `Show the journal of the last collection run for an account: when it ran,
how many followers were collected or skipped, and why each skip happened.`,
	Args: cobra.ExactArgs(1),
	RunE: runJournalStatus,
}

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the runs recorded in a SQLite database",
	Example: `  igbenford runs --sqlite runs.db`,
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().StringVar(&runsSQLite, "sqlite", "", "SQLite database written by 'igbenford collect --sqlite'")
}

func runJournalStatus(cmd *cobra.Command, args []string) error {
	manager, err := newJournalManager(args[0])
	if err != nil {
		return err
	}

	j, err := manager.Load()
	if err != nil {
		return err
	}
	if j == nil {
		ui.PrintInfo("No run recorded", args[0])
		return nil
	}

	out := cmd.OutOrStdout()
	ui.PrintHighlight("Last run of @" + j.Root)
	fmt.Fprintf(out, "  Run ID: %s\n", j.RunID)
	fmt.Fprintf(out, "  Status: %s\n", j.Status)
	fmt.Fprintf(out, "  Started: %s\n", j.StartedAt.Format(time.DateTime))
	if j.FinishedAt != nil {
		fmt.Fprintf(out, "  Finished: %s\n", j.FinishedAt.Format(time.DateTime))
	}
	fmt.Fprintf(out, "  Processed: %d of %d (%d collected, %d skipped)\n", j.Processed, j.Total, j.Succeeded, j.Skipped)
	fmt.Fprintf(out, "  Snapshot: %s\n", j.Artifact)
	if j.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", j.Error)
	}
	for _, s := range j.Skips {
		fmt.Fprintf(out, "  skipped %s (%s): %s\n", s.Entity, s.Kind, s.Error)
	}
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	path := runsSQLite
	if path == "" {
		cfg, err := config.Load(configFile, globalFlags())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		path = cfg.Output.SQLite
	}
	if path == "" {
		return errors.New("no database configured, pass --sqlite")
	}

	store, err := storage.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		ui.PrintInfo("No runs recorded", path)
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(out, "%s  %-10s @%s  %d samples  %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Status, r.Root, r.Samples, r.ID)
		if result, _, err := store.LoadResult(cmd.Context(), r.ID); err == nil {
			fmt.Fprintf(out, "    chi-squared %.4f (critical %.4f): %s\n",
				result.ChiSquared, result.CriticalValue, result.Verdict())
		}
	}
	return nil
}
