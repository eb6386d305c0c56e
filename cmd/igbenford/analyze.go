package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"igbenford/pkg/benford"
	"igbenford/pkg/config"
	"igbenford/pkg/dataset"
	"igbenford/pkg/logger"
	"igbenford/pkg/storage"
)

var (
	// Analyze command flags
	analyzeReport     string
	analyzeNoReport   bool
	analyzeConfidence float64
	analyzeRun        string
	analyzeSQLite     string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [snapshot.csv]",
	Short: "Run the Benford test on an existing snapshot",
	Long: `Run the Benford test on a CSV snapshot written by 'igbenford collect', or
on a run stored in SQLite with --run.

Partial snapshots left by an interrupted run are valid input. The report is
written next to the snapshot unless --report or --no-report is given.`,
	Example: `  # Replay a snapshot
  igbenford analyze johndoe_followers.csv

  # Use a stricter confidence level and print to the terminal only
  igbenford analyze johndoe_followers.csv --confidence 0.99 --no-report

  # Analyze a run recorded in SQLite
  igbenford analyze --sqlite runs.db --run 6f1c9a0e-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeReport, "report", "r", "", "Markdown report path (default: next to the snapshot)")
	analyzeCmd.Flags().BoolVar(&analyzeNoReport, "no-report", false, "only print the result to the terminal")
	analyzeCmd.Flags().Float64Var(&analyzeConfidence, "confidence", 0.95, "confidence level of the chi-squared test")
	analyzeCmd.Flags().StringVar(&analyzeRun, "run", "", "analyze a run stored in SQLite instead of a CSV file")
	analyzeCmd.Flags().StringVar(&analyzeSQLite, "sqlite", "", "SQLite database holding --run")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	flags := globalFlags()
	if cmd.Flags().Changed("confidence") {
		flags["confidence"] = analyzeConfidence
	}
	if analyzeSQLite != "" {
		flags["sqlite"] = analyzeSQLite
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	var (
		samples []dataset.MetricSample
		source  string
	)
	switch {
	case analyzeRun != "":
		if cfg.Output.SQLite == "" {
			return errors.New("--run needs a database, pass --sqlite")
		}
		samples, err = loadRunSamples(cmd.Context(), cfg.Output.SQLite, analyzeRun)
		source = fmt.Sprintf("%s (run %s)", cfg.Output.SQLite, analyzeRun)
	case len(args) == 1:
		source = args[0]
		samples, err = storage.ReadCSVFile(source)
	default:
		return errors.New("pass a snapshot file or --run")
	}
	if err != nil {
		return err
	}

	ds, err := dataset.FromSamples(samples)
	if err != nil {
		return fmt.Errorf("invalid snapshot %s: %w", source, err)
	}

	analysis, err := benford.NewAnalyzer(benford.WithConfidence(cfg.Analysis.Confidence)).Analyze(ds.Snapshot())
	if errors.Is(err, benford.ErrNoData) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s holds no samples, no report produced\n", source)
		return nil
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	logger.GetLogger().InfoWithFields("Snapshot analyzed", map[string]interface{}{
		"source":      source,
		"samples":     analysis.Total,
		"chi_squared": analysis.Result.ChiSquared,
		"conforms":    analysis.Result.Conforms,
	})

	reportPath := ""
	if !analyzeNoReport {
		reportPath = analyzeReport
		if reportPath == "" {
			reportPath = defaultReportPath(cfg.Output, source, analyzeRun)
		}
	}
	return emitReport(cmd.OutOrStdout(), analysis, reportPath, source)
}

func loadRunSamples(ctx context.Context, path, runID string) ([]dataset.MetricSample, error) {
	store, err := storage.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.LoadSamples(ctx, runID)
}

// defaultReportPath places the report beside a CSV snapshot, named after
// the account when the file follows the collect naming pattern
func defaultReportPath(out config.OutputConfig, source, runID string) string {
	if runID != "" {
		return out.ReportPath("run_" + runID)
	}

	dir, base := filepath.Split(source)
	user := strings.TrimSuffix(base, filepath.Ext(base))
	if pattern := filepath.Base(out.CSVFile); strings.Contains(pattern, config.UserPlaceholder) {
		prefix, suffix, _ := strings.Cut(pattern, config.UserPlaceholder)
		if strings.HasPrefix(base, prefix) && strings.HasSuffix(base, suffix) && len(base) > len(prefix)+len(suffix) {
			user = base[len(prefix) : len(base)-len(suffix)]
		}
	}

	local := out
	local.Directory = dir
	if local.Directory == "" {
		local.Directory = "."
	}
	if local.ReportFile == "" {
		local.ReportFile = "benford_{user}.md"
	}
	return local.ReportPath(user)
}
