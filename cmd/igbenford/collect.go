package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igbenford/pkg/auth"
	"igbenford/pkg/benford"
	"igbenford/pkg/checkpoint"
	"igbenford/pkg/collector"
	"igbenford/pkg/config"
	"igbenford/pkg/instagram"
	"igbenford/pkg/logger"
	"igbenford/pkg/metrics"
	"igbenford/pkg/ratelimit"
	"igbenford/pkg/retry"
	"igbenford/pkg/storage"
	"igbenford/pkg/ui"
)

// requestsPerHour caps API calls on top of the per-entity pacing
const requestsPerHour = 600

var (
	// Collect command flags
	collectSessionID      string
	collectCSRFToken      string
	collectAccount        string
	collectOutput         string
	collectSQLite         string
	collectMaxRetries     int
	collectBackoff        time.Duration
	collectPacing         time.Duration
	collectWorkers        int
	collectRetryPermanent bool
	collectConfidence     float64
	collectMetricsFile    string
)

// Swapped in tests
var (
	newCredentialManager = auth.NewManager
	newJournalManager    = checkpoint.NewManager
	newPrompter          = func() credentialPrompter { return auth.NewPrompter() }
	stdinIsTerminal      = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

type credentialPrompter interface {
	PromptAccount(username string) (*auth.Account, error)
}

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect [username]",
	Short: "Collect follower counts and test them against Benford's Law",
	Long: `Collect the follower count of every follower of an Instagram account, then
test the leading digits of those counts against Benford's Law.

The account defaults to the logged-in one. Credentials are taken from:
  - A stored account (--account, or the most recent 'igbenford auth login')
  - Flags, environment variables (IGBENFORD_SESSION_ID) or the config file
  - An interactive prompt when nothing else is available

The CSV snapshot is rewritten after every collected follower, so an
interrupted run (Ctrl+C) leaves a valid prefix that 'igbenford analyze' can
replay.`,
	Example: `  # Analyze the followers of the logged-in account
  igbenford collect

  # Analyze another account with a stored session
  igbenford collect johndoe --account myaccount

  # Four workers sharing a one-request-per-second ceiling
  igbenford collect johndoe --workers 4 --pacing 1s

  # Mirror the run into SQLite and export Prometheus counters
  igbenford collect johndoe --sqlite runs.db --metrics-textfile igbenford.prom`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVar(&collectSessionID, "session-id", "", "Instagram sessionid cookie")
	collectCmd.Flags().StringVar(&collectCSRFToken, "csrf-token", "", "Instagram csrftoken cookie")
	collectCmd.Flags().StringVarP(&collectAccount, "account", "a", "", "use a specific stored account")
	collectCmd.Flags().StringVarP(&collectOutput, "output", "o", "", "output directory for the CSV snapshot and report")
	collectCmd.Flags().StringVar(&collectSQLite, "sqlite", "", "also record the run in this SQLite database")
	collectCmd.Flags().IntVar(&collectMaxRetries, "max-retries", 3, "attempts per follower before it is skipped")
	collectCmd.Flags().DurationVar(&collectBackoff, "backoff", 10*time.Second, "pause between attempts")
	collectCmd.Flags().DurationVar(&collectPacing, "pacing", 2*time.Second, "pause after every follower")
	collectCmd.Flags().IntVar(&collectWorkers, "workers", 1, "concurrent fetches (1 is sequential)")
	collectCmd.Flags().BoolVar(&collectRetryPermanent, "retry-permanent", false, "retry permanent failures too")
	collectCmd.Flags().Float64Var(&collectConfidence, "confidence", 0.95, "confidence level of the chi-squared test")
	collectCmd.Flags().StringVar(&collectMetricsFile, "metrics-textfile", "", "write Prometheus metrics to this file")
}

// collectFlags returns the flags set on the command line, keyed for
// config.MergeCommandLineFlags
func collectFlags(cmd *cobra.Command) map[string]interface{} {
	flags := globalFlags()
	set := cmd.Flags().Changed

	if collectSessionID != "" {
		flags["session-id"] = collectSessionID
	}
	if collectCSRFToken != "" {
		flags["csrf-token"] = collectCSRFToken
	}
	if collectOutput != "" {
		flags["output"] = collectOutput
	}
	if collectSQLite != "" {
		flags["sqlite"] = collectSQLite
	}
	if set("max-retries") {
		flags["max-retries"] = collectMaxRetries
	}
	if set("backoff") {
		flags["backoff"] = collectBackoff
	}
	if set("pacing") {
		flags["pacing"] = collectPacing
	}
	if set("workers") {
		flags["workers"] = collectWorkers
	}
	if set("retry-permanent") {
		flags["retry-permanent"] = collectRetryPermanent
	}
	if set("confidence") {
		flags["confidence"] = collectConfidence
	}
	if collectMetricsFile != "" {
		flags["metrics-textfile"] = collectMetricsFile
	}
	return flags
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var prompter credentialPrompter
	if stdinIsTerminal() {
		prompter = newPrompter()
	}
	username, err := resolveCredentials(cfg, manager, collectAccount, prompter)
	if err != nil {
		return err
	}

	root := username
	if len(args) > 0 {
		root = args[0]
	}
	root = instagram.NormalizeUsername(root)
	if root == "" || root == "default" {
		return errors.New("no account to analyze: pass a username or store one with 'igbenford auth login'")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return collectAndReport(ctx, cmd.OutOrStdout(), cfg, root, log)
}

// resolveCredentials fills the session of cfg from, in order, a named stored
// account, the configuration itself, the default stored account and the
// prompter. It returns the account name when one is known.
func resolveCredentials(cfg *config.Config, manager *auth.Manager, accountName string, prompter credentialPrompter) (string, error) {
	if accountName != "" {
		account, err := manager.Retrieve(accountName)
		if err != nil {
			return "", fmt.Errorf("account %s not found, see 'igbenford auth list': %w", accountName, err)
		}
		account.ApplyTo(&cfg.Instagram)
		return account.Username, nil
	}

	if cfg.Instagram.SessionID != "" {
		return os.Getenv(auth.EnvUsername), nil
	}

	if account, err := manager.RetrieveDefault(); err == nil {
		account.ApplyTo(&cfg.Instagram)
		return account.Username, nil
	}

	if prompter == nil {
		return "", fmt.Errorf("%w: run 'igbenford auth login' or set %s", auth.ErrCredentialsNotFound, auth.EnvSessionID)
	}
	account, err := prompter.PromptAccount("")
	if err != nil {
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}
	account.ApplyTo(&cfg.Instagram)
	if err := cfg.ValidateCredentials(); err != nil {
		return "", err
	}
	return account.Username, nil
}

// collectAndReport runs one collection of root's followers, then analyzes
// and reports the result. Interrupted and failed runs return an error after
// the partial snapshot has been accounted for.
func collectAndReport(ctx context.Context, out io.Writer, cfg *config.Config, root string, log logger.Logger) error {
	files, err := storage.NewManager(cfg.Output)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	csvPath := files.CSVPath(root)
	m := metrics.New()

	logger.LogComponentStart(log, "collect", map[string]interface{}{
		"run_id":          runID,
		"root":            root,
		"output_dir":      files.GetOutputDir(),
		"output":          csvPath,
		"workers":         cfg.Collection.Workers,
		"pacing":          cfg.Collection.Pacing,
		"backoff":         cfg.Collection.Backoff,
		"max_retries":     cfg.Collection.MaxRetries,
		"retry_permanent": cfg.Collection.RetryPermanent,
	})

	client := instagram.NewClient(instagram.Options{
		BaseURL:   cfg.Instagram.BaseURL,
		SessionID: cfg.Instagram.SessionID,
		CSRFToken: cfg.Instagram.CSRFToken,
		UserAgent: cfg.Instagram.UserAgent,
		Timeout:   cfg.Instagram.Timeout,
		Limiter:   ratelimit.NewSlidingWindow(requestsPerHour, time.Hour),
	}, log)

	fetcher := retry.NewCollector(client, retry.CollectorOptions{
		MaxRetries:     cfg.Collection.MaxRetries,
		Backoff:        cfg.Collection.Backoff,
		RetryPermanent: cfg.Collection.RetryPermanent,
		Logger:         log,
	})

	persisters := []collector.Persister{storage.NewCSVSink(csvPath, log)}

	var store *storage.SQLiteStore
	if cfg.Output.SQLite != "" {
		if store, err = storage.OpenSQLite(cfg.Output.SQLite); err != nil {
			return err
		}
		defer store.Close()
		if err := store.BeginRun(ctx, runID, root, time.Now()); err != nil {
			return err
		}
		persisters = append(persisters, store.RunSink(runID))
	}

	progress := ui.NewProgress(out, !noColor)
	observers := []collector.Observer{progress}

	var recorder *checkpoint.Recorder
	if journal, err := newJournalManager(root); err != nil {
		log.WithError(err).Warn("Run journal disabled")
	} else {
		recorder = checkpoint.NewRecorder(journal, runID, csvPath)
		observers = append(observers, recorder)
	}

	pipeline := collector.New(client, fetcher, collector.Options{
		Workers:    cfg.Collection.Workers,
		Pacing:     cfg.Collection.Pacing,
		Persisters: persisters,
		Observers:  observers,
		Metrics:    m,
		Logger:     log,
	})

	result, runErr := pipeline.Run(ctx, root)

	status := runStatus(result, runErr)
	finish := func(cause error) {
		// The run context may already be cancelled
		bg := context.Background()
		if store != nil {
			if err := store.FinishRun(bg, runID, status, time.Now()); err != nil {
				log.WithError(err).Warn("Failed to finish SQLite run")
			}
		}
		if recorder != nil {
			if err := recorder.Finish(root, status, cause); err != nil {
				log.WithError(err).Warn("Failed to finish run journal")
			}
		}
		if cfg.Metrics.Textfile != "" {
			if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				log.WithError(err).Warn("Failed to write metrics")
			}
		}
	}

	if result == nil {
		finish(runErr)
		return runErr
	}

	progress.Finish(csvPath, result.Cancelled)
	if skips := describeSkips(result.Skipped); skips != "" {
		fmt.Fprintf(out, "skipped followers:\n%s", skips)
	}

	if runErr != nil {
		finish(runErr)
		if result.Cancelled && result.Collected() > 0 {
			fmt.Fprintf(out, "run 'igbenford analyze %s' to analyze the partial data\n", csvPath)
		}
		return runErr
	}

	analysis, err := benford.NewAnalyzer(benford.WithConfidence(cfg.Analysis.Confidence)).Analyze(result.Snapshot)
	if errors.Is(err, benford.ErrNoData) {
		fmt.Fprintln(out, "no samples were collected, no report produced")
		finish(nil)
		return nil
	}
	if err != nil {
		finish(err)
		return fmt.Errorf("analysis failed: %w", err)
	}

	m.SetAnalysis(analysis.Result.ChiSquared, analysis.Result.Conforms)
	if store != nil {
		if err := store.SaveAnalysis(context.Background(), runID, analysis); err != nil {
			log.WithError(err).Warn("Failed to store analysis")
		}
	}

	reportErr := emitReport(out, analysis, files.ReportPath(root), csvPath)
	finish(reportErr)
	return reportErr
}

// runStatus maps a pipeline outcome to the stored run status
func runStatus(result *collector.Result, err error) string {
	switch {
	case err == nil:
		return storage.RunStatusCompleted
	case result != nil && result.Cancelled:
		return storage.RunStatusCancelled
	case errors.Is(err, context.Canceled):
		return storage.RunStatusCancelled
	default:
		return storage.RunStatusFailed
	}
}

// describeSkips lists skipped entities grouped by failure kind
func describeSkips(skips []collector.SkipRecord) string {
	if len(skips) == 0 {
		return ""
	}
	byKind := make(map[string][]string)
	var kinds []string
	for _, s := range skips {
		if _, ok := byKind[s.Kind]; !ok {
			kinds = append(kinds, s.Kind)
		}
		byKind[s.Kind] = append(byKind[s.Kind], s.Entity.String())
	}
	var b strings.Builder
	for _, kind := range kinds {
		fmt.Fprintf(&b, "  %s: %s\n", kind, strings.Join(byKind[kind], ", "))
	}
	return b.String()
}
