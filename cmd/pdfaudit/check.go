package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/pdfaudit/internal/config"
	"github.com/nao1215/pdfaudit/internal/database"
	"github.com/nao1215/pdfaudit/internal/linkcheck"
	"github.com/nao1215/pdfaudit/internal/log"
	"github.com/nao1215/pdfaudit/internal/model"
	"github.com/nao1215/pdfaudit/internal/pipeline"
	"github.com/nao1215/pdfaudit/internal/report"
	"github.com/nao1215/pdfaudit/internal/transport"
	"github.com/spf13/cobra"
)

// ErrProblemsFound is returned by the check command with --fail-on-problems
// when the report contains a broken link or an overflowing cell.
var ErrProblemsFound = errors.New("problems found in document")

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file.pdf>",
		Short: "Check the links and tables of a PDF document",
		Long: `Check extracts every link annotation and table cell of a PDF document.

Each distinct http or https URL is requested once, no matter how many pages
reference it. Redirects are followed and reported with their final target.
mailto: links are counted but never contacted. Table cells whose text is
wider than the cell are reported as overflowing.

The number of concurrent checks grows with the size of the document between
--worker-floor and --worker-ceiling. Press Ctrl+C to stop early; the report of
the work completed so far is still printed.

Examples:
  # Check a document and print a text report
  pdfaudit check manual.pdf

  # Only print broken links and overflowing cells
  pdfaudit check --only-problems manual.pdf

  # Fail a CI job when problems are found
  pdfaudit check --fail-on-problems manual.pdf

  # Write a Markdown report
  pdfaudit check --markdown -o report.md manual.pdf

  # Check links through a SOCKS5 proxy with live progress
  pdfaudit check --proxy 127.0.0.1:1080 --progress manual.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckCmd,
	}

	flags := cmd.Flags()

	// Worker pool
	flags.Int("worker-floor", config.DefaultWorkerFloor,
		"Concurrent checks for small documents")
	flags.Int("worker-ceiling", config.DefaultWorkerCeiling,
		"Concurrent checks for large documents")
	flags.Int("small-doc-pages", config.DefaultSmallDocPages,
		"Page count at or below which --worker-floor applies")
	flags.Int("large-doc-pages", config.DefaultLargeDocPages,
		"Page count at or above which --worker-ceiling applies")

	// Link checks
	flags.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of a single link request")
	flags.Int("retries", config.DefaultRetries,
		"Retries after a network error, timeout or 429/502/503/504")
	flags.Duration("retry-backoff", config.DefaultRetryBackoff,
		"Wait before the first retry, doubled for each further retry")
	flags.Int("max-redirects", config.DefaultMaxRedirects,
		"Longest redirect chain followed for one URL")
	flags.Float64("rate-limit", config.DefaultRateLimit,
		"Requests per second per host (0 means unlimited)")
	flags.String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with link checks")
	flags.String("proxy", "",
		"Route link checks through a SOCKS5 proxy (host:port)")

	// Table checks
	flags.Float64("tolerance", config.DefaultOverflowTolerance,
		"Width in points a cell's text may exceed the cell")
	flags.StringSlice("ignore-fonts", config.DefaultIgnoreFonts(),
		"Font name fragments excluded from overflow measurement")

	// Scope
	flags.Bool("links-only", false, "Check links only")
	flags.Bool("tables-only", false, "Check tables only")
	flags.Bool("preflight", false, "Validate the PDF structure before extraction")

	// Configuration
	flags.StringP("config", "c", "",
		"Path to configuration file (default: .pdfaudit in current or home directory)")

	// Output
	flags.BoolP("json", "j", false, "Output report in JSON format")
	flags.BoolP("markdown", "m", false, "Output report in Markdown format")
	flags.StringP("output", "o", "", "Write report to file instead of stdout")
	flags.Bool("only-problems", false, "Only list broken links and overflowing cells")
	flags.Bool("fail-on-problems", false, "Exit with an error when problems are found")
	flags.Bool("progress", false, "Print progress to stderr")

	// Storage
	flags.Bool("no-cache", false, "Check every link even if a recent result is stored")
	flags.Bool("no-db", false, "Do not use the history database")
	flags.String("db-dir", "", "Directory of the history database (default: XDG data directory)")

	return cmd
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	cfg.Verbose = getVerboseFlag(cmd)
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCheck(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from defaults, the configuration file and
// the flags set on the command line, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit path must exist. Without one, a missing file means defaults.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.HostConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplySettings(cfg.HostConfigs.Settings)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.HostConfigs = &config.File{
			Hosts: make(map[string]config.HostConfig),
		}
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if len(args) > 0 && args[0] != "" {
		cfg.Target, err = filepath.Abs(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", args[0], err)
		}
	}

	return cfg, nil
}

// applyFlags copies the flags set on the command line into cfg.
// Flags left at their default do not override the configuration file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	if err := errors.Join(
		intFlag(cmd, "worker-floor", &cfg.WorkerFloor),
		intFlag(cmd, "worker-ceiling", &cfg.WorkerCeiling),
		intFlag(cmd, "small-doc-pages", &cfg.SmallDocPages),
		intFlag(cmd, "large-doc-pages", &cfg.LargeDocPages),
		durationFlag(cmd, "timeout", &cfg.Timeout),
		intFlag(cmd, "retries", &cfg.Retries),
		durationFlag(cmd, "retry-backoff", &cfg.RetryBackoff),
		intFlag(cmd, "max-redirects", &cfg.MaxRedirects),
		floatFlag(cmd, "rate-limit", &cfg.RateLimit),
		stringFlag(cmd, "user-agent", &cfg.UserAgent),
		stringFlag(cmd, "proxy", &cfg.ProxyAddress),
		floatFlag(cmd, "tolerance", &cfg.OverflowTolerance),
		stringSliceFlag(cmd, "ignore-fonts", &cfg.IgnoreFonts),
		boolFlag(cmd, "links-only", &cfg.LinksOnly),
		boolFlag(cmd, "tables-only", &cfg.TablesOnly),
		boolFlag(cmd, "preflight", &cfg.Preflight),
		boolFlag(cmd, "json", &cfg.JSONReport),
		boolFlag(cmd, "markdown", &cfg.MarkdownReport),
		stringFlag(cmd, "output", &cfg.ReportFile),
		boolFlag(cmd, "only-problems", &cfg.OnlyProblems),
		boolFlag(cmd, "fail-on-problems", &cfg.FailOnProblems),
		boolFlag(cmd, "progress", &cfg.Progress),
		stringFlag(cmd, "db-dir", &cfg.DBDir),
	); err != nil {
		return err
	}

	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}
	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return err
	}
	if noCache || noDB {
		cfg.UseCache = false
	}
	if noDB {
		cfg.SaveToDB = false
	}
	return nil
}

func intFlag(cmd *cobra.Command, name string, dst *int) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func floatFlag(cmd *cobra.Command, name string, dst *float64) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func durationFlag(cmd *cobra.Command, name string, dst *time.Duration) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetDuration(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func stringFlag(cmd *cobra.Command, name string, dst *string) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func stringSliceFlag(cmd *cobra.Command, name string, dst *[]string) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func boolFlag(cmd *cobra.Command, name string, dst *bool) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// runCheck audits cfg.Target and writes the report.
func runCheck(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	store := openStore(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}

	// A nil *Store must not become a non-nil interface.
	var cache linkcheck.Cache
	if store != nil {
		cache = store
	}

	checker, client, err := pipeline.NewLinkChecker(cfg, cache, logger)
	if err != nil {
		return fmt.Errorf("failed to create link checker: %w", err)
	}

	if !cfg.TablesOnly && client.ProxyAddress() != "" {
		if status := client.CheckConnection(ctx); status != transport.ProxyStatusOK {
			return fmt.Errorf("proxy check failed for %s: %w", client.ProxyAddress(), status.Error())
		}
		logger.Debug("proxy reachable", "proxy", client.ProxyAddress())
	}

	deps := pipeline.Dependencies{
		Checker: checker,
		Logger:  logger,
	}
	if cfg.Progress {
		deps.Progress = progressPrinter(stderr)
	}

	p := pipeline.DefaultPipeline(cfg, deps)
	run := pipeline.NewRun(cfg.Target)

	logger.Info("starting audit", "document", cfg.Target, "steps", p.StepNames())
	if err := p.Execute(ctx, run); err != nil {
		return fmt.Errorf("audit of %s failed: %w", cfg.Target, err)
	}
	if run.Report == nil {
		return fmt.Errorf("audit of %s produced no report", cfg.Target)
	}

	logger.Info("audit finished",
		"workers", run.Stats.Workers,
		"completed", run.Stats.Completed,
		"abandoned", run.Stats.Abandoned,
		"elapsed", run.Stats.Elapsed,
	)

	if err := outputReport(cfg, run.Report, stdout); err != nil {
		return err
	}

	if cfg.SaveToDB {
		// A partial report is still worth keeping, so saving outlives the signal.
		if err := saveReport(context.WithoutCancel(ctx), store, run.Report, logger); err != nil {
			logger.Warn("failed to save report", "error", err)
		}
	}

	if run.Cancelled {
		fmt.Fprintln(stderr, "Audit cancelled: the report only covers completed checks.")
	}

	if cfg.FailOnProblems && run.Report.HasProblems() {
		return ErrProblemsFound
	}
	return nil
}

// openStore opens the history database when it is needed.
// Failure to open it is logged and the audit continues without it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) *database.Store {
	if !cfg.SaveToDB && !cfg.UseCache {
		return nil
	}

	store, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		logger.Warn("history database unavailable, continuing without it", "dir", cfg.DBDir, "error", err)
		return nil
	}

	if cfg.UseCache {
		pruned, err := store.PruneLinkChecks(ctx, cfg.CacheTTL)
		if err != nil {
			logger.Warn("failed to prune link cache", "error", err)
		} else if pruned > 0 {
			logger.Debug("pruned expired link results", "count", pruned)
		}
	}
	return store
}

// progressPrinter returns a callback that prints one line per completed check.
func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(e pipeline.Event) {
		subject, _ := log.RedactURL(e.Subject)
		fmt.Fprintf(w, "[%d/%d] %s %s (Page %d): %s\n", e.Done, e.Total, e.Kind, subject, e.Page, e.Status)
	}
}

// outputReport writes the report in the requested format.
func outputReport(cfg *config.Config, r *model.ValidationReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	opt := report.WithOnlyProblems(cfg.OnlyProblems)

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint(), report.WithJSONOptions(opt))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output, opt)
	default:
		writer = report.NewTextWriter(output, opt)
	}

	if _, err := writer.Write(r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// saveReport stores the report in the history database.
// If store is nil, this function is a no-op.
func saveReport(ctx context.Context, store *database.Store, r *model.ValidationReport, logger *slog.Logger) error {
	if store == nil {
		return nil
	}

	id, err := store.SaveReport(ctx, r)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	logger.Info("report saved to database", "id", id, "document", r.Document.Path)
	return nil
}
