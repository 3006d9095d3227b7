package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/nao1215/pdfaudit/internal/aggregate"
	"github.com/nao1215/pdfaudit/internal/config"
	"github.com/nao1215/pdfaudit/internal/extract"
	"github.com/nao1215/pdfaudit/internal/linkcheck"
	"github.com/nao1215/pdfaudit/internal/model"
	"github.com/nao1215/pdfaudit/internal/overflow"
	"github.com/nao1215/pdfaudit/internal/resolver"
	"github.com/nao1215/pdfaudit/internal/transport"
)

// ExtractStep opens the document and collects its links and table cells.
// Links are classified and deduplicated into the run's Index as they are
// read, so the check step sees each distinct URL once.
type ExtractStep struct {
	hosts       *config.File
	ignoreFonts []string
	skipLinks   bool
	skipTables  bool
	preflight   bool
	logger      *slog.Logger
}

// ExtractStepOption configures an ExtractStep.
type ExtractStepOption func(*ExtractStep)

// WithExtractLogger sets a custom logger for the extract step.
func WithExtractLogger(logger *slog.Logger) ExtractStepOption {
	return func(s *ExtractStep) {
		s.logger = logger
	}
}

// WithIgnoreFonts sets the font name fragments left out of cell content.
func WithIgnoreFonts(fonts []string) ExtractStepOption {
	return func(s *ExtractStep) {
		s.ignoreFonts = fonts
	}
}

// WithHosts sets the per-host configuration used to skip or ignore URLs.
func WithHosts(hosts *config.File) ExtractStepOption {
	return func(s *ExtractStep) {
		s.hosts = hosts
	}
}

// WithScope restricts extraction to links or tables.
func WithScope(links, tables bool) ExtractStepOption {
	return func(s *ExtractStep) {
		s.skipLinks = !links
		s.skipTables = !tables
	}
}

// WithPreflight validates the file structure before extraction.
func WithPreflight(enabled bool) ExtractStepOption {
	return func(s *ExtractStep) {
		s.preflight = enabled
	}
}

// NewExtractStep creates a new extraction step.
func NewExtractStep(opts ...ExtractStepOption) *ExtractStep {
	s := &ExtractStep{
		ignoreFonts: config.DefaultIgnoreFonts(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do executes the extract step. An unreadable document is fatal; a page
// that fails to extract is recorded in run.Skipped.
func (s *ExtractStep) Do(ctx context.Context, run *Run) error {
	var preflight extract.PreflightResult
	if s.preflight {
		var err error
		if preflight, err = extract.Preflight(run.Path); err != nil {
			return err
		}
	}

	opts := []extract.Option{
		extract.WithLogger(s.logger),
		extract.WithIgnoreFonts(s.ignoreFonts),
	}
	if s.skipLinks {
		opts = append(opts, extract.WithoutLinks())
	}
	if s.skipTables {
		opts = append(opts, extract.WithoutTables())
	}

	doc, err := extract.Open(run.Path, opts...)
	if err != nil {
		return err
	}
	defer doc.Close()

	run.Document = doc.Info()
	if s.preflight && preflight.PageCount != run.Document.PageCount {
		s.logger.Warn("page count mismatch between parsers",
			"preflight", preflight.PageCount,
			"extract", run.Document.PageCount,
		)
	}

	for page, err := range doc.Pages() {
		if ctx.Err() != nil {
			run.Cancelled = true
			break
		}
		if err != nil {
			var extractionErr *extract.ExtractionError
			if !errors.As(err, &extractionErr) {
				return err
			}
			run.Skipped = append(run.Skipped, model.SkippedPage{
				Page:   extractionErr.Page,
				Reason: extractionErr.Err.Error(),
			})
			continue
		}

		for _, link := range page.Links {
			s.addLink(run, link)
		}
		run.Cells = append(run.Cells, page.Cells...)
	}

	s.logger.Info("document extracted",
		"pages", run.Document.PageCount,
		"links", run.Index.OccurrenceCount(),
		"distinct", run.Index.Len(),
		"cells", len(run.Cells),
		"skipped", len(run.Skipped),
	)
	return nil
}

func (s *ExtractStep) addLink(run *Run, link model.Link) {
	switch resolver.Classify(link.URL) {
	case resolver.SchemeMailto:
		run.Mailto++
	case resolver.SchemeHTTP:
		key, err := resolver.Normalize(link.URL)
		if err != nil || s.ignored(key) {
			s.logger.Debug("ignoring link", "url", link.URL, "page", link.Page)
			run.Ignored++
			return
		}
		if _, _, err := run.Index.Add(link.Page, link.Seq, link.URL); err != nil {
			run.Ignored++
		}
	default:
		run.Ignored++
	}
}

// ignored reports whether the host configuration excludes key.
func (s *ExtractStep) ignored(key string) bool {
	if s.hosts == nil {
		return false
	}
	u, err := url.Parse(key)
	if err != nil {
		return false
	}
	return s.hosts.GetHostConfig(u.Hostname()).Ignores(u.EscapedPath())
}

// CheckStep validates every distinct link and every table cell on one
// worker pool sized from the document's page count.
type CheckStep struct {
	checker   linkcheck.Checker
	tolerance float64
	sizing    Sizing
	progress  ProgressFunc
	logger    *slog.Logger
}

// CheckStepOption configures a CheckStep.
type CheckStepOption func(*CheckStep)

// WithTolerance sets the overflow tolerance in points.
func WithTolerance(tolerance float64) CheckStepOption {
	return func(s *CheckStep) {
		s.tolerance = tolerance
	}
}

// WithSizing sets the worker count bounds.
func WithSizing(sizing Sizing) CheckStepOption {
	return func(s *CheckStep) {
		s.sizing = sizing
	}
}

// WithCheckProgress sets the per-task completion callback.
func WithCheckProgress(fn ProgressFunc) CheckStepOption {
	return func(s *CheckStep) {
		s.progress = fn
	}
}

// WithCheckLogger sets a custom logger for the check step.
func WithCheckLogger(logger *slog.Logger) CheckStepOption {
	return func(s *CheckStep) {
		s.logger = logger
	}
}

// NewCheckStep creates a check step. A nil checker skips link validation.
func NewCheckStep(checker linkcheck.Checker, opts ...CheckStepOption) *CheckStep {
	s := &CheckStep{
		checker:   checker,
		tolerance: overflow.DefaultTolerance,
		sizing: Sizing{
			Floor:         config.DefaultWorkerFloor,
			Ceiling:       config.DefaultWorkerCeiling,
			SmallDocPages: config.DefaultSmallDocPages,
			LargeDocPages: config.DefaultLargeDocPages,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CheckStep) Name() string {
	return "check"
}

// Do executes the check step.
func (s *CheckStep) Do(ctx context.Context, run *Run) error {
	tasks := make([]Task, 0, run.Index.Len()+len(run.Cells))
	if s.checker != nil {
		for _, key := range run.Index.Keys() {
			tasks = append(tasks, s.linkTask(run, key))
		}
	}
	for _, cell := range run.Cells {
		tasks = append(tasks, s.cellTask(run, cell))
	}

	workers := WorkerCount(run.Document.PageCount, s.sizing)
	pool := NewPool(workers, WithProgress(s.progress), WithPoolLogger(s.logger))

	s.logger.Info("checking document",
		"links", run.Index.Len(),
		"cells", len(run.Cells),
		"workers", workers,
	)

	run.Stats = pool.Run(ctx, tasks)
	if ctx.Err() != nil {
		run.Cancelled = true
	}
	return nil
}

func (s *CheckStep) linkTask(run *Run, key string) Task {
	page := 0
	if occ := run.Index.Occurrences(key); len(occ) > 0 {
		page = occ[0].Page
	}

	return func(ctx context.Context) (Event, error) {
		status, err := s.checker.Check(ctx, key)
		if err != nil {
			return Event{}, err
		}
		run.Results.InsertIfAbsent(key, status)
		return Event{Kind: TaskLink, Page: page, Subject: key, Status: status.Label()}, nil
	}
}

func (s *CheckStep) cellTask(run *Run, cell model.TableCell) Task {
	return func(context.Context) (Event, error) {
		result := overflow.Check(cell, s.tolerance)
		run.recordCell(result.Entry(), result.Overflow)

		status := "ok"
		if result.Overflow {
			status = "overflow"
		}
		return Event{Kind: TaskOverflow, Page: cell.Page, Subject: cell.Text, Status: status}, nil
	}
}

// AggregateStep builds the ordered report from the run state.
// It is added as a final step so that cancelled runs are reported too.
type AggregateStep struct {
	now func() time.Time
}

// NewAggregateStep creates an aggregation step stamping reports with the
// current time.
func NewAggregateStep() *AggregateStep {
	return &AggregateStep{now: time.Now}
}

// Name returns the step name.
func (s *AggregateStep) Name() string {
	return "aggregate"
}

// Do executes the aggregate step.
func (s *AggregateStep) Do(_ context.Context, run *Run) error {
	run.Report = aggregate.Build(aggregate.Input{
		Document:     run.Document,
		Index:        run.Index,
		Results:      run.Results,
		Overflows:    run.Overflows(),
		Skipped:      run.Skipped,
		Mailto:       run.Mailto,
		Ignored:      run.Ignored,
		CellsChecked: run.CellsChecked(),
		Cancelled:    run.Cancelled,
		CheckedAt:    s.now(),
	})
	return nil
}

// NewLinkChecker builds the link checker described by cfg: an HTTP client
// with the configured proxy, headers and redirect bound, a per-host rate
// limit, retries, and the result cache when one is given and enabled.
// The transport client is returned so callers can probe the proxy.
func NewLinkChecker(cfg *config.Config, cache linkcheck.Cache, logger *slog.Logger) (linkcheck.Checker, *transport.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	hostConfig := func(host string) config.HostConfig {
		if cfg.HostConfigs == nil {
			return config.HostConfig{}
		}
		return cfg.HostConfigs.GetHostConfig(host)
	}

	client, err := transport.NewClient(transport.Options{
		ProxyAddress: cfg.ProxyAddress,
		UserAgent:    cfg.UserAgent,
		MaxRedirects: cfg.MaxRedirects,
		Headers: func(host string) map[string]string {
			return hostConfig(host).Headers
		},
	})
	if err != nil {
		return nil, nil, err
	}

	limiter := linkcheck.NewHostLimiter(cfg.RateLimit, func(host string) float64 {
		return hostConfig(host).RateLimit
	})

	var checker linkcheck.Checker = linkcheck.NewValidator(
		client.NewHTTPClient(),
		linkcheck.WithTimeout(cfg.Timeout),
		linkcheck.WithRetries(cfg.Retries, cfg.RetryBackoff),
		linkcheck.WithLimiter(limiter),
		linkcheck.WithLogger(logger),
	)
	if cache != nil && cfg.UseCache {
		checker = linkcheck.NewCachedChecker(checker, cache, cfg.CacheTTL, logger)
	}
	return checker, client, nil
}

// Dependencies are the collaborators of the default pipeline that are
// created outside of it.
type Dependencies struct {
	// Checker validates links. It is ignored when cfg.TablesOnly is set.
	Checker linkcheck.Checker

	// Progress receives completion events. It may be nil.
	Progress ProgressFunc

	Logger *slog.Logger
}

// DefaultPipeline creates the standard audit pipeline for cfg:
// extract, check, and a final aggregate step.
func DefaultPipeline(cfg *config.Config, deps Dependencies, opts ...Option) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := New(append([]Option{WithLogger(logger)}, opts...)...)

	checker := deps.Checker
	if cfg.TablesOnly {
		checker = nil
	}

	p.AddSteps(
		NewExtractStep(
			WithExtractLogger(logger),
			WithIgnoreFonts(cfg.IgnoreFonts),
			WithHosts(cfg.HostConfigs),
			WithScope(!cfg.TablesOnly, !cfg.LinksOnly),
			WithPreflight(cfg.Preflight),
		),
		NewCheckStep(checker,
			WithTolerance(cfg.OverflowTolerance),
			WithSizing(Sizing{
				Floor:         cfg.WorkerFloor,
				Ceiling:       cfg.WorkerCeiling,
				SmallDocPages: cfg.SmallDocPages,
				LargeDocPages: cfg.LargeDocPages,
			}),
			WithCheckProgress(deps.Progress),
			WithCheckLogger(logger),
		),
	)
	p.AddFinalStep(NewAggregateStep())

	return p
}
