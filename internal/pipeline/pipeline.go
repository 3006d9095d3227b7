package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/pdfaudit/internal/model"
	"github.com/nao1215/pdfaudit/internal/resolver"
)

// Run carries the state of one audit through the pipeline.
// Steps read what earlier steps produced and add their own results.
type Run struct {
	// Path is the PDF file being audited.
	Path string

	// Document is filled in once the file has been opened.
	Document model.Document

	// Index and Results hold the deduplicated links and their outcomes.
	Index   *resolver.Index
	Results *resolver.Results

	// Cells are the extracted table cells awaiting an overflow check.
	Cells []model.TableCell

	// Skipped lists pages whose extraction failed.
	Skipped []model.SkippedPage

	// Mailto and Ignored count link annotations that are not fetched.
	Mailto  int
	Ignored int

	// Cancelled is set when the run stopped before all work finished.
	Cancelled bool

	// Stats describes the worker pool run, if any.
	Stats PoolStats

	// Report is produced by the aggregation step.
	Report *model.ValidationReport

	// PerformedSteps lists the steps that completed, in order.
	PerformedSteps []string

	mu           sync.Mutex
	overflows    []model.OverflowEntry
	cellsChecked int
}

// NewRun creates the state for auditing path.
func NewRun(path string) *Run {
	return &Run{
		Path:    path,
		Index:   resolver.NewIndex(),
		Results: resolver.NewResults(),
	}
}

// recordCell stores the outcome of one overflow check.
// It is safe for concurrent use by pool workers.
func (r *Run) recordCell(entry model.OverflowEntry, overflow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cellsChecked++
	if overflow {
		r.overflows = append(r.overflows, entry)
	}
}

// Overflows returns the overflowing cells found so far.
func (r *Run) Overflows() []model.OverflowEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.OverflowEntry, len(r.overflows))
	copy(out, r.overflows)
	return out
}

// CellsChecked returns the number of cells whose check completed.
func (r *Run) CellsChecked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cellsChecked
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each receiving the run state built up by
// the previous ones.
type Step interface {
	// Do executes the step. It returns an error only for failures that make
	// the rest of the run meaningless; findings are recorded in run.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
//
// Regular steps stop being started once the context is cancelled. Final
// steps run after them in every case except a fatal step error, with
// cancellation removed from their context, so a cancelled run still yields
// a partial report.
type Pipeline struct {
	steps      []Step
	finalSteps []Step

	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalStep appends a step that runs even when the run was cancelled.
func (p *Pipeline) AddFinalStep(step Step) {
	p.finalSteps = append(p.finalSteps, step)
}

// Execute runs all steps in sequence, then the final steps.
//
// Cancellation is not an error: the run is marked Cancelled, the remaining
// regular steps are skipped and Execute returns nil once the final steps
// have run. A step error is returned unless continueOnError is set.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	for _, step := range p.steps {
		if ctx.Err() != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", context.Cause(ctx),
			)
			run.Cancelled = true
			break
		}

		if err := p.runStep(ctx, step, run); err != nil && !p.continueOnError {
			return err
		}
	}

	if ctx.Err() != nil {
		run.Cancelled = true
	}

	final := context.WithoutCancel(ctx)
	for _, step := range p.finalSteps {
		if err := p.runStep(final, step, run); err != nil && !p.continueOnError {
			return err
		}
	}

	return nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, run *Run) error {
	p.logger.Info("executing step", "step", step.Name(), "document", run.Path)

	if err := step.Do(ctx, run); err != nil {
		p.logger.Error("step failed",
			"step", step.Name(),
			"document", run.Path,
			"error", err,
		)
		return err
	}

	p.logger.Debug("step completed", "step", step.Name(), "document", run.Path)
	run.PerformedSteps = append(run.PerformedSteps, step.Name())
	return nil
}

// StepCount returns the number of steps in the pipeline, final steps included.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.finalSteps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalSteps {
		names = append(names, step.Name())
	}
	return names
}
