package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sizing holds the fixed bounds used to choose a worker count.
type Sizing struct {
	// Floor is the worker count for documents up to SmallDocPages pages.
	Floor int

	// Ceiling is the worker count for documents from LargeDocPages pages on.
	Ceiling int

	SmallDocPages int
	LargeDocPages int
}

// WorkerCount selects the number of concurrent workers for a document of
// the given page count. It is a step function: Floor up to SmallDocPages,
// Ceiling from LargeDocPages, and the midpoint in between. The result is
// non-decreasing in pages and always within [Floor, Ceiling].
func WorkerCount(pages int, s Sizing) int {
	floor := max(s.Floor, 1)
	ceiling := max(s.Ceiling, floor)

	switch {
	case pages <= s.SmallDocPages:
		return floor
	case pages >= s.LargeDocPages:
		return ceiling
	default:
		return floor + (ceiling-floor)/2
	}
}

// TaskKind identifies the check a task performs.
type TaskKind int

const (
	// TaskLink is a network check of one distinct URL.
	TaskLink TaskKind = iota
	// TaskOverflow is a width check of one table cell.
	TaskOverflow
)

// String returns the kind as shown in progress output.
func (k TaskKind) String() string {
	switch k {
	case TaskLink:
		return "link"
	case TaskOverflow:
		return "table"
	default:
		return "unknown"
	}
}

// Event describes one completed task.
type Event struct {
	Kind    TaskKind
	Page    int
	Subject string
	Status  string

	// Done is the number of tasks completed so far, including this one.
	// Total is the number of tasks submitted to the run.
	Done  int
	Total int
}

// Task is one independent unit of work. It returns the event to report on
// completion, or an error when it was abandoned because ctx ended.
type Task func(ctx context.Context) (Event, error)

// ProgressFunc receives completion events. It is called from a single
// goroutine, never from a worker, so a slow callback does not hold up checks.
type ProgressFunc func(Event)

// PoolStats summarizes a pool run.
type PoolStats struct {
	Workers    int
	Submitted  int
	Dispatched int
	Completed  int
	Abandoned  int
	Elapsed    time.Duration
}

// Undispatched returns the number of tasks never started because the run
// was cancelled first.
func (s PoolStats) Undispatched() int {
	return s.Submitted - s.Dispatched
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithProgress sets the completion callback.
func WithProgress(fn ProgressFunc) PoolOption {
	return func(p *Pool) {
		p.progress = fn
	}
}

// WithPoolLogger sets the logger used for pool-level messages.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Pool runs independent tasks with a bounded number of goroutines.
//
// errgroup.SetLimit provides the bound. The group is created without
// WithContext because a task that is abandoned is not a failure of the run
// and must not cancel its siblings.
type Pool struct {
	workers  int
	progress ProgressFunc
	logger   *slog.Logger
}

// NewPool creates a Pool running at most workers tasks at once.
// Non-positive values run one task at a time.
func NewPool(workers int, opts ...PoolOption) *Pool {
	p := &Pool{
		workers: max(workers, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes tasks and returns after every dispatched task has finished
// or been abandoned. Once ctx ends no further task is started.
func (p *Pool) Run(ctx context.Context, tasks []Task) PoolStats {
	start := time.Now()
	stats := PoolStats{Workers: p.workers, Submitted: len(tasks)}

	p.logger.Debug("starting worker pool", "tasks", len(tasks), "workers", p.workers)

	// The buffer holds every possible event, so workers never wait on the callback.
	events := make(chan Event, len(tasks))
	notified := make(chan struct{})
	go func() {
		defer close(notified)
		for ev := range events {
			if p.progress != nil {
				p.progress(ev)
			}
		}
	}()

	var (
		g         errgroup.Group
		completed atomic.Int64
		abandoned atomic.Int64
	)
	g.SetLimit(p.workers)

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		stats.Dispatched++

		g.Go(func() error {
			if ctx.Err() != nil {
				abandoned.Add(1)
				return nil
			}

			ev, err := task(ctx)
			if err != nil {
				abandoned.Add(1)
				return nil
			}

			ev.Done = int(completed.Add(1))
			ev.Total = len(tasks)
			events <- ev
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // tasks never return errors to the group
	close(events)
	<-notified

	stats.Completed = int(completed.Load())
	stats.Abandoned = int(abandoned.Load())
	stats.Elapsed = time.Since(start)

	p.logger.Debug("worker pool finished",
		"completed", stats.Completed,
		"abandoned", stats.Abandoned,
		"undispatched", stats.Undispatched(),
		"elapsed", stats.Elapsed,
	)

	return stats
}
