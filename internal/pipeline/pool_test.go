package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/pdfaudit/internal/model"
)

func modelEntry(page int) model.OverflowEntry {
	return model.OverflowEntry{Page: page}
}

// TestWorkerCount tests the page-count step function.
func TestWorkerCount(t *testing.T) {
	t.Parallel()

	sizing := Sizing{Floor: 100, Ceiling: 200, SmallDocPages: 500, LargeDocPages: 2000}

	tests := []struct {
		pages int
		want  int
	}{
		{0, 100},
		{1, 100},
		{500, 100},
		{501, 150},
		{1999, 150},
		{2000, 200},
		{100000, 200},
	}

	for _, tt := range tests {
		if got := WorkerCount(tt.pages, sizing); got != tt.want {
			t.Errorf("WorkerCount(%d) = %d, want %d", tt.pages, got, tt.want)
		}
	}
}

// TestWorkerCountMonotonic tests that the count never decreases and stays in bounds.
func TestWorkerCountMonotonic(t *testing.T) {
	t.Parallel()

	sizings := []Sizing{
		{Floor: 100, Ceiling: 200, SmallDocPages: 500, LargeDocPages: 2000},
		{Floor: 4, Ceiling: 4, SmallDocPages: 10, LargeDocPages: 20},
		{Floor: 1, Ceiling: 2, SmallDocPages: 0, LargeDocPages: 1},
		{Floor: 8, Ceiling: 64, SmallDocPages: 50, LargeDocPages: 50},
	}

	for _, s := range sizings {
		prev := 0
		for pages := 0; pages <= 3000; pages++ {
			got := WorkerCount(pages, s)
			if got < s.Floor || got > s.Ceiling {
				t.Fatalf("%+v: WorkerCount(%d) = %d out of bounds", s, pages, got)
			}
			if got < prev {
				t.Fatalf("%+v: WorkerCount(%d) = %d decreased from %d", s, pages, got, prev)
			}
			prev = got
		}
	}
}

// TestWorkerCountInvalidBounds tests that bad bounds never yield fewer than one worker.
func TestWorkerCountInvalidBounds(t *testing.T) {
	t.Parallel()

	if got := WorkerCount(10, Sizing{}); got != 1 {
		t.Errorf("expected 1 worker for zero sizing, got %d", got)
	}
	if got := WorkerCount(5000, Sizing{Floor: 10, Ceiling: 2, LargeDocPages: 100}); got != 10 {
		t.Errorf("ceiling below floor must clamp to floor, got %d", got)
	}
}

// TestPoolRun tests running tasks to completion.
func TestPoolRun(t *testing.T) {
	t.Parallel()

	t.Run("runs every task and reports progress", func(t *testing.T) {
		t.Parallel()

		var (
			mu     sync.Mutex
			events []Event
		)
		pool := NewPool(4,
			WithPoolLogger(slog.New(slog.DiscardHandler)),
			WithProgress(func(ev Event) {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, ev)
			}),
		)

		tasks := make([]Task, 20)
		for i := range tasks {
			tasks[i] = func(context.Context) (Event, error) {
				return Event{Kind: TaskOverflow, Page: i + 1}, nil
			}
		}

		stats := pool.Run(context.Background(), tasks)

		if stats.Completed != 20 || stats.Dispatched != 20 || stats.Abandoned != 0 {
			t.Errorf("unexpected stats %+v", stats)
		}
		if len(events) != 20 {
			t.Fatalf("expected 20 events, got %d", len(events))
		}
		seen := make(map[int]bool)
		for _, ev := range events {
			if ev.Total != 20 {
				t.Errorf("expected total 20, got %d", ev.Total)
			}
			seen[ev.Done] = true
		}
		for i := 1; i <= 20; i++ {
			if !seen[i] {
				t.Errorf("missing Done=%d", i)
			}
		}
	})

	t.Run("never exceeds the worker bound", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		pool := NewPool(3, WithPoolLogger(slog.New(slog.DiscardHandler)))

		tasks := make([]Task, 30)
		for i := range tasks {
			tasks[i] = func(context.Context) (Event, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return Event{}, nil
			}
		}

		pool.Run(context.Background(), tasks)

		if peak.Load() > 3 {
			t.Errorf("expected at most 3 concurrent tasks, saw %d", peak.Load())
		}
	})

	t.Run("empty task list", func(t *testing.T) {
		t.Parallel()

		stats := NewPool(0).Run(context.Background(), nil)
		if stats.Workers != 1 || stats.Completed != 0 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})
}

// TestPoolCancellation tests that cancellation stops dispatch and abandons tasks.
func TestPoolCancellation(t *testing.T) {
	t.Parallel()

	t.Run("abandoned tasks are counted, not failed", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var completedBeforeCancel atomic.Int32
		pool := NewPool(10,
			WithPoolLogger(slog.New(slog.DiscardHandler)),
			WithProgress(func(ev Event) {
				if ev.Done == 2 {
					cancel()
				}
			}),
		)

		tasks := make([]Task, 10)
		for i := range tasks {
			if i < 2 {
				tasks[i] = func(context.Context) (Event, error) {
					completedBeforeCancel.Add(1)
					return Event{Kind: TaskLink}, nil
				}
				continue
			}
			tasks[i] = func(ctx context.Context) (Event, error) {
				<-ctx.Done()
				return Event{}, ctx.Err()
			}
		}

		stats := pool.Run(ctx, tasks)

		if stats.Completed != 2 {
			t.Errorf("expected 2 completed, got %d", stats.Completed)
		}
		if stats.Abandoned+stats.Undispatched() != 8 {
			t.Errorf("expected 8 unfinished tasks, got %+v", stats)
		}
	})

	t.Run("cancelled context dispatches nothing", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Int32
		tasks := []Task{func(context.Context) (Event, error) {
			ran.Add(1)
			return Event{}, nil
		}}

		stats := NewPool(2, WithPoolLogger(slog.New(slog.DiscardHandler))).Run(ctx, tasks)
		if ran.Load() != 0 || stats.Undispatched() != 1 {
			t.Errorf("expected no task to run, stats %+v", stats)
		}
	})

	t.Run("task errors do not stop other tasks", func(t *testing.T) {
		t.Parallel()

		tasks := []Task{
			func(context.Context) (Event, error) { return Event{}, errors.New("abandoned") },
			func(context.Context) (Event, error) { return Event{}, nil },
		}
		stats := NewPool(1, WithPoolLogger(slog.New(slog.DiscardHandler))).Run(context.Background(), tasks)
		if stats.Completed != 1 || stats.Abandoned != 1 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})
}

// TestTaskKindString tests progress labels.
func TestTaskKindString(t *testing.T) {
	t.Parallel()

	if TaskLink.String() != "link" || TaskOverflow.String() != "table" || TaskKind(9).String() != "unknown" {
		t.Error("unexpected task kind labels")
	}
}
