package merge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/transhist/internal/record"
)

// ErrWorkerStopped is returned by Submit after Stop.
var ErrWorkerStopped = errors.New("merge finder worker stopped")

type findJob struct {
	ctx     context.Context
	records []record.HistoryRecord
	filter  PairFilter
	reply   chan findResult
}

type findResult struct {
	candidates []record.MergeCandidate
	err        error
}

// Worker runs candidate scans on a background goroutine so callers never
// block on a large scan. Jobs are processed one at a time in submission order.
type Worker struct {
	opts   []FinderOption
	logger *slog.Logger

	jobs chan findJob
	quit chan struct{}
	done chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewWorker creates a Worker whose scans use the given Finder options.
// Call Start before Submit.
func NewWorker(logger *slog.Logger, opts ...FinderOption) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		opts:   opts,
		logger: logger,
		jobs:   make(chan findJob),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling Start twice is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.loop()
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case job := <-w.jobs:
			finder := NewFinder(job.filter, w.opts...)
			candidates, err := finder.FindCandidates(job.ctx, job.records)
			if err != nil {
				w.logger.Warn("merge candidate scan failed", "error", err)
			}
			// reply is buffered; an abandoned job never blocks the loop.
			job.reply <- findResult{candidates: candidates, err: err}
		}
	}
}

// Submit scans a snapshot of records on the worker goroutine, filtering
// pairs through filter, and waits for the result. The records are
// deep-copied before handoff, so the caller may mutate its slice afterwards.
// If ctx ends first the job is abandoned.
func (w *Worker) Submit(ctx context.Context, records []record.HistoryRecord, filter PairFilter) ([]record.MergeCandidate, error) {
	snapshot := make([]record.HistoryRecord, len(records))
	for i, r := range records {
		snapshot[i] = r.Clone()
	}

	job := findJob{ctx: ctx, records: snapshot, filter: filter, reply: make(chan findResult, 1)}
	select {
	case w.jobs <- job:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.reply:
		return res.candidates, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop terminates the worker and waits for an in-flight scan to finish.
// Safe to call more than once, and before Start.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	close(w.quit)
	w.mu.Unlock()

	if started {
		<-w.done
	}
}
