// Package worker polls the job store, claims bounded batches and dispatches
// each claimed job to its registered handler. Any number of worker
// processes can run against the same database: claim exclusivity comes
// from the store, not from anything in this package.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skillstore/jobengine/internal/jobs"
)

// Store is the subset of the job store the worker needs.
type Store interface {
	Claim(ctx context.Context, kinds []string, limit int, workerID string) ([]jobs.Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, errMsg string) error
	FailPermanently(ctx context.Context, jobID, errMsg string) error
	ReclaimStale(ctx context.Context, claimedBefore time.Time) (int64, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         Store
	Registry      *Registry
	WorkerID      string
	Concurrency   int
	PollInterval  time.Duration
	ClaimBatch    int
	JobTimeout    time.Duration
	LeaseDuration time.Duration
}

// Worker is the poll/claim/dispatch loop.
type Worker struct {
	logger        *slog.Logger
	store         Store
	registry      *Registry
	workerID      string
	concurrency   int
	pollInterval  time.Duration
	claimBatch    int
	jobTimeout    time.Duration
	leaseDuration time.Duration

	jobsChan chan jobs.Job
	wakeChan chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a worker instance from cfg, applying defaults for unset
// tuning knobs.
func New(cfg *Config) *Worker {
	w := &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		registry:      cfg.Registry,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		pollInterval:  cfg.PollInterval,
		claimBatch:    cfg.ClaimBatch,
		jobTimeout:    cfg.JobTimeout,
		leaseDuration: cfg.LeaseDuration,
		wakeChan:      make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}

	if w.concurrency <= 0 {
		w.concurrency = 4
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.claimBatch <= 0 {
		w.claimBatch = w.concurrency
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 2 * time.Minute
	}
	if w.leaseDuration <= 0 {
		w.leaseDuration = 5 * time.Minute
	}

	w.jobsChan = make(chan jobs.Job, w.claimBatch)
	return w
}

// Start spawns the poller, the executor pool and the lease janitor. It
// returns once everything is running; Stop blocks until in-flight jobs
// have finished.
func (w *Worker) Start(ctx context.Context) {
	kinds := w.registry.Kinds()
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Any("kinds", kinds),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.executorLoop(i)
	}

	w.wg.Add(1)
	go w.pollLoop(ctx, kinds)

	w.wg.Add(1)
	go w.janitorLoop(ctx)
}

// Stop halts claiming, lets in-flight jobs run to completion and returns.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
}

// Wake triggers an immediate claim pass instead of waiting out the poll
// interval. Used by the job-ready nudge consumer; safe to call from any
// goroutine, never blocks.
func (w *Worker) Wake() {
	select {
	case w.wakeChan <- struct{}{}:
	default:
	}
}

// pollLoop claims due jobs on a fixed interval (or earlier on a nudge)
// and feeds them to the executor pool. The claim transaction commits
// before any handler runs.
func (w *Worker) pollLoop(ctx context.Context, kinds []string) {
	defer w.wg.Done()
	defer close(w.jobsChan)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := w.store.Claim(ctx, kinds, w.claimBatch, w.workerID)
		if err != nil {
			w.logger.Error("Failed to claim jobs",
				slog.String("worker_id", w.workerID),
				slog.String("error", err.Error()),
			)
		}

		for _, job := range claimed {
			select {
			case w.jobsChan <- job:
			case <-w.stopChan:
				return
			}
		}

		select {
		case <-ticker.C:
		case <-w.wakeChan:
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// executorLoop processes claimed jobs one at a time until the poller
// closes the channel.
func (w *Worker) executorLoop(executorNum int) {
	defer w.wg.Done()

	for job := range w.jobsChan {
		w.processJob(job, executorNum)
	}
}

// processJob runs the handler for one claimed job and reports the outcome
// back to the store. A handler failure, however ugly, never escapes this
// method: the loop keeps claiming.
func (w *Worker) processJob(job jobs.Job, executorNum int) {
	logger := w.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("kind", job.Kind),
		slog.Int("executor", executorNum),
	)

	handler, ok := w.registry.Resolve(job.Kind)
	if !ok {
		logger.Error("No handler registered for job kind")
		w.reportPermanentFailure(job.JobID, fmt.Sprintf("no handler registered for kind %q", job.Kind))
		return
	}

	// The job context is deliberately detached from the loop context:
	// shutdown stops claiming but lets this invocation finish.
	jobCtx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	start := time.Now()
	err := w.execute(jobCtx, handler, job)
	elapsed := time.Since(start)

	if err != nil {
		logger.Warn("Job execution failed",
			slog.Int("attempts", job.Attempts+1),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		w.reportFailure(job.JobID, err.Error())
		return
	}

	logger.Info("Job completed",
		slog.Duration("elapsed", elapsed),
	)
	w.reportCompletion(job.JobID)
}

// execute invokes the handler, converting a panic into an error.
func (w *Worker) execute(ctx context.Context, handler Handler, job jobs.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Execute(ctx, job.Payload)
}

func (w *Worker) reportCompletion(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.store.Complete(ctx, jobID); err != nil {
		w.logger.Error("Failed to mark job completed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Worker) reportFailure(jobID, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.store.Fail(ctx, jobID, errMsg); err != nil {
		w.logger.Error("Failed to record job failure",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Worker) reportPermanentFailure(jobID, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.store.FailPermanently(ctx, jobID, errMsg); err != nil {
		w.logger.Error("Failed to record permanent job failure",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// janitorLoop returns jobs whose claim lease expired to the pending pool.
// Covers workers that crashed between claim and completion.
func (w *Worker) janitorLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.leaseDuration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-w.leaseDuration)
			if _, err := w.store.ReclaimStale(ctx, cutoff); err != nil {
				w.logger.Error("Failed to reclaim stale jobs",
					slog.String("error", err.Error()),
				)
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
