package schedules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillstore/jobengine/internal/jobs"
)

// ScheduleStore is the subset of the store the scheduler needs.
type ScheduleStore interface {
	GetByID(ctx context.Context, scheduleID string) (*Schedule, error)
	DueSchedules(ctx context.Context, now time.Time, limit int) ([]Schedule, error)
	MarkRun(ctx context.Context, scheduleID string, ranAt time.Time, status string, nextRunAt time.Time) (bool, error)
}

// Enqueuer is the job-store surface the scheduler enqueues through.
type Enqueuer interface {
	Enqueue(ctx context.Context, params jobs.EnqueueParams) (*jobs.Job, bool, error)
}

// runPayload is the payload written into scheduled_process jobs. The
// worker-side handler parses the same shape.
type runPayload struct {
	ScheduleID    string          `json:"schedule_id"`
	OwnerID       string          `json:"owner_id"`
	CollectionID  string          `json:"collection_id"`
	WebhookURL    string          `json:"webhook_url"`
	Payload       json.RawMessage `json:"payload"`
	ManualTrigger bool            `json:"manual_trigger"`
}

// Config holds scheduler configuration
type Config struct {
	Logger       *slog.Logger
	Store        ScheduleStore
	Enqueuer     Enqueuer
	TickInterval time.Duration
	TickBatch    int
}

// Scheduler fires due schedules into the job store on a tick loop and
// serves manual triggers.
type Scheduler struct {
	logger       *slog.Logger
	store        ScheduleStore
	enqueuer     Enqueuer
	tickInterval time.Duration
	tickBatch    int
}

// NewScheduler creates a Scheduler from cfg.
func NewScheduler(cfg *Config) *Scheduler {
	s := &Scheduler{
		logger:       cfg.Logger,
		store:        cfg.Store,
		enqueuer:     cfg.Enqueuer,
		tickInterval: cfg.TickInterval,
		tickBatch:    cfg.TickBatch,
	}

	if s.tickInterval <= 0 {
		s.tickInterval = 30 * time.Second
	}
	if s.tickBatch <= 0 {
		s.tickBatch = 100
	}

	return s
}

// Run ticks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Starting cron scheduler",
		slog.Duration("tick_interval", s.tickInterval),
	)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now()); err != nil {
				s.logger.Error("Scheduler tick failed",
					slog.String("error", err.Error()),
				)
			}
		case <-ctx.Done():
			s.logger.Info("Cron scheduler stopped")
			return
		}
	}
}

// Tick enqueues a scheduled_process job for every enabled schedule whose
// next_run_at has passed, then advances the schedule's bookkeeping. The
// firing-time idempotency key collapses duplicate enqueues from
// concurrent scheduler instances into one job.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	due, err := s.store.DueSchedules(ctx, now, s.tickBatch)
	if err != nil {
		return fmt.Errorf("failed to load due schedules: %w", err)
	}

	for _, sched := range due {
		nextRun, err := NextRun(sched.CronExpression, sched.Timezone, now)
		if err != nil {
			// A stored schedule that no longer validates: skip but keep
			// ticking the rest.
			s.logger.Error("Stored schedule failed to parse",
				slog.String("schedule_id", sched.ScheduleID),
				slog.String("cron", sched.CronExpression),
				slog.String("error", err.Error()),
			)
			continue
		}

		key := firingKey(sched.ScheduleID, sched.NextRunAt)
		job, _, err := s.enqueuer.Enqueue(ctx, jobs.EnqueueParams{
			Kind:           jobs.KindScheduledProcess,
			Payload:        s.buildPayload(&sched, false),
			IdempotencyKey: &key,
			MaxAttempts:    sched.MaxRetries,
		})
		if err != nil {
			s.logger.Error("Failed to enqueue scheduled job",
				slog.String("schedule_id", sched.ScheduleID),
				slog.String("error", err.Error()),
			)
			continue
		}

		owned, err := s.store.MarkRun(ctx, sched.ScheduleID, now, RunStatusEnqueued, nextRun)
		if err != nil {
			s.logger.Error("Failed to mark schedule run",
				slog.String("schedule_id", sched.ScheduleID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if owned {
			s.logger.Info("Schedule fired",
				slog.String("schedule_id", sched.ScheduleID),
				slog.String("job_id", job.JobID),
				slog.Time("next_run_at", nextRun),
			)
		}
	}

	return nil
}

// Trigger enqueues a scheduled_process job immediately, ignoring the
// schedule's enabled flag and timing, and returns the new job. The timed
// bookkeeping (last_run_at, next_run_at) is not touched.
func (s *Scheduler) Trigger(ctx context.Context, scheduleID string) (*jobs.Job, error) {
	sched, err := s.store.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	job, _, err := s.enqueuer.Enqueue(ctx, jobs.EnqueueParams{
		Kind:        jobs.KindScheduledProcess,
		Payload:     s.buildPayload(sched, true),
		MaxAttempts: sched.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue manual trigger: %w", err)
	}

	s.logger.Info("Schedule triggered manually",
		slog.String("schedule_id", scheduleID),
		slog.String("job_id", job.JobID),
	)

	return job, nil
}

func (s *Scheduler) buildPayload(sched *Schedule, manual bool) json.RawMessage {
	payload, err := json.Marshal(runPayload{
		ScheduleID:    sched.ScheduleID,
		OwnerID:       sched.OwnerID,
		CollectionID:  sched.CollectionID,
		WebhookURL:    sched.WebhookURL,
		Payload:       sched.PayloadTemplate,
		ManualTrigger: manual,
	})
	if err != nil {
		// runPayload is marshal-safe by construction.
		return json.RawMessage(`{}`)
	}
	return payload
}

// firingKey identifies one nominal firing of one schedule.
func firingKey(scheduleID string, firing time.Time) string {
	return fmt.Sprintf("schedule:%s:%d", scheduleID, firing.Unix())
}
