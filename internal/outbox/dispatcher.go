package outbox

import (
	"context"
	"log/slog"
	"time"
)

// EntryStore is the subset of Store the dispatcher needs.
type EntryStore interface {
	ClaimDue(ctx context.Context, limit int) ([]Entry, error)
	MarkDispatched(ctx context.Context, entryID string) error
	Fail(ctx context.Context, entryID, errMsg string) error
	CountStats(ctx context.Context) (Stats, error)
}

// Deliverer sends a single entry to its destination.
type Deliverer interface {
	Configured() bool
	Deliver(ctx context.Context, entry Entry) error
}

// Result summarizes one dispatch pass.
type Result struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Dispatcher drains due outbox entries to the webhook gateway.
type Dispatcher struct {
	logger   *slog.Logger
	store    EntryStore
	gateway  Deliverer
	interval time.Duration
	batch    int
}

// DispatcherConfig holds the dependencies and tuning for a Dispatcher.
type DispatcherConfig struct {
	Logger   *slog.Logger
	Store    EntryStore
	Gateway  Deliverer
	Interval time.Duration
	Batch    int
}

// NewDispatcher creates a Dispatcher instance
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Dispatcher{
		logger:   cfg.Logger,
		store:    cfg.Store,
		gateway:  cfg.Gateway,
		interval: cfg.Interval,
		batch:    cfg.Batch,
	}
}

// Run processes entries on a fixed interval until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Outbox dispatcher started",
		slog.Duration("interval", d.interval),
		slog.Int("batch", d.batch),
		slog.Bool("gateway_configured", d.gateway.Configured()),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.Process(ctx, d.batch); err != nil {
				d.logger.Error("Outbox dispatch pass failed", slog.Any("error", err))
			}
		}
	}
}

// Process claims up to limit due entries and delivers them one by one.
// With no gateway configured it is a no-op: entries stay in the outbox
// untouched until a receiver exists.
func (d *Dispatcher) Process(ctx context.Context, limit int) (Result, error) {
	if !d.gateway.Configured() {
		return Result{}, nil
	}
	if limit <= 0 {
		limit = d.batch
	}

	entries, err := d.store.ClaimDue(ctx, limit)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, entry := range entries {
		result.Processed++

		if err := d.gateway.Deliver(ctx, entry); err != nil {
			result.Failed++
			if failErr := d.store.Fail(ctx, entry.EntryID, err.Error()); failErr != nil {
				d.logger.Error("Failed to record outbox delivery failure",
					slog.String("entry_id", entry.EntryID),
					slog.Any("error", failErr),
				)
			}
			continue
		}

		if err := d.store.MarkDispatched(ctx, entry.EntryID); err != nil {
			d.logger.Error("Failed to mark outbox entry dispatched",
				slog.String("entry_id", entry.EntryID),
				slog.Any("error", err),
			)
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	if result.Processed > 0 {
		d.logger.Info("Outbox dispatch pass completed",
			slog.Int("processed", result.Processed),
			slog.Int("succeeded", result.Succeeded),
			slog.Int("failed", result.Failed),
		)
	}

	return result, nil
}

// Status reports outbox depth for the status endpoint.
func (d *Dispatcher) Status(ctx context.Context) (Stats, bool, error) {
	stats, err := d.store.CountStats(ctx)
	if err != nil {
		return Stats{}, false, err
	}
	return stats, d.gateway.Configured(), nil
}
