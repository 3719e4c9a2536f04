package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlas-pay/atlas_pay/internal/ledger"
)

// How many due schedules one tick picks up.
const runnerBatchSize = 100

// Runner polls for due schedules and hands them to the Executor. It stands in
// for an external job scheduler; redeliveries are harmless because the
// executor's processed guard makes execution idempotent.
type Runner struct {
	store    ledger.Store
	executor *Executor
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner builds a polling runner.
func NewRunner(store ledger.Store, executor *Executor, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{store: store, executor: executor, interval: interval, logger: logger}
}

// Run polls until the context is canceled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("schedule runner started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("schedule runner stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	due, err := r.store.DueSchedules(ctx, time.Now(), runnerBatchSize)
	if err != nil {
		r.logger.Error("list due schedules", "error", err)
		return
	}
	for _, sch := range due {
		if err := r.executor.Execute(ctx, sch.ID); err != nil {
			r.logger.Error("execute schedule", "schedule_id", sch.ID, "error", err)
		}
	}
}
