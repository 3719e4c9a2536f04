package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/notification"
	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

const (
	// DefaultLockAttempts caps how many times one execution tries to take the
	// wallet row lock before abandoning.
	DefaultLockAttempts = 50
	// DefaultLockInterval is the fixed wait between lock attempts.
	DefaultLockInterval = time.Second
)

// errAlreadyProcessed short-circuits an execution whose schedule was
// finalized by a concurrent delivery after the initial guard check.
var errAlreadyProcessed = errors.New("schedule already processed")

// Executor drives scheduled withdrawals when their due time arrives. It
// tolerates at-least-once delivery through the processed guard, retries
// wallet lock contention on a fixed interval, and finalizes the schedule
// exactly once on every path: settlement confirmed, settlement compensated,
// or lock retries exhausted.
type Executor struct {
	store    ledger.Store
	saga     *wallet.Saga
	notifier notification.Notifier
	attempts uint64
	interval time.Duration
	logger   *slog.Logger
}

// NewExecutor builds a scheduled withdrawal executor. Non-positive attempts
// or interval fall back to the defaults.
func NewExecutor(store ledger.Store, saga *wallet.Saga, notifier notification.Notifier, attempts int, interval time.Duration, logger *slog.Logger) *Executor {
	if attempts <= 0 {
		attempts = DefaultLockAttempts
	}
	if interval <= 0 {
		interval = DefaultLockInterval
	}
	return &Executor{
		store:    store,
		saga:     saga,
		notifier: notifier,
		attempts: uint64(attempts),
		interval: interval,
		logger:   logger,
	}
}

// Execute runs one scheduled withdrawal to completion. Safe to call again for
// an already-processed schedule: that is a no-op with no balance change and
// no new audit entry.
func (e *Executor) Execute(ctx context.Context, scheduleID uuid.UUID) error {
	sch, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if sch.Processed {
		e.logger.Info("schedule already processed, skipping", "schedule_id", scheduleID)
		return nil
	}

	var outcome ledger.ScheduleOutcome
	attempt := func() error {
		err := e.store.TryWithWallet(ctx, sch.WalletID, func(ctx context.Context, tx ledger.Tx) error {
			// Re-check under the lock: a concurrent delivery may have won the
			// race between the guard above and lock acquisition.
			current, err := tx.Schedule(ctx, scheduleID)
			if err != nil {
				return err
			}
			if current.Processed {
				return errAlreadyProcessed
			}

			res, err := e.saga.SettleReserved(ctx, tx, sch.WalletID, sch.Amount)
			if err != nil {
				return err
			}
			if res.Outcome.Confirmed() {
				outcome = ledger.OutcomeConfirmed
			} else {
				outcome = ledger.OutcomeCompensated
			}
			return tx.FinalizeSchedule(ctx, scheduleID, outcome)
		})
		if errors.Is(err, ledger.ErrWalletBusy) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.interval), e.attempts-1), ctx)
	err = backoff.Retry(attempt, policy)

	switch {
	case err == nil:
	case errors.Is(err, errAlreadyProcessed):
		return nil
	case errors.Is(err, ledger.ErrWalletBusy):
		// Retries exhausted: abandon without a settlement attempt. The
		// reservation stays in place; the abandoned outcome marks the
		// schedule for operator remediation.
		outcome = ledger.OutcomeAbandoned
		e.logger.Warn("wallet lock retries exhausted, abandoning schedule",
			"schedule_id", scheduleID, "wallet_id", sch.WalletID, "attempts", e.attempts)
		if err := e.store.FinalizeSchedule(ctx, scheduleID, outcome); err != nil {
			return fmt.Errorf("finalize abandoned schedule: %w", err)
		}
	default:
		// The saga transaction rolled back. The schedule is still finalized
		// so a redelivery cannot run a half-understood state again; the
		// abandoned outcome records that no settlement completed.
		outcome = ledger.OutcomeAbandoned
		e.logger.Error("schedule execution failed, abandoning",
			"schedule_id", scheduleID, "wallet_id", sch.WalletID, "error", err)
		if ferr := e.store.FinalizeSchedule(ctx, scheduleID, outcome); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}

	e.logger.Info("schedule processed",
		"schedule_id", scheduleID, "wallet_id", sch.WalletID, "outcome", string(outcome))
	if e.notifier != nil {
		_ = e.notifier.Send(ctx, notification.Message{
			Kind:     notification.KindScheduleProcessed,
			WalletID: sch.WalletID.String(),
			Body:     fmt.Sprintf("scheduled withdrawal of %s finished: %s", sch.Amount, outcome),
		})
	}
	return nil
}
