package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-pay/atlas_pay/internal/gateway"
	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/money"
)

var (
	// ErrInvalidAmount rejects zero or negative amounts before any state change.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrPastSchedule rejects scheduled times that are not in the future.
	ErrPastSchedule = errors.New("scheduled time must be in the future")
)

// Service owns the wallet balance invariant. Every mutation goes through the
// store's locked transactional unit; balance never commits below zero.
type Service struct {
	store  ledger.Store
	saga   *Saga
	logger *slog.Logger
}

// NewService builds a wallet service.
func NewService(store ledger.Store, saga *Saga, logger *slog.Logger) *Service {
	return &Service{store: store, saga: saga, logger: logger}
}

// Create opens a wallet with a zero balance.
func (s *Service) Create(ctx context.Context) (ledger.Wallet, error) {
	return s.store.CreateWallet(ctx)
}

// Get fetches wallet state.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.Wallet, error) {
	return s.store.GetWallet(ctx, id)
}

// Entries returns the wallet's append-only audit trail.
func (s *Service) Entries(ctx context.Context, id uuid.UUID) ([]ledger.Entry, error) {
	if _, err := s.store.GetWallet(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Entries(ctx, id)
}

// Deposit credits the wallet and appends a settled deposit entry in the same
// atomic unit. Deposits never contact the gateway and are final on commit.
func (s *Service) Deposit(ctx context.Context, id uuid.UUID, amount money.Amount) (money.Amount, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balance money.Amount
	err := s.store.WithWallet(ctx, id, func(ctx context.Context, tx ledger.Tx) error {
		b, err := tx.Apply(ctx, amount)
		if err != nil {
			return err
		}
		balance = b
		return tx.Append(ctx, ledger.Entry{
			WalletID: id,
			Amount:   amount,
			Kind:     ledger.EntryDeposit,
			Settled:  true,
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("deposit committed", "wallet_id", id, "amount", amount.String())
	return balance, nil
}

// WithdrawResult describes the caller-visible outcome of a withdrawal. A
// failed settlement is not an error: the balance was restored and the
// unsettled audit entry carries the gateway's verdict.
type WithdrawResult struct {
	Balance money.Amount
	Outcome gateway.Outcome
}

// Withdraw runs the withdrawal saga for the immediate path. The insufficient
// funds check happens before the gateway is ever contacted.
func (s *Service) Withdraw(ctx context.Context, id uuid.UUID, amount money.Amount) (WithdrawResult, error) {
	if amount <= 0 {
		return WithdrawResult{}, ErrInvalidAmount
	}

	var result WithdrawResult
	err := s.store.WithWallet(ctx, id, func(ctx context.Context, tx ledger.Tx) error {
		if tx.Balance() < amount {
			return ledger.ErrInsufficientFunds
		}
		res, err := s.saga.Withdraw(ctx, tx, id, amount)
		if err != nil {
			return err
		}
		result = WithdrawResult{Balance: res.Balance, Outcome: res.Outcome}
		return nil
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	return result, nil
}

// ScheduleWithdraw reserves funds now and queues the withdrawal for the given
// future time. The reservation debit, its audit entry and the schedule row
// commit as one unit, so stacked schedules cannot overdraw the wallet and the
// entry log reconciles with the balance history.
func (s *Service) ScheduleWithdraw(ctx context.Context, id uuid.UUID, amount money.Amount, at time.Time) (ledger.Schedule, error) {
	if amount <= 0 {
		return ledger.Schedule{}, ErrInvalidAmount
	}
	if !at.After(time.Now()) {
		return ledger.Schedule{}, ErrPastSchedule
	}

	sch := ledger.Schedule{
		ID:          uuid.New(),
		WalletID:    id,
		Amount:      amount,
		ScheduledAt: at.UTC(),
		Outcome:     ledger.OutcomePending,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.store.WithWallet(ctx, id, func(ctx context.Context, tx ledger.Tx) error {
		if tx.Balance() < amount {
			return ledger.ErrInsufficientFunds
		}
		if _, err := tx.Apply(ctx, -amount); err != nil {
			return err
		}
		if err := tx.Append(ctx, ledger.Entry{
			WalletID: id,
			Amount:   amount,
			Kind:     ledger.EntryReservation,
			Settled:  false,
		}); err != nil {
			return err
		}
		return tx.CreateSchedule(ctx, sch)
	})
	if err != nil {
		return ledger.Schedule{}, err
	}

	s.logger.Info("withdrawal scheduled",
		"wallet_id", id, "schedule_id", sch.ID, "amount", amount.String(), "scheduled_at", sch.ScheduledAt)
	return sch, nil
}
