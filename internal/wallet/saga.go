package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atlas-pay/atlas_pay/internal/gateway"
	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/money"
	"github.com/atlas-pay/atlas_pay/internal/notification"
)

// SagaResult is the outcome of one settlement attempt.
type SagaResult struct {
	Balance money.Amount
	Outcome gateway.Outcome
}

// Saga runs the compensating-transaction protocol for a single withdrawal
// attempt: provisional debit, settlement call, exact reversal when the
// gateway does not confirm, and exactly one audit entry either way. It
// operates inside an open ledger.Tx so the whole attempt commits as one
// atomic unit while the wallet row lock is held.
//
// The debit happens before the gateway call on purpose: concurrent
// withdrawals must not be able to collectively overdraw the wallet while a
// settlement call is in flight.
type Saga struct {
	gateway  gateway.Gateway
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewSaga builds a withdrawal saga.
func NewSaga(gw gateway.Gateway, notifier notification.Notifier, logger *slog.Logger) *Saga {
	return &Saga{gateway: gw, notifier: notifier, logger: logger}
}

// Withdraw debits the wallet and settles: the immediate withdrawal path.
func (s *Saga) Withdraw(ctx context.Context, tx ledger.Tx, walletID uuid.UUID, amount money.Amount) (SagaResult, error) {
	if _, err := tx.Apply(ctx, -amount); err != nil {
		return SagaResult{}, err
	}
	return s.settle(ctx, tx, walletID, amount)
}

// SettleReserved settles funds that were already debited when the schedule
// reserved them. Only the gateway call, possible compensation, and the audit
// entry remain.
func (s *Saga) SettleReserved(ctx context.Context, tx ledger.Tx, walletID uuid.UUID, amount money.Amount) (SagaResult, error) {
	return s.settle(ctx, tx, walletID, amount)
}

func (s *Saga) settle(ctx context.Context, tx ledger.Tx, walletID uuid.UUID, amount money.Amount) (SagaResult, error) {
	outcome := s.gateway.Submit(ctx, amount)

	balance := tx.Balance()
	if !outcome.Confirmed() {
		var err error
		balance, err = tx.Apply(ctx, amount)
		if err != nil {
			return SagaResult{}, fmt.Errorf("compensate withdrawal: %w", err)
		}
		s.logger.Warn("withdrawal compensated",
			"wallet_id", walletID,
			"amount", amount.String(),
			"result", string(outcome.Result),
			"gateway_code", outcome.StatusCode)
		if s.notifier != nil {
			_ = s.notifier.Send(ctx, notification.Message{
				Kind:     notification.KindSettlementFailed,
				WalletID: walletID.String(),
				Body:     fmt.Sprintf("withdrawal of %s reversed: %s", amount, outcome.Message),
			})
		}
	}

	// Written unconditionally: the unsettled entry is the only durable record
	// that settlement failed.
	err := tx.Append(ctx, ledger.Entry{
		WalletID:       walletID,
		Amount:         amount,
		Kind:           ledger.EntryWithdrawal,
		Settled:        outcome.Confirmed(),
		GatewayCode:    outcome.StatusCode,
		GatewayMessage: outcome.Message,
	})
	if err != nil {
		return SagaResult{}, fmt.Errorf("append withdrawal entry: %w", err)
	}

	return SagaResult{Balance: balance, Outcome: outcome}, nil
}
