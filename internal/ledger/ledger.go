package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

var (
	// ErrInsufficientFunds occurs when a balance change would leave the wallet
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletNotFound indicates an unknown wallet identifier.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrScheduleNotFound indicates an unknown scheduled withdrawal identifier.
	ErrScheduleNotFound = errors.New("scheduled withdrawal not found")

	// ErrWalletBusy indicates the wallet row lock is held by another operation.
	// Callers that can retry (the scheduled executor) treat this as transient.
	ErrWalletBusy = errors.New("wallet locked by concurrent operation")
)

// EntryKind distinguishes the movement a ledger entry records.
type EntryKind string

const (
	// EntryDeposit credits the wallet. Deposits are final on commit.
	EntryDeposit EntryKind = "deposit"
	// EntryWithdrawal debits the wallet through the settlement saga.
	EntryWithdrawal EntryKind = "withdrawal"
	// EntryReservation earmarks funds for a scheduled withdrawal. The matching
	// withdrawal entry is written when the schedule executes.
	EntryReservation EntryKind = "reservation"
)

// ScheduleOutcome records how a scheduled withdrawal ended. Processed and
// outcome are tracked separately so "done" is never conflated with "paid out".
type ScheduleOutcome string

const (
	OutcomePending     ScheduleOutcome = "pending"
	OutcomeConfirmed   ScheduleOutcome = "confirmed"
	OutcomeCompensated ScheduleOutcome = "compensated"
	OutcomeAbandoned   ScheduleOutcome = "abandoned"
)

// Wallet is a stored-value account. Balance is a materialized field kept in
// step with the settled entry log by the store's atomic operations.
type Wallet struct {
	ID        uuid.UUID
	Balance   money.Amount
	CreatedAt time.Time
}

// Entry is one immutable audit record. Entries are appended exactly once per
// completed attempt and never mutated afterward. GatewayCode and
// GatewayMessage are only populated for withdrawals that contacted the
// settlement gateway.
type Entry struct {
	ID             uuid.UUID
	WalletID       uuid.UUID
	Amount         money.Amount
	Kind           EntryKind
	Settled        bool
	GatewayCode    int
	GatewayMessage string
	CreatedAt      time.Time
}

// Schedule is a withdrawal queued for a future time. Processed transitions
// false to true exactly once, on every execution path.
type Schedule struct {
	ID          uuid.UUID
	WalletID    uuid.UUID
	Amount      money.Amount
	ScheduledAt time.Time
	Processed   bool
	Outcome     ScheduleOutcome
	CreatedAt   time.Time
}

// Tx is the unit of work handed to callers while the wallet row lock is held.
// Everything done through it commits or rolls back as one atomic unit with
// the balance change.
type Tx interface {
	// Balance returns the balance as currently seen inside the transaction,
	// including any deltas already applied through this Tx.
	Balance() money.Amount

	// Apply atomically adds the signed delta to the balance. The store rejects
	// the update with ErrInsufficientFunds if the result would be negative;
	// there is no read-then-write race to exploit.
	Apply(ctx context.Context, delta money.Amount) (money.Amount, error)

	// Append writes one audit entry in the same atomic unit.
	Append(ctx context.Context, e Entry) error

	// CreateSchedule persists a scheduled withdrawal together with its
	// reservation.
	CreateSchedule(ctx context.Context, s Schedule) error

	// Schedule reloads a schedule with an exclusive lock so the processed
	// guard holds under concurrent deliveries.
	Schedule(ctx context.Context, id uuid.UUID) (Schedule, error)

	// FinalizeSchedule marks the schedule processed with the given outcome.
	// A no-op if the schedule was already processed.
	FinalizeSchedule(ctx context.Context, id uuid.UUID, outcome ScheduleOutcome) error
}

// Store is the transactional persistence boundary for wallets, audit entries
// and scheduled withdrawals.
type Store interface {
	CreateWallet(ctx context.Context) (Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (Wallet, error)

	// Entries returns the append-only audit trail for a wallet, oldest first.
	Entries(ctx context.Context, walletID uuid.UUID) ([]Entry, error)

	// SettledNet returns deposits minus settled withdrawals, the figure the
	// materialized balance must reconcile against.
	SettledNet(ctx context.Context, walletID uuid.UUID) (money.Amount, error)

	// WithWallet runs fn holding an exclusive lock on the wallet row, blocking
	// until the lock is available.
	WithWallet(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	// TryWithWallet is WithWallet with no-wait lock semantics: if the row lock
	// is held elsewhere it fails fast with ErrWalletBusy.
	TryWithWallet(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	GetSchedule(ctx context.Context, id uuid.UUID) (Schedule, error)

	// FinalizeSchedule marks a schedule processed outside a wallet lock. Used
	// when lock acquisition itself was exhausted.
	FinalizeSchedule(ctx context.Context, id uuid.UUID, outcome ScheduleOutcome) error

	// DueSchedules lists unprocessed schedules due at or before now.
	DueSchedules(ctx context.Context, now time.Time, limit int) ([]Schedule, error)
}
