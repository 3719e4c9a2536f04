package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

// Postgres error code raised by SELECT ... FOR UPDATE NOWAIT on a held lock.
const pgLockNotAvailable = "55P03"

// PostgresStore persists wallets, audit entries and schedules in PostgreSQL.
// Balance mutations and audit appends run in one transaction holding the
// wallet row lock.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateWallet inserts a zero-balance wallet.
func (s *PostgresStore) CreateWallet(ctx context.Context) (Wallet, error) {
	w := Wallet{ID: uuid.New(), CreatedAt: time.Now().UTC()}
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, balance, created_at) VALUES ($1, 0, $2)`,
		w.ID, w.CreatedAt)
	if err != nil {
		return Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	return w, nil
}

// GetWallet fetches a wallet by identifier without taking any lock.
func (s *PostgresStore) GetWallet(ctx context.Context, id uuid.UUID) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT id, balance, created_at FROM wallets WHERE id = $1`, id)
	var w Wallet
	var balance int64
	if err := row.Scan(&w.ID, &balance, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.Balance = money.Amount(balance)
	return w, nil
}

// Entries returns the wallet's audit trail, oldest first.
func (s *PostgresStore) Entries(ctx context.Context, walletID uuid.UUID) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, wallet_id, amount, kind, settled, gateway_code, gateway_message, created_at
        FROM entries WHERE wallet_id = $1 ORDER BY created_at, id`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var amount int64
		if err := rows.Scan(&e.ID, &e.WalletID, &amount, &e.Kind, &e.Settled,
			&e.GatewayCode, &e.GatewayMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount = money.Amount(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SettledNet sums deposits minus settled withdrawals for reconciliation
// against the materialized balance.
func (s *PostgresStore) SettledNet(ctx context.Context, walletID uuid.UUID) (money.Amount, error) {
	const query = `
        SELECT COALESCE(SUM(CASE
            WHEN kind = 'deposit' THEN amount
            WHEN kind = 'withdrawal' AND settled THEN -amount
            ELSE 0
        END), 0)
        FROM entries WHERE wallet_id = $1`
	var net int64
	if err := s.db.QueryRow(ctx, query, walletID).Scan(&net); err != nil {
		return 0, err
	}
	return money.Amount(net), nil
}

// WithWallet runs fn inside a transaction holding the wallet row lock,
// waiting for the lock if necessary.
func (s *PostgresStore) WithWallet(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	return s.withWallet(ctx, walletID, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, fn)
}

// TryWithWallet is WithWallet with NOWAIT lock semantics; a held lock surfaces
// as ErrWalletBusy instead of blocking.
func (s *PostgresStore) TryWithWallet(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	return s.withWallet(ctx, walletID, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE NOWAIT`, fn)
}

func (s *PostgresStore) withWallet(ctx context.Context, walletID uuid.UUID, lockQuery string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balance int64
	if err := tx.QueryRow(ctx, lockQuery, walletID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWalletNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return ErrWalletBusy
		}
		return err
	}

	if err := fn(ctx, &pgTx{tx: tx, walletID: walletID, balance: money.Amount(balance)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetSchedule fetches a scheduled withdrawal without locking it.
func (s *PostgresStore) GetSchedule(ctx context.Context, id uuid.UUID) (Schedule, error) {
	return scanSchedule(s.db.QueryRow(ctx, `
        SELECT id, wallet_id, amount, scheduled_at, processed, outcome, created_at
        FROM schedules WHERE id = $1`, id))
}

// FinalizeSchedule marks a schedule processed with its outcome. Already
// processed schedules are left untouched so the transition fires exactly once.
func (s *PostgresStore) FinalizeSchedule(ctx context.Context, id uuid.UUID, outcome ScheduleOutcome) error {
	return finalizeSchedule(ctx, s.db, id, outcome)
}

// DueSchedules lists unprocessed schedules due at or before now.
func (s *PostgresStore) DueSchedules(ctx context.Context, now time.Time, limit int) ([]Schedule, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, wallet_id, amount, scheduled_at, processed, outcome, created_at
        FROM schedules
        WHERE processed = FALSE AND scheduled_at <= $1
        ORDER BY scheduled_at
        LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, sch)
	}
	return due, rows.Err()
}

// pgTx is the in-transaction view of one locked wallet.
type pgTx struct {
	tx       pgx.Tx
	walletID uuid.UUID
	balance  money.Amount
}

func (t *pgTx) Balance() money.Amount {
	return t.balance
}

// Apply adds the signed delta, guarded in SQL so the balance can never commit
// negative regardless of what the caller read earlier.
func (t *pgTx) Apply(ctx context.Context, delta money.Amount) (money.Amount, error) {
	const query = `
        UPDATE wallets SET balance = balance + $1
        WHERE id = $2 AND balance + $1 >= 0
        RETURNING balance`
	var balance int64
	if err := t.tx.QueryRow(ctx, query, int64(delta), t.walletID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInsufficientFunds
		}
		return 0, err
	}
	t.balance = money.Amount(balance)
	return t.balance, nil
}

func (t *pgTx) Append(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO entries (id, wallet_id, amount, kind, settled, gateway_code, gateway_message, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.WalletID, int64(e.Amount), e.Kind, e.Settled, e.GatewayCode, e.GatewayMessage, e.CreatedAt)
	return err
}

func (t *pgTx) CreateSchedule(ctx context.Context, s Schedule) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO schedules (id, wallet_id, amount, scheduled_at, processed, outcome, created_at)
        VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		s.ID, s.WalletID, int64(s.Amount), s.ScheduledAt.UTC(), OutcomePending, s.CreatedAt)
	return err
}

// Schedule reloads the schedule row with an exclusive lock, serializing
// concurrent deliveries of the same schedule.
func (t *pgTx) Schedule(ctx context.Context, id uuid.UUID) (Schedule, error) {
	return scanSchedule(t.tx.QueryRow(ctx, `
        SELECT id, wallet_id, amount, scheduled_at, processed, outcome, created_at
        FROM schedules WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) FinalizeSchedule(ctx context.Context, id uuid.UUID, outcome ScheduleOutcome) error {
	return finalizeSchedule(ctx, t.tx, id, outcome)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func finalizeSchedule(ctx context.Context, db execer, id uuid.UUID, outcome ScheduleOutcome) error {
	// Zero rows affected means unknown or already processed; both are
	// terminal, so no error either way.
	_, err := db.Exec(ctx, `
        UPDATE schedules SET processed = TRUE, outcome = $2
        WHERE id = $1 AND processed = FALSE`, id, outcome)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var s Schedule
	var amount int64
	if err := row.Scan(&s.ID, &s.WalletID, &amount, &s.ScheduledAt, &s.Processed, &s.Outcome, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Schedule{}, ErrScheduleNotFound
		}
		return Schedule{}, err
	}
	s.Amount = money.Amount(amount)
	return s, nil
}
