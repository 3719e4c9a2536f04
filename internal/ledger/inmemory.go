package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

type memWallet struct {
	// mu stands in for the Postgres row lock: WithWallet blocks on it,
	// TryWithWallet uses TryLock for NOWAIT semantics.
	mu     sync.Mutex
	wallet Wallet
}

type inMemoryStore struct {
	mu        sync.RWMutex
	wallets   map[uuid.UUID]*memWallet
	entries   map[uuid.UUID][]Entry
	schedules map[uuid.UUID]*Schedule
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests. It mirrors the Postgres store's locking behavior per wallet.
func NewInMemory() Store {
	return &inMemoryStore{
		wallets:   make(map[uuid.UUID]*memWallet),
		entries:   make(map[uuid.UUID][]Entry),
		schedules: make(map[uuid.UUID]*Schedule),
	}
}

func (s *inMemoryStore) CreateWallet(_ context.Context) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := Wallet{ID: uuid.New(), CreatedAt: time.Now().UTC()}
	s.wallets[w.ID] = &memWallet{wallet: w}
	return w, nil
}

func (s *inMemoryStore) GetWallet(_ context.Context, id uuid.UUID) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mw, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return mw.wallet, nil
}

func (s *inMemoryStore) Entries(_ context.Context, walletID uuid.UUID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, len(s.entries[walletID]))
	copy(entries, s.entries[walletID])
	return entries, nil
}

func (s *inMemoryStore) SettledNet(_ context.Context, walletID uuid.UUID) (money.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var net money.Amount
	for _, e := range s.entries[walletID] {
		switch {
		case e.Kind == EntryDeposit:
			net += e.Amount
		case e.Kind == EntryWithdrawal && e.Settled:
			net -= e.Amount
		}
	}
	return net, nil
}

func (s *inMemoryStore) WithWallet(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	mw, err := s.lookup(walletID)
	if err != nil {
		return err
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return fn(ctx, &memTx{store: s, w: mw})
}

func (s *inMemoryStore) TryWithWallet(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	mw, err := s.lookup(walletID)
	if err != nil {
		return err
	}
	if !mw.mu.TryLock() {
		return ErrWalletBusy
	}
	defer mw.mu.Unlock()
	return fn(ctx, &memTx{store: s, w: mw})
}

func (s *inMemoryStore) lookup(walletID uuid.UUID) (*memWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mw, ok := s.wallets[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return mw, nil
}

func (s *inMemoryStore) GetSchedule(_ context.Context, id uuid.UUID) (Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, ok := s.schedules[id]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	return *sch, nil
}

func (s *inMemoryStore) FinalizeSchedule(_ context.Context, id uuid.UUID, outcome ScheduleOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeLocked(id, outcome)
}

func (s *inMemoryStore) finalizeLocked(id uuid.UUID, outcome ScheduleOutcome) error {
	sch, ok := s.schedules[id]
	if !ok || sch.Processed {
		return nil
	}
	sch.Processed = true
	sch.Outcome = outcome
	return nil
}

func (s *inMemoryStore) DueSchedules(_ context.Context, now time.Time, limit int) ([]Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []Schedule
	for _, sch := range s.schedules {
		if !sch.Processed && !sch.ScheduledAt.After(now) {
			due = append(due, *sch)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

// memTx mutates the store directly while the per-wallet lock is held. The
// operations driven through it cannot fail midway, so no rollback is kept.
type memTx struct {
	store *inMemoryStore
	w     *memWallet
}

func (t *memTx) Balance() money.Amount {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.w.wallet.Balance
}

func (t *memTx) Apply(_ context.Context, delta money.Amount) (money.Amount, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	next := t.w.wallet.Balance + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	t.w.wallet.Balance = next
	return next, nil
}

func (t *memTx) Append(_ context.Context, e Entry) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	t.store.entries[e.WalletID] = append(t.store.entries[e.WalletID], e)
	return nil
}

func (t *memTx) CreateSchedule(_ context.Context, sch Schedule) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	sch.Outcome = OutcomePending
	t.store.schedules[sch.ID] = &sch
	return nil
}

func (t *memTx) Schedule(_ context.Context, id uuid.UUID) (Schedule, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	sch, ok := t.store.schedules[id]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	return *sch, nil
}

func (t *memTx) FinalizeSchedule(_ context.Context, id uuid.UUID, outcome ScheduleOutcome) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.finalizeLocked(id, outcome)
}
