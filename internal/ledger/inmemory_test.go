package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInMemoryApplyRejectsNegativeBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	w, err := s.CreateWallet(ctx)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	SeedBalance(s, w.ID, 1_000)

	err = s.WithWallet(ctx, w.ID, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Apply(ctx, -1_500); !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("expected insufficient funds, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with wallet: %v", err)
	}

	got, err := s.GetWallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance != 1_000 {
		t.Fatalf("balance changed after rejected delta: %d", got.Balance)
	}
}

func TestInMemoryTryWithWalletBusy(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	w, _ := s.CreateWallet(ctx)
	release := HoldWalletLock(s, w.ID)
	defer release()

	err := s.TryWithWallet(ctx, w.ID, func(context.Context, Tx) error {
		t.Fatal("fn ran while lock was held")
		return nil
	})
	if !errors.Is(err, ErrWalletBusy) {
		t.Fatalf("expected ErrWalletBusy, got %v", err)
	}
}

func TestInMemoryUnknownWallet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.GetWallet(ctx, uuid.New()); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
	err := s.WithWallet(ctx, uuid.New(), func(context.Context, Tx) error { return nil })
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestInMemoryFinalizeScheduleExactlyOnce(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	w, _ := s.CreateWallet(ctx)
	schID := uuid.New()
	err := s.WithWallet(ctx, w.ID, func(ctx context.Context, tx Tx) error {
		return tx.CreateSchedule(ctx, Schedule{
			ID:          schID,
			WalletID:    w.ID,
			Amount:      500,
			ScheduledAt: time.Now().Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := s.FinalizeSchedule(ctx, schID, OutcomeConfirmed); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// A second finalize must not overwrite the recorded outcome.
	if err := s.FinalizeSchedule(ctx, schID, OutcomeAbandoned); err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	sch, err := s.GetSchedule(ctx, schID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if !sch.Processed || sch.Outcome != OutcomeConfirmed {
		t.Fatalf("unexpected schedule state: %+v", sch)
	}
}

func TestInMemoryDueSchedules(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	w, _ := s.CreateWallet(ctx)
	dueID, futureID := uuid.New(), uuid.New()
	err := s.WithWallet(ctx, w.ID, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateSchedule(ctx, Schedule{ID: dueID, WalletID: w.ID, Amount: 100, ScheduledAt: now.Add(-time.Minute)}); err != nil {
			return err
		}
		return tx.CreateSchedule(ctx, Schedule{ID: futureID, WalletID: w.ID, Amount: 100, ScheduledAt: now.Add(time.Hour)})
	})
	if err != nil {
		t.Fatalf("create schedules: %v", err)
	}

	due, err := s.DueSchedules(ctx, now, 10)
	if err != nil {
		t.Fatalf("due schedules: %v", err)
	}
	if len(due) != 1 || due[0].ID != dueID {
		t.Fatalf("expected only the past-due schedule, got %+v", due)
	}
}

func TestInMemorySettledNet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	w, _ := s.CreateWallet(ctx)
	err := s.WithWallet(ctx, w.ID, func(ctx context.Context, tx Tx) error {
		if err := tx.Append(ctx, Entry{WalletID: w.ID, Amount: 10_000, Kind: EntryDeposit, Settled: true}); err != nil {
			return err
		}
		if err := tx.Append(ctx, Entry{WalletID: w.ID, Amount: 3_000, Kind: EntryWithdrawal, Settled: true}); err != nil {
			return err
		}
		// Unsettled withdrawals and reservations do not count toward the net.
		if err := tx.Append(ctx, Entry{WalletID: w.ID, Amount: 2_000, Kind: EntryWithdrawal, Settled: false}); err != nil {
			return err
		}
		return tx.Append(ctx, Entry{WalletID: w.ID, Amount: 1_000, Kind: EntryReservation, Settled: false})
	})
	if err != nil {
		t.Fatalf("append entries: %v", err)
	}

	net, err := s.SettledNet(ctx, w.ID)
	if err != nil {
		t.Fatalf("settled net: %v", err)
	}
	if net != 7_000 {
		t.Fatalf("expected net 7000, got %d", net)
	}
}

func TestInMemoryConcurrentApplies(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	w, _ := s.CreateWallet(ctx)
	SeedBalance(s, w.ID, 10_000)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithWallet(ctx, w.ID, func(ctx context.Context, tx Tx) error {
				_, err := tx.Apply(ctx, -1_500)
				return err
			})
		}()
	}
	wg.Wait()

	got, err := s.GetWallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance < 0 {
		t.Fatalf("balance went negative: %d", got.Balance)
	}
	if got.Balance != 10_000-6*1_500 {
		t.Fatalf("expected 1000 after six successful debits, got %d", got.Balance)
	}
}
