package wallet

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/atlas-pay/atlas_pay/internal/gateway"
	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/logging"
	"github.com/atlas-pay/atlas_pay/internal/money"
)

func newTestService(gw gateway.Gateway) (*Service, ledger.Store) {
	store := ledger.NewInMemory()
	logger := logging.Discard()
	saga := NewSaga(gw, nil, logger)
	return NewService(store, saga, logger), store
}

func seededWallet(t *testing.T, store ledger.Store, balance money.Amount) ledger.Wallet {
	t.Helper()
	w, err := store.CreateWallet(context.Background())
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	ledger.SeedBalance(store, w.ID, balance)
	return w
}

func TestDeposit(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w := seededWallet(t, store, 20_000)

	balance, err := svc.Deposit(ctx, w.ID, 5_000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if balance != 25_000 {
		t.Fatalf("expected balance 25000, got %d", balance)
	}

	entries, err := store.Entries(ctx, w.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != ledger.EntryDeposit || !e.Settled || e.Amount != 5_000 {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.GatewayCode != 0 || e.GatewayMessage != "" {
		t.Fatalf("deposit entry should not carry gateway fields: %+v", e)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w := seededWallet(t, store, 20_000)

	for _, amount := range []money.Amount{0, -100} {
		if _, err := svc.Deposit(ctx, w.ID, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}

	entries, _ := store.Entries(ctx, w.ID)
	if len(entries) != 0 {
		t.Fatalf("rejected deposits must not write entries, got %d", len(entries))
	}
}

func TestWithdrawSettled(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w := seededWallet(t, store, 20_000)

	res, err := svc.Withdraw(ctx, w.ID, 5_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Balance != 15_000 {
		t.Fatalf("expected balance 15000, got %d", res.Balance)
	}
	if !res.Outcome.Confirmed() {
		t.Fatalf("expected confirmed outcome, got %+v", res.Outcome)
	}

	entries, _ := store.Entries(ctx, w.ID)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != ledger.EntryWithdrawal || !e.Settled || e.Amount != 5_000 || e.GatewayCode != 200 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestWithdrawCompensatedOnRejection(t *testing.T) {
	svc, store := newTestService(gateway.Static(gateway.Outcome{
		Result:     gateway.Rejected,
		StatusCode: http.StatusServiceUnavailable,
		Message:    "failed",
	}))
	ctx := context.Background()
	w := seededWallet(t, store, 20_000)

	res, err := svc.Withdraw(ctx, w.ID, 5_000)
	if err != nil {
		t.Fatalf("withdraw should not error on settlement failure: %v", err)
	}
	if res.Balance != 20_000 {
		t.Fatalf("expected balance restored to 20000, got %d", res.Balance)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 20_000 {
		t.Fatalf("stored balance not restored: %d", got.Balance)
	}

	entries, _ := store.Entries(ctx, w.ID)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != ledger.EntryWithdrawal || e.Settled {
		t.Fatalf("expected unsettled withdrawal entry: %+v", e)
	}
	if e.GatewayCode != http.StatusServiceUnavailable || e.GatewayMessage != "failed" {
		t.Fatalf("entry should carry the gateway verdict: %+v", e)
	}
}

func TestWithdrawCompensatedOnTimeout(t *testing.T) {
	svc, store := newTestService(gateway.Static(gateway.Outcome{
		Result:     gateway.Timeout,
		StatusCode: http.StatusRequestTimeout,
		Message:    "request timeout",
	}))
	ctx := context.Background()
	w := seededWallet(t, store, 20_000)

	res, err := svc.Withdraw(ctx, w.ID, 5_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Balance != 20_000 {
		t.Fatalf("expected balance restored, got %d", res.Balance)
	}

	entries, _ := store.Entries(ctx, w.ID)
	if len(entries) != 1 || entries[0].Settled || entries[0].GatewayCode != http.StatusRequestTimeout {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w := seededWallet(t, store, 20_000)

	if _, err := svc.Withdraw(ctx, w.ID, 100_000); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 20_000 {
		t.Fatalf("balance changed on rejected withdrawal: %d", got.Balance)
	}
	entries, _ := store.Entries(ctx, w.ID)
	if len(entries) != 0 {
		t.Fatalf("rejected withdrawal must not write entries, got %d", len(entries))
	}
}

func TestWithdrawUnknownWallet(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	_ = store

	if _, err := svc.Withdraw(context.Background(), [16]byte{1}, 1_000); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestScheduleWithdrawReservesFunds(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w := seededWallet(t, store, 20_000)

	at := time.Now().Add(time.Hour)
	sch, err := svc.ScheduleWithdraw(ctx, w.ID, 5_000, at)
	if err != nil {
		t.Fatalf("schedule withdraw: %v", err)
	}
	if sch.Processed {
		t.Fatalf("new schedule must not be processed")
	}
	if sch.Amount != 5_000 {
		t.Fatalf("unexpected schedule amount: %d", sch.Amount)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 15_000 {
		t.Fatalf("expected reserved balance 15000, got %d", got.Balance)
	}

	entries, _ := store.Entries(ctx, w.ID)
	if len(entries) != 1 {
		t.Fatalf("expected one reservation entry, got %d", len(entries))
	}
	if entries[0].Kind != ledger.EntryReservation || entries[0].Settled {
		t.Fatalf("unexpected reservation entry: %+v", entries[0])
	}

	stored, err := store.GetSchedule(ctx, sch.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if stored.Outcome != ledger.OutcomePending {
		t.Fatalf("expected pending outcome, got %s", stored.Outcome)
	}
}

func TestScheduleWithdrawStackingCannotOverdraw(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w := seededWallet(t, store, 10_000)

	at := time.Now().Add(time.Hour)
	if _, err := svc.ScheduleWithdraw(ctx, w.ID, 6_000, at); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	if _, err := svc.ScheduleWithdraw(ctx, w.ID, 6_000, at); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("second schedule should exhaust funds, got %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 4_000 {
		t.Fatalf("expected 4000 after one reservation, got %d", got.Balance)
	}
}

func TestScheduleWithdrawValidation(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w := seededWallet(t, store, 10_000)

	if _, err := svc.ScheduleWithdraw(ctx, w.ID, 0, time.Now().Add(time.Hour)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.ScheduleWithdraw(ctx, w.ID, 1_000, time.Now().Add(-time.Minute)); !errors.Is(err, ErrPastSchedule) {
		t.Fatalf("expected ErrPastSchedule, got %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 10_000 {
		t.Fatalf("validation failures must not change the balance: %d", got.Balance)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w := seededWallet(t, store, 10_000)

	const workers = 10
	const amount = money.Amount(1_500)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Withdraw(ctx, w.ID, amount); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ledger.ErrInsufficientFunds) {
				t.Errorf("unexpected withdraw error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance < 0 {
		t.Fatalf("balance went negative: %d", got.Balance)
	}
	if got.Balance != 10_000-money.Amount(succeeded)*amount {
		t.Fatalf("balance %d inconsistent with %d successes", got.Balance, succeeded)
	}
	if succeeded != 6 {
		t.Fatalf("expected exactly 6 withdrawals to fit, got %d", succeeded)
	}

	net, err := store.SettledNet(ctx, w.ID)
	if err != nil {
		t.Fatalf("settled net: %v", err)
	}
	if got.Balance != 10_000+net {
		t.Fatalf("balance %d does not reconcile with settled net %d", got.Balance, net)
	}
}

func TestBalanceReconcilesWithSettledEntries(t *testing.T) {
	svc, store := newTestService(gateway.Static(gateway.Outcome{
		Result:     gateway.Unreachable,
		StatusCode: http.StatusServiceUnavailable,
		Message:    "service unavailable",
	}))
	ctx := context.Background()
	w, err := store.CreateWallet(ctx)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	if _, err := svc.Deposit(ctx, w.ID, 20_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Unreachable gateway: withdrawal compensated, net effect zero.
	if _, err := svc.Withdraw(ctx, w.ID, 5_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	net, err := store.SettledNet(ctx, w.ID)
	if err != nil {
		t.Fatalf("settled net: %v", err)
	}
	if got.Balance != net {
		t.Fatalf("balance %d must equal settled net %d", got.Balance, net)
	}
}

func TestBalanceReconcilesWithOpenReservation(t *testing.T) {
	svc, store := newTestService(gateway.Confirming())
	ctx := context.Background()
	w, err := store.CreateWallet(ctx)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	if _, err := svc.Deposit(ctx, w.ID, 20_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.ScheduleWithdraw(ctx, w.ID, 5_000, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("schedule withdraw: %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	net, err := store.SettledNet(ctx, w.ID)
	if err != nil {
		t.Fatalf("settled net: %v", err)
	}

	entries, _ := store.Entries(ctx, w.ID)
	var reserved money.Amount
	for _, e := range entries {
		if e.Kind == ledger.EntryReservation && !e.Settled {
			reserved += e.Amount
		}
	}

	if reserved != 5_000 {
		t.Fatalf("expected 5000 outstanding, got %d", reserved)
	}
	// With the reservation still open the balance must equal the settled net
	// minus what the reservation earmarked.
	if got.Balance != net-reserved {
		t.Fatalf("balance %d must equal settled net %d minus reserved %d", got.Balance, net, reserved)
	}
}
