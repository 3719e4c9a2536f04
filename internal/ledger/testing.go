package ledger

import (
	"github.com/google/uuid"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

// SeedBalance is a test helper that sets a wallet balance directly when using
// the in-memory store.
func SeedBalance(s Store, walletID uuid.UUID, amount money.Amount) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if mw, exists := mem.wallets[walletID]; exists {
			mw.wallet.Balance = amount
		}
	}
}

// HoldWalletLock grabs the wallet's lock directly so tests can simulate
// row-lock contention. The returned function releases it.
func HoldWalletLock(s Store, walletID uuid.UUID) func() {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return func() {}
	}
	mw, err := mem.lookup(walletID)
	if err != nil {
		return func() {}
	}
	mw.mu.Lock()
	return mw.mu.Unlock
}
