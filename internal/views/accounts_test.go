package views

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"Parry-QV/internal/chain"
)

type feedWallet struct {
	chain.Wallet
	feed       event.Feed
	subscribed chan struct{}
}

func (w *feedWallet) SubscribeAccountsChanged(ch chan<- chain.AccountsChanged) event.Subscription {
	sub := w.feed.Subscribe(ch)
	close(w.subscribed)
	return sub
}

type recordingInvalidator struct {
	mu   sync.Mutex
	seen []Invalidation
}

func (r *recordingInvalidator) Invalidate(_ context.Context, inv Invalidation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, inv)
	return nil
}

func (r *recordingInvalidator) snapshot() []Invalidation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invalidation(nil), r.seen...)
}

func TestWatchAccountsInvalidatesBothAddresses(t *testing.T) {
	wallet := &feedWallet{subscribed: make(chan struct{})}
	target := &recordingInvalidator{}
	previous := common.HexToAddress("0x0000000000000000000000000000000000000001")
	current := common.HexToAddress("0x0000000000000000000000000000000000000002")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchAccounts(ctx, wallet, target) }()

	<-wallet.subscribed
	wallet.feed.Send(chain.AccountsChanged{Previous: previous, Accounts: []common.Address{current}})
	// A disconnect carries no current account.
	wallet.feed.Send(chain.AccountsChanged{Previous: current})

	deadline := time.Now().Add(2 * time.Second)
	for len(target.snapshot()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected watch error: %v", err)
	}

	seen := target.snapshot()
	if len(seen) != 3 {
		t.Fatalf("expected 3 invalidations, got %+v", seen)
	}
	if seen[0].Address != previous.Hex() || seen[1].Address != current.Hex() || seen[2].Address != current.Hex() {
		t.Fatalf("unexpected invalidations: %+v", seen)
	}
}
