package chain

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func newKeys(t *testing.T, n int) []*ecdsa.PrivateKey {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		keys[i] = key
	}
	return keys
}

func TestKeyWalletHidesAccountsUntilConnected(t *testing.T) {
	wallet, err := NewKeyWallet(simulatedChainID, newKeys(t, 1))
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	resolver := NewResolver(nil, wallet)
	ctx := context.Background()

	if _, err := resolver.ActiveAddress(ctx); xerrors.CodeOf(err) != CodeSenderUnavailable {
		t.Fatalf("expected sender unavailable before connect, got %v", err)
	}
	connected, err := resolver.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	active, err := resolver.ActiveAddress(ctx)
	if err != nil {
		t.Fatalf("active address: %v", err)
	}
	if active != connected {
		t.Fatalf("expected %s, got %s", connected.Hex(), active.Hex())
	}
}

func TestResolverWithoutWallet(t *testing.T) {
	resolver := NewResolver(nil, nil)
	if _, err := resolver.WalletSigner(context.Background()); xerrors.CodeOf(err) != CodeWalletUnavailable {
		t.Fatalf("expected wallet unavailable, got %v", err)
	}
	if _, err := resolver.ActiveAddress(context.Background()); xerrors.CodeOf(err) != CodeSenderUnavailable {
		t.Fatalf("expected sender unavailable, got %v", err)
	}
}

func TestKeyWalletSelectPublishesChange(t *testing.T) {
	keys := newKeys(t, 2)
	wallet, err := NewKeyWallet(simulatedChainID, keys)
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	events := make(chan AccountsChanged, 4)
	sub := wallet.SubscribeAccountsChanged(events)
	defer sub.Unsubscribe()

	if _, err := wallet.RequestAccounts(context.Background()); err != nil {
		t.Fatalf("request accounts: %v", err)
	}
	<-events // initial connection

	second := crypto.PubkeyToAddress(keys[1].PublicKey)
	if err := wallet.Select(second); err != nil {
		t.Fatalf("select: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Current() != second {
			t.Fatalf("expected %s, got %s", second.Hex(), ev.Current().Hex())
		}
		if ev.Previous != crypto.PubkeyToAddress(keys[0].PublicKey) {
			t.Fatalf("unexpected previous %s", ev.Previous.Hex())
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for account change")
	}

	opts, err := wallet.Transactor(context.Background(), second)
	if err != nil {
		t.Fatalf("transactor: %v", err)
	}
	if opts.From != second {
		t.Fatalf("transactor bound to %s", opts.From.Hex())
	}
}

func TestKeyWalletFromHex(t *testing.T) {
	wallet, err := NewKeyWalletFromHex(simulatedChainID, []string{"0x" + "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"})
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if len(wallet.Managed()) != 1 {
		t.Fatalf("expected one account, got %d", len(wallet.Managed()))
	}
	if _, err := NewKeyWalletFromHex(simulatedChainID, []string{"zz"}); err == nil {
		t.Fatal("expected invalid key to fail")
	}
}

func TestResolverSelectAndDisconnect(t *testing.T) {
	keys := newKeys(t, 2)
	wallet, err := NewKeyWallet(simulatedChainID, keys)
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	resolver := NewResolver(nil, wallet)
	ctx := context.Background()
	events := make(chan AccountsChanged, 4)
	sub := wallet.SubscribeAccountsChanged(events)
	defer sub.Unsubscribe()

	first, err := resolver.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	<-events

	second := crypto.PubkeyToAddress(keys[1].PublicKey)
	if err := resolver.SelectAccount(ctx, second); err != nil {
		t.Fatalf("select: %v", err)
	}
	if ev := <-events; ev.Previous != first || ev.Current() != second {
		t.Fatalf("unexpected change %+v", ev)
	}
	if active, err := resolver.ActiveAddress(ctx); err != nil || active != second {
		t.Fatalf("expected %s active, got %s (%v)", second.Hex(), active.Hex(), err)
	}

	stranger := crypto.PubkeyToAddress(newKeys(t, 1)[0].PublicKey)
	if err := resolver.SelectAccount(ctx, stranger); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for unmanaged account, got %v", err)
	}

	if err := resolver.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if ev := <-events; ev.Previous != second || ev.Current() != (common.Address{}) {
		t.Fatalf("unexpected disconnect event %+v", ev)
	}
	if _, err := resolver.ActiveAddress(ctx); xerrors.CodeOf(err) != CodeSenderUnavailable {
		t.Fatalf("expected sender unavailable after disconnect, got %v", err)
	}

	if err := NewResolver(nil, nil).Disconnect(ctx); xerrors.CodeOf(err) != CodeWalletUnavailable {
		t.Fatalf("expected wallet unavailable, got %v", err)
	}
}
