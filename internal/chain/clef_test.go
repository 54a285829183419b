package chain

import (
	"context"
	"math/big"
	"testing"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type stubClef struct {
	listed []accounts.Account
}

func (s *stubClef) Accounts() []accounts.Account { return s.listed }

func (s *stubClef) SignTx(_ accounts.Account, tx *types.Transaction, _ *big.Int) (*types.Transaction, error) {
	return tx, nil
}

func TestClefWalletSwitchAndDisconnect(t *testing.T) {
	first := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	second := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	wallet, err := newClefWallet(&stubClef{listed: []accounts.Account{{Address: first}, {Address: second}}}, big.NewInt(1))
	if err != nil {
		t.Fatalf("new clef wallet: %v", err)
	}
	events := make(chan AccountsChanged, 4)
	sub := wallet.SubscribeAccountsChanged(events)
	defer sub.Unsubscribe()

	resolver := NewResolver(nil, wallet)
	ctx := context.Background()
	if _, err := resolver.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	<-events

	if err := resolver.SelectAccount(ctx, second); err != nil {
		t.Fatalf("select: %v", err)
	}
	if ev := <-events; ev.Previous != first || ev.Current() != second {
		t.Fatalf("unexpected change %+v", ev)
	}
	if err := resolver.SelectAccount(ctx, common.HexToAddress("0x01")); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	if err := resolver.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if ev := <-events; ev.Previous != second || len(ev.Accounts) != 0 {
		t.Fatalf("unexpected disconnect event %+v", ev)
	}
	if got, _ := wallet.Accounts(ctx); len(got) != 0 {
		t.Fatalf("expected no accounts after disconnect, got %v", got)
	}
}
