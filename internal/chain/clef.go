package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// clefSigner is the subset of external.ExternalSigner the wallet relies on.
type clefSigner interface {
	Accounts() []accounts.Account
	SignTx(account accounts.Account, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ClefWallet delegates signing to a Clef external signer. Approval prompts
// in Clef play the role of the browser wallet prompt, and a denied request
// surfaces as USER_REJECTED.
type ClefWallet struct {
	signer  clefSigner
	chainID *big.Int

	mu         sync.RWMutex
	selected   common.Address
	authorised bool
	feed       event.Feed
}

// DialClef connects to the Clef endpoint (IPC path or HTTP URL).
func DialClef(endpoint string, chainID *big.Int) (*ClefWallet, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, xerrors.New(CodeWalletUnavailable, "clef endpoint is not configured")
	}
	signer, err := external.NewExternalSigner(endpoint)
	if err != nil {
		return nil, xerrors.Wrap(CodeWalletUnavailable, err, "connect to clef")
	}
	return newClefWallet(signer, chainID)
}

func newClefWallet(signer clefSigner, chainID *big.Int) (*ClefWallet, error) {
	if chainID == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "wallet chain id is required")
	}
	return &ClefWallet{signer: signer, chainID: new(big.Int).Set(chainID)}, nil
}

// RequestAccounts lists accounts through Clef, which prompts the operator.
func (w *ClefWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	listed := w.signer.Accounts()
	if len(listed) == 0 {
		return nil, xerrors.New(CodeUserRejected, "clef did not expose any account")
	}

	w.mu.Lock()
	previous := w.selected
	wasAuthorised := w.authorised
	if !wasAuthorised || !containsAccount(listed, w.selected) {
		w.selected = listed[0].Address
	}
	w.authorised = true
	current := w.selected
	w.mu.Unlock()

	if !wasAuthorised || previous != current {
		w.feed.Send(AccountsChanged{Previous: previous, Accounts: []common.Address{current}})
	}
	return []common.Address{current}, nil
}

// Accounts returns the selected account once authorised.
func (w *ClefWallet) Accounts(context.Context) ([]common.Address, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.authorised {
		return nil, nil
	}
	return []common.Address{w.selected}, nil
}

// ChainID returns the chain id transactions are signed for.
func (w *ClefWallet) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(w.chainID), nil
}

// Transactor builds signing options that forward every signature to Clef.
func (w *ClefWallet) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	w.mu.RLock()
	authorised := w.authorised
	w.mu.RUnlock()
	if !authorised {
		return nil, xerrors.New(CodeSenderUnavailable, "wallet is not connected")
	}
	acct := accounts.Account{Address: account}
	chainID := new(big.Int).Set(w.chainID)
	return &bind.TransactOpts{
		From:    account,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != account {
				return nil, bind.ErrNotAuthorized
			}
			signed, err := w.signer.SignTx(acct, tx, chainID)
			if err != nil {
				return nil, Normalize(err, CodeWalletUnavailable)
			}
			return signed, nil
		},
	}, nil
}

// Select switches the active Clef account and notifies subscribers.
func (w *ClefWallet) Select(account common.Address) error {
	if !containsAccount(w.signer.Accounts(), account) {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("account %s is not available in clef", account.Hex()))
	}
	w.mu.Lock()
	previous := w.selected
	w.selected = account
	notify := w.authorised && previous != account
	w.mu.Unlock()
	if notify {
		w.feed.Send(AccountsChanged{Previous: previous, Accounts: []common.Address{account}})
	}
	return nil
}

// Disconnect drops the authorisation granted by the last RequestAccounts.
func (w *ClefWallet) Disconnect() {
	w.mu.Lock()
	previous := w.selected
	wasAuthorised := w.authorised
	w.authorised = false
	w.mu.Unlock()
	if wasAuthorised {
		w.feed.Send(AccountsChanged{Previous: previous})
	}
}

// SubscribeAccountsChanged delivers account change notifications to ch.
func (w *ClefWallet) SubscribeAccountsChanged(ch chan<- AccountsChanged) event.Subscription {
	return w.feed.Subscribe(ch)
}

func containsAccount(list []accounts.Account, addr common.Address) bool {
	for _, acct := range list {
		if acct.Address == addr {
			return true
		}
	}
	return false
}

var _ Wallet = (*ClefWallet)(nil)
