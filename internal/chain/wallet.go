package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

// AccountsChanged is published whenever the wallet's selected account set
// changes. Previous is the zero address when nothing was connected before.
type AccountsChanged struct {
	Previous common.Address
	Accounts []common.Address
}

// Current returns the newly selected account or the zero address.
func (e AccountsChanged) Current() common.Address {
	if len(e.Accounts) == 0 {
		return common.Address{}
	}
	return e.Accounts[0]
}

// Wallet is the injected signing capability. It mirrors the EIP-1193 surface
// a browser wallet exposes: account authorisation, the passive account list,
// the chain id and an account-change subscription.
type Wallet interface {
	// RequestAccounts asks the wallet for account access and may block on
	// user approval.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns the authorised accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	// Transactor returns signing options bound to account.
	Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
	SubscribeAccountsChanged(ch chan<- AccountsChanged) event.Subscription
}

// AccountSwitcher is implemented by wallets whose selection can be driven by
// the operator: switching the active account or revoking authorisation.
type AccountSwitcher interface {
	Select(account common.Address) error
	Disconnect()
}

// ApprovalFunc decides whether a connection request for account is granted.
type ApprovalFunc func(ctx context.Context, account common.Address) bool

// KeyWalletOption customises a KeyWallet.
type KeyWalletOption func(*KeyWallet)

// WithApproval installs a callback consulted on every RequestAccounts call.
func WithApproval(fn ApprovalFunc) KeyWalletOption {
	return func(w *KeyWallet) {
		w.approve = fn
	}
}

// KeyWallet holds ECDSA keys in process. It is the development and test
// stand-in for a browser wallet and behaves like one: accounts stay hidden
// until RequestAccounts succeeds and only the selected account is exposed.
type KeyWallet struct {
	mu         sync.RWMutex
	chainID    *big.Int
	keys       map[common.Address]*ecdsa.PrivateKey
	order      []common.Address
	selected   int
	authorised bool
	approve    ApprovalFunc
	feed       event.Feed
}

// NewKeyWallet builds a wallet over keys; the first key is selected.
func NewKeyWallet(chainID *big.Int, keys []*ecdsa.PrivateKey, opts ...KeyWalletOption) (*KeyWallet, error) {
	if chainID == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "wallet chain id is required")
	}
	if len(keys) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "wallet requires at least one key")
	}
	w := &KeyWallet{
		chainID: new(big.Int).Set(chainID),
		keys:    make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
	}
	for _, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, exists := w.keys[addr]; exists {
			continue
		}
		w.keys[addr] = key
		w.order = append(w.order, addr)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// NewKeyWalletFromHex parses hex-encoded private keys.
func NewKeyWalletFromHex(chainID *big.Int, hexKeys []string, opts ...KeyWalletOption) (*KeyWallet, error) {
	keys := make([]*ecdsa.PrivateKey, 0, len(hexKeys))
	for i, raw := range hexKeys {
		key, err := crypto.HexToECDSA(trimHexPrefix(raw))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("invalid wallet key at index %d", i))
		}
		keys = append(keys, key)
	}
	return NewKeyWallet(chainID, keys, opts...)
}

// RequestAccounts authorises the wallet unless the approval callback declines.
func (w *KeyWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.RLock()
	current := w.order[w.selected]
	approve := w.approve
	w.mu.RUnlock()

	if approve != nil && !approve(ctx, current) {
		return nil, xerrors.New(CodeUserRejected, "account access rejected in wallet")
	}

	w.mu.Lock()
	wasAuthorised := w.authorised
	w.authorised = true
	w.mu.Unlock()

	if !wasAuthorised {
		w.feed.Send(AccountsChanged{Accounts: []common.Address{current}})
	}
	return []common.Address{current}, nil
}

// Accounts returns the selected account once authorised.
func (w *KeyWallet) Accounts(context.Context) ([]common.Address, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.authorised {
		return nil, nil
	}
	return []common.Address{w.order[w.selected]}, nil
}

// ChainID returns the configured chain id.
func (w *KeyWallet) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(w.chainID), nil
}

// Transactor returns keyed signing options for account.
func (w *KeyWallet) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	w.mu.RLock()
	key, ok := w.keys[account]
	authorised := w.authorised
	w.mu.RUnlock()
	if !authorised {
		return nil, xerrors.New(CodeSenderUnavailable, "wallet is not connected")
	}
	if !ok {
		return nil, xerrors.New(CodeSenderUnavailable, fmt.Sprintf("account %s is not managed by this wallet", account.Hex()))
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, w.chainID)
	if err != nil {
		return nil, xerrors.Wrap(CodeWalletUnavailable, err, "build transactor")
	}
	opts.Context = ctx
	return opts, nil
}

// Select switches the active account and notifies subscribers.
func (w *KeyWallet) Select(account common.Address) error {
	w.mu.Lock()
	index := -1
	for i, addr := range w.order {
		if addr == account {
			index = i
			break
		}
	}
	if index < 0 {
		w.mu.Unlock()
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("account %s is not managed by this wallet", account.Hex()))
	}
	previous := w.order[w.selected]
	changed := index != w.selected
	w.selected = index
	notify := changed && w.authorised
	w.mu.Unlock()

	if notify {
		w.feed.Send(AccountsChanged{Previous: previous, Accounts: []common.Address{account}})
	}
	return nil
}

// Disconnect revokes authorisation, as a user disconnecting the site would.
func (w *KeyWallet) Disconnect() {
	w.mu.Lock()
	previous := w.order[w.selected]
	wasAuthorised := w.authorised
	w.authorised = false
	w.mu.Unlock()
	if wasAuthorised {
		w.feed.Send(AccountsChanged{Previous: previous})
	}
}

// Managed lists every account the wallet holds keys for.
func (w *KeyWallet) Managed() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]common.Address, len(w.order))
	copy(out, w.order)
	return out
}

// SubscribeAccountsChanged delivers account change notifications to ch.
func (w *KeyWallet) SubscribeAccountsChanged(ch chan<- AccountsChanged) event.Subscription {
	return w.feed.Subscribe(ch)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

var _ Wallet = (*KeyWallet)(nil)
