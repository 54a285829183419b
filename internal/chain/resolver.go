package chain

import (
	"context"
	"strings"

	xerrors "Parry-QV/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Backend is the read/write node connection. *ethclient.Client and the
// simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Dial connects a read backend to the configured RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置以太坊 RPC 地址")
	}
	client, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接以太坊节点失败")
	}
	return ethclient.NewClient(client), nil
}

// Resolver hands out the shared read backend and wallet-bound signers. It
// never caches a signer: every call re-reads the wallet so account switches
// between calls are honoured.
type Resolver struct {
	backend Backend
	wallet  Wallet
}

// NewResolver wires the read backend with an optional wallet capability.
func NewResolver(backend Backend, wallet Wallet) *Resolver {
	return &Resolver{backend: backend, wallet: wallet}
}

// ReadProvider returns the read-only backend used for every query.
func (r *Resolver) ReadProvider() Backend {
	return r.backend
}

// Wallet returns the injected wallet, or nil.
func (r *Resolver) Wallet() Wallet {
	return r.wallet
}

// Connect requests account access and returns the selected account.
func (r *Resolver) Connect(ctx context.Context) (common.Address, error) {
	if r.wallet == nil {
		return common.Address{}, xerrors.New(CodeWalletUnavailable, "")
	}
	accounts, err := r.wallet.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, Normalize(err, CodeWalletUnavailable)
	}
	if len(accounts) == 0 {
		return common.Address{}, xerrors.New(CodeSenderUnavailable, "wallet returned no accounts")
	}
	return accounts[0], nil
}

// SelectAccount switches the wallet to account. Account-change subscribers
// see the switch once the wallet has been connected.
func (r *Resolver) SelectAccount(_ context.Context, account common.Address) error {
	switcher, err := r.switcher()
	if err != nil {
		return err
	}
	return switcher.Select(account)
}

// Disconnect revokes the wallet authorisation. Later mutations fail with
// SENDER_UNAVAILABLE until Connect is called again.
func (r *Resolver) Disconnect(context.Context) error {
	switcher, err := r.switcher()
	if err != nil {
		return err
	}
	switcher.Disconnect()
	return nil
}

func (r *Resolver) switcher() (AccountSwitcher, error) {
	if r.wallet == nil {
		return nil, xerrors.New(CodeWalletUnavailable, "no wallet is available")
	}
	switcher, ok := r.wallet.(AccountSwitcher)
	if !ok {
		return nil, xerrors.New(CodeWalletUnavailable, "wallet does not support switching accounts")
	}
	return switcher, nil
}

// WalletSigner requests account access and returns signing options bound to
// the currently selected account.
func (r *Resolver) WalletSigner(ctx context.Context) (*bind.TransactOpts, error) {
	account, err := r.Connect(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := r.wallet.Transactor(ctx, account)
	if err != nil {
		return nil, Normalize(err, CodeWalletUnavailable)
	}
	return opts, nil
}

// ActiveAddress returns the authorised account without prompting. A missing
// wallet or a wallet that has not been connected yields SENDER_UNAVAILABLE.
func (r *Resolver) ActiveAddress(ctx context.Context) (common.Address, error) {
	if r.wallet == nil {
		return common.Address{}, xerrors.New(CodeSenderUnavailable, "no wallet is available")
	}
	accounts, err := r.wallet.Accounts(ctx)
	if err != nil {
		return common.Address{}, xerrors.Wrap(CodeSenderUnavailable, err, "")
	}
	if len(accounts) == 0 {
		return common.Address{}, xerrors.New(CodeSenderUnavailable, "")
	}
	return accounts[0], nil
}
