package chain

import (
	"context"
	"fmt"
	"math/big"

	xerrors "Parry-QV/internal/errors"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Mode selects whether a contract handle may send transactions.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Contract is a handle on one deployed contract. Read handles query through
// the shared backend; write handles also carry the signer resolved when the
// handle was built.
type Contract struct {
	Kind    ContractKind
	Address common.Address

	abi     *abi.ABI
	backend Backend
	opts    *bind.TransactOpts
	bound   *bind.BoundContract
}

// Bindings builds contract handles for the well-known addresses.
type Bindings struct {
	resolver *Resolver
	factory  common.Address
	passport common.Address
}

// NewBindings returns a binding factory for the given deployment.
func NewBindings(resolver *Resolver, factory, passport common.Address) *Bindings {
	return &Bindings{resolver: resolver, factory: factory, passport: passport}
}

// Resolver exposes the resolver backing the bindings.
func (b *Bindings) Resolver() *Resolver {
	return b.resolver
}

// FactoryAddress returns the configured factory address.
func (b *Bindings) FactoryAddress() common.Address {
	return b.factory
}

// Factory binds the project factory.
func (b *Bindings) Factory(ctx context.Context, mode Mode) (*Contract, error) {
	return b.bind(ctx, KindFactory, b.factory, mode)
}

// Project binds a per-project voting contract at address. The address is
// not checked against the factory; a wrong address fails on first use.
func (b *Bindings) Project(ctx context.Context, address common.Address, mode Mode) (*Contract, error) {
	return b.bind(ctx, KindProject, address, mode)
}

// Passport binds the read-only scoring contract.
func (b *Bindings) Passport(ctx context.Context) (*Contract, error) {
	return b.bind(ctx, KindPassport, b.passport, ModeRead)
}

// For binds the contract targeted by kind; address is used for projects.
func (b *Bindings) For(ctx context.Context, kind ContractKind, address common.Address, mode Mode) (*Contract, error) {
	switch kind {
	case KindFactory:
		return b.Factory(ctx, mode)
	case KindProject:
		return b.Project(ctx, address, mode)
	case KindPassport:
		return b.Passport(ctx)
	default:
		return nil, newError(CodeEncodingError, fmt.Sprintf("unknown contract kind %q", kind))
	}
}

func (b *Bindings) bind(ctx context.Context, kind ContractKind, address common.Address, mode Mode) (*Contract, error) {
	parsed, err := ABIFor(kind)
	if err != nil {
		return nil, err
	}
	backend := b.resolver.ReadProvider()
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "chain backend is not configured")
	}
	c := &Contract{
		Kind:    kind,
		Address: address,
		abi:     parsed,
		backend: backend,
		bound:   bind.NewBoundContract(address, *parsed, backend, backend, backend),
	}
	if mode == ModeWrite {
		opts, err := b.resolver.WalletSigner(ctx)
		if err != nil {
			return nil, err
		}
		c.opts = opts
	}
	return c, nil
}

// Writable reports whether the handle carries a signer.
func (c *Contract) Writable() bool {
	return c.opts != nil
}

// Signer returns the account a write handle signs for.
func (c *Contract) Signer() common.Address {
	if c.opts == nil {
		return common.Address{}
	}
	return c.opts.From
}

// Call runs a read-only call and returns the positional outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Wrap(CodeEncodingError, err, fmt.Sprintf("encode %s", method))
	}
	raw, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &c.Address, Data: data}, nil)
	if err != nil {
		return nil, Normalize(err, CodeExecutionFailed)
	}
	if len(raw) == 0 && len(c.abi.Methods[method].Outputs) > 0 {
		return nil, xerrors.New(CodeUnexpectedFormat,
			fmt.Sprintf("%s returned no data; is %s a %s contract?", method, c.Address.Hex(), c.Kind))
	}
	values, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, xerrors.Wrap(CodeUnexpectedFormat, err, fmt.Sprintf("decode %s", method))
	}
	return values, nil
}

// Simulate performs a static call of a state-changing method from sender
// against the latest state. A revert yields SIMULATION_FAILED with the
// revert reason.
func (c *Contract) Simulate(ctx context.Context, from common.Address, method string, args ...any) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return xerrors.Wrap(CodeEncodingError, err, fmt.Sprintf("encode %s", method))
	}
	_, err = c.backend.CallContract(ctx, gethcore.CallMsg{From: from, To: &c.Address, Data: data}, nil)
	return Normalize(err, CodeSimulationFailed)
}

// Transact signs and sends method through the write handle's signer.
func (c *Contract) Transact(method string, args ...any) (*types.Transaction, error) {
	if c.opts == nil {
		return nil, xerrors.New(CodeWalletUnavailable, "contract handle is read-only")
	}
	if _, ok := c.abi.Methods[method]; !ok {
		return nil, xerrors.New(CodeEncodingError, fmt.Sprintf("method %s not found in %s abi", method, c.Kind))
	}
	tx, err := c.bound.Transact(c.opts, method, args...)
	if err != nil {
		return nil, Normalize(err, CodeExecutionFailed)
	}
	return tx, nil
}

// LatestTimestamp returns the timestamp of the latest block in seconds.
func (b *Bindings) LatestTimestamp(ctx context.Context) (*big.Int, error) {
	header, err := b.resolver.ReadProvider().HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, Normalize(err, CodeExecutionFailed)
	}
	return new(big.Int).SetUint64(header.Time), nil
}
