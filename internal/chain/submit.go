package chain

import (
	"context"
	"fmt"
	"strings"

	xerrors "Parry-QV/internal/errors"
	"Parry-QV/internal/relay"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Strategy names a submission strategy.
type Strategy string

const (
	StrategyRelay  Strategy = "relay"
	StrategyDirect Strategy = "direct"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyRelay, "":
		return StrategyRelay, nil
	case StrategyDirect:
		return StrategyDirect, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown submit strategy %q", raw))
	}
}

// Call describes one state-changing contract invocation. Contract is only
// consulted for project calls; factory calls target the configured factory.
type Call struct {
	Kind     ContractKind
	Contract common.Address
	Method   string
	Args     []any
}

// Submission is the accepted outcome of a mutation.
type Submission struct {
	Strategy    Strategy       `json:"strategy"`
	Sender      common.Address `json:"sender"`
	TxHash      string         `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber,omitempty"`
}

// Stage identifies a step of the submission pipeline.
type Stage string

const (
	StageSimulating       Stage = "simulating"
	StageEncoding         Stage = "encoding"
	StageRelaying         Stage = "relaying"
	StageDirectSubmitting Stage = "direct_submitting"
)

// StageFunc is invoked as a submitter enters each stage.
type StageFunc func(Stage)

type stageKey struct{}

// WithStageHook attaches fn to ctx so submitters report their progress.
func WithStageHook(ctx context.Context, fn StageFunc) context.Context {
	return context.WithValue(ctx, stageKey{}, fn)
}

func enterStage(ctx context.Context, stage Stage) {
	if fn, ok := ctx.Value(stageKey{}).(StageFunc); ok && fn != nil {
		fn(stage)
	}
}

// Submitter is the transaction submission capability.
type Submitter interface {
	Submit(ctx context.Context, call Call) (Submission, error)
}

// DirectSubmitter signs with the wallet, sends the transaction itself and
// waits for one confirmation.
type DirectSubmitter struct {
	bindings *Bindings
}

// NewDirectSubmitter returns a submitter that pays gas from the wallet.
func NewDirectSubmitter(bindings *Bindings) *DirectSubmitter {
	return &DirectSubmitter{bindings: bindings}
}

// Submit simulates the call from the signer, sends it and waits until it is
// mined. A reverted receipt yields EXECUTION_FAILED.
func (s *DirectSubmitter) Submit(ctx context.Context, call Call) (Submission, error) {
	contract, err := s.bindings.For(ctx, call.Kind, call.Contract, ModeWrite)
	if err != nil {
		return Submission{}, err
	}
	sender := contract.Signer()

	enterStage(ctx, StageSimulating)
	if err := contract.Simulate(ctx, sender, call.Method, call.Args...); err != nil {
		return Submission{}, err
	}

	enterStage(ctx, StageDirectSubmitting)
	tx, err := contract.Transact(call.Method, call.Args...)
	if err != nil {
		return Submission{}, err
	}
	receipt, err := bind.WaitMined(ctx, s.bindings.Resolver().ReadProvider(), tx)
	if err != nil {
		return Submission{}, Normalize(err, CodeExecutionFailed)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Submission{}, xerrors.New(CodeExecutionFailed,
			fmt.Sprintf("transaction %s reverted", tx.Hash().Hex()),
			xerrors.WithMetadata("tx_hash", tx.Hash().Hex()))
	}
	sub := Submission{
		Strategy: StrategyDirect,
		Sender:   sender,
		TxHash:   tx.Hash().Hex(),
	}
	if receipt.BlockNumber != nil {
		sub.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return sub, nil
}

// RelayClient is the relayer transport used by RelaySubmitter.
type RelayClient interface {
	Execute(ctx context.Context, family relay.Family, req relay.Request) (string, error)
}

// RelaySubmitterOption customises a RelaySubmitter.
type RelaySubmitterOption func(*RelaySubmitter)

// WithoutSimulation skips the static call before posting to the relayer.
func WithoutSimulation() RelaySubmitterOption {
	return func(s *RelaySubmitter) {
		s.simulate = false
	}
}

// RelaySubmitter encodes calls locally and hands them to the relayer, which
// pays gas on the sender's behalf.
type RelaySubmitter struct {
	bindings *Bindings
	relay    RelayClient
	simulate bool
}

// NewRelaySubmitter returns a meta-transaction submitter. Simulation is on
// by default.
func NewRelaySubmitter(bindings *Bindings, client RelayClient, opts ...RelaySubmitterOption) *RelaySubmitter {
	s := &RelaySubmitter{bindings: bindings, relay: client, simulate: true}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit resolves the sender, simulates the call, encodes it and posts it
// to the relayer endpoint of the call's family. The relayer is never
// contacted when simulation reverts.
func (s *RelaySubmitter) Submit(ctx context.Context, call Call) (Submission, error) {
	sender, err := s.bindings.Resolver().ActiveAddress(ctx)
	if err != nil {
		return Submission{}, err
	}

	contract, err := s.bindings.For(ctx, call.Kind, call.Contract, ModeRead)
	if err != nil {
		return Submission{}, err
	}

	if s.simulate {
		enterStage(ctx, StageSimulating)
		if err := contract.Simulate(ctx, sender, call.Method, call.Args...); err != nil {
			return Submission{}, err
		}
	}

	enterStage(ctx, StageEncoding)
	data, err := EncodeCall(call.Kind, call.Method, call.Args...)
	if err != nil {
		return Submission{}, err
	}

	req := relay.Request{Sender: sender.Hex(), TxData: hexutil.Encode(data)}
	family := relay.FamilyFactory
	if call.Kind == KindProject {
		family = relay.FamilyProject
		req.ContractAddress = contract.Address.Hex()
	}

	enterStage(ctx, StageRelaying)
	hash, err := s.relay.Execute(ctx, family, req)
	if err != nil {
		return Submission{}, Normalize(err, CodeRelaySubmissionFailed)
	}
	return Submission{Strategy: StrategyRelay, Sender: sender, TxHash: hash}, nil
}

// Router picks a submitter per contract method, falling back to a default.
type Router struct {
	fallback  Submitter
	overrides map[string]Submitter
}

// NewRouter returns a router that uses fallback unless a method is overridden.
func NewRouter(fallback Submitter, overrides map[string]Submitter) *Router {
	r := &Router{fallback: fallback, overrides: make(map[string]Submitter, len(overrides))}
	for method, sub := range overrides {
		if sub != nil {
			r.overrides[method] = sub
		}
	}
	return r
}

// Submit dispatches call to the submitter configured for its method.
func (r *Router) Submit(ctx context.Context, call Call) (Submission, error) {
	sub := r.fallback
	if override, ok := r.overrides[call.Method]; ok {
		sub = override
	}
	if sub == nil {
		return Submission{}, xerrors.New(xerrors.CodeInitializationFailure, "no submitter configured")
	}
	return sub.Submit(ctx, call)
}

var (
	_ Submitter = (*DirectSubmitter)(nil)
	_ Submitter = (*RelaySubmitter)(nil)
	_ Submitter = (*Router)(nil)
)
