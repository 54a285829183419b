package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// fakeBackend answers contract calls from canned outputs, packed with the
// real ABIs so decoding is exercised end to end. Methods outside the
// embedded interface that a test does not expect will panic.
type fakeBackend struct {
	Backend

	mu      sync.Mutex
	outputs map[common.Address]map[string][]any
	errs    map[common.Address]error
	delays  map[common.Address]time.Duration
	calls   []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		outputs: make(map[common.Address]map[string][]any),
		errs:    make(map[common.Address]error),
		delays:  make(map[common.Address]time.Duration),
	}
}

func (f *fakeBackend) set(addr common.Address, method string, values ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outputs[addr] == nil {
		f.outputs[addr] = make(map[string][]any)
	}
	f.outputs[addr][method] = values
}

func (f *fakeBackend) CallContract(ctx context.Context, msg gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("malformed call")
	}
	method, err := lookupMethod(msg.Data[:4])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s.%s", msg.To.Hex(), method.Name))
	delay := f.delays[*msg.To]
	callErr := f.errs[*msg.To]
	values, ok := f.outputs[*msg.To][method.Name]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if callErr != nil {
		return nil, callErr
	}
	if !ok {
		return nil, nil
	}
	return method.Outputs.Pack(values...)
}

func lookupMethod(selector []byte) (*abi.Method, error) {
	for _, parsed := range []*abi.ABI{factoryABI, projectABI, passportABI} {
		if method, err := parsed.MethodById(selector); err == nil {
			return method, nil
		}
	}
	return nil, fmt.Errorf("unknown selector %x", selector)
}

type pollTuple struct {
	Name              string
	Description       string
	IpfsHash          string
	Creator           common.Address
	IsActive          bool
	TotalParticipants *big.Int
	TotalVotes        *big.Int
}

func projectInfo(name string) []any {
	return []any{
		name,
		name + " description",
		"Qm" + name,
		big.NewInt(100),
		big.NewInt(400),
		big.NewInt(10000),
		big.NewInt(75000),
		big.NewInt(1_700_000_000),
	}
}

var (
	testFactory  = common.HexToAddress("0xFaC7000000000000000000000000000000000001")
	testPassport = common.HexToAddress("0x9A55000000000000000000000000000000000002")
)

func newTestReader(backend Backend, opts ...ReaderOption) *Reader {
	bindings := NewBindings(NewResolver(backend, nil), testFactory, testPassport)
	opts = append([]ReaderOption{WithGateway("https://ipfs.example/ipfs/")}, opts...)
	return NewReader(bindings, opts...)
}
