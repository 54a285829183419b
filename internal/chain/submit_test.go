package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	xerrors "Parry-QV/internal/errors"
	"Parry-QV/internal/relay"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

var simulatedChainID = big.NewInt(1337)

// Runtime code of the stand-in contracts: acceptCode stops successfully on
// any call, revertCode reverts with Error("Not registered").
var (
	acceptCode = []byte{0x00}
	projectOK  = common.HexToAddress("0x00000000000000000000000000000000000A0001")
	projectBad = common.HexToAddress("0x00000000000000000000000000000000000A0002")
)

func revertCode(t *testing.T, reason string) []byte {
	t.Helper()
	data := common.FromHex(revertData(t, reason))
	n := byte(len(data))
	// PUSH1 n PUSH1 12 PUSH1 0 CODECOPY PUSH1 n PUSH1 0 REVERT <data>
	code := []byte{0x60, n, 0x60, 0x0c, 0x60, 0x00, 0x39, 0x60, n, 0x60, 0x00, 0xfd}
	return append(code, data...)
}

type simEnv struct {
	backend *simulated.Backend
	wallet  *KeyWallet
	key     *ecdsa.PrivateKey
	binds   *Bindings
}

func newSimEnv(t *testing.T) *simEnv {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	backend := simulated.NewBackend(types.GenesisAlloc{
		from:        {Balance: new(big.Int).Mul(big.NewInt(1_000), big.NewInt(1e18))},
		projectOK:   {Code: acceptCode, Balance: big.NewInt(0)},
		projectBad:  {Code: revertCode(t, "Not registered"), Balance: big.NewInt(0)},
		testFactory: {Code: acceptCode, Balance: big.NewInt(0)},
	})
	t.Cleanup(func() { _ = backend.Close() })

	wallet, err := NewKeyWallet(simulatedChainID, []*ecdsa.PrivateKey{key})
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	resolver := NewResolver(backend.Client(), wallet)
	return &simEnv{
		backend: backend,
		wallet:  wallet,
		key:     key,
		binds:   NewBindings(resolver, testFactory, testPassport),
	}
}

// autoCommit mines a block periodically until the test ends.
func (e *simEnv) autoCommit(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				e.backend.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		<-stopped
	})
}

func TestDirectSubmitterConfirmsTransaction(t *testing.T) {
	env := newSimEnv(t)
	env.autoCommit(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var stages []Stage
	ctx = WithStageHook(ctx, func(s Stage) { stages = append(stages, s) })

	sub, err := NewDirectSubmitter(env.binds).Submit(ctx, Call{
		Kind:     KindProject,
		Contract: projectOK,
		Method:   MethodCastVote,
		Args:     []any{big.NewInt(0), big.NewInt(3)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Strategy != StrategyDirect || sub.TxHash == "" || sub.BlockNumber == 0 {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if sub.Sender != crypto.PubkeyToAddress(env.key.PublicKey) {
		t.Fatalf("unexpected sender %s", sub.Sender.Hex())
	}
	if len(stages) != 2 || stages[0] != StageSimulating || stages[1] != StageDirectSubmitting {
		t.Fatalf("unexpected stages %v", stages)
	}
}

func TestDirectSubmitterSimulationFailure(t *testing.T) {
	env := newSimEnv(t)

	_, err := NewDirectSubmitter(env.binds).Submit(context.Background(), Call{
		Kind:     KindProject,
		Contract: projectBad,
		Method:   MethodJoinProject,
	})
	if code := xerrors.CodeOf(err); code != CodeSimulationFailed {
		t.Fatalf("expected %s, got %v", CodeSimulationFailed, err)
	}
	if msg := xerrors.UserMessage(err); msg != "Transaction simulation failed: Not registered" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestDirectSubmitterUserRejected(t *testing.T) {
	env := newSimEnv(t)
	wallet, err := NewKeyWallet(simulatedChainID, []*ecdsa.PrivateKey{env.key},
		WithApproval(func(context.Context, common.Address) bool { return false }))
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	binds := NewBindings(NewResolver(env.backend.Client(), wallet), testFactory, testPassport)

	_, err = NewDirectSubmitter(binds).Submit(context.Background(), Call{
		Kind: KindProject, Contract: projectOK, Method: MethodJoinProject,
	})
	if code := xerrors.CodeOf(err); code != CodeUserRejected {
		t.Fatalf("expected %s, got %v", CodeUserRejected, err)
	}
}

func newRelayServer(t *testing.T, status int, hash string) (*relay.Client, *int32, *relay.Request) {
	t.Helper()
	var posts int32
	var last relay.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		_ = json.NewDecoder(r.Body).Decode(&last)
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"hash": hash})
		}
	}))
	t.Cleanup(srv.Close)
	client, err := relay.NewClient(srv.URL, relay.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("relay client: %v", err)
	}
	return client, &posts, &last
}

func TestRelaySubmitterSkipsPostWhenSimulationReverts(t *testing.T) {
	env := newSimEnv(t)
	if _, err := env.wallet.RequestAccounts(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	client, posts, _ := newRelayServer(t, http.StatusOK, "0xdead")

	_, err := NewRelaySubmitter(env.binds, client).Submit(context.Background(), Call{
		Kind:     KindProject,
		Contract: projectBad,
		Method:   MethodCastVote,
		Args:     []any{big.NewInt(1), big.NewInt(2)},
	})
	if code := xerrors.CodeOf(err); code != CodeSimulationFailed {
		t.Fatalf("expected %s, got %v", CodeSimulationFailed, err)
	}
	if n := atomic.LoadInt32(posts); n != 0 {
		t.Fatalf("expected no relayer POST, got %d", n)
	}
}

func TestRelaySubmitterReturnsRelayerHash(t *testing.T) {
	env := newSimEnv(t)
	if _, err := env.wallet.RequestAccounts(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	client, posts, last := newRelayServer(t, http.StatusOK, "0xdead")

	var stages []Stage
	ctx := WithStageHook(context.Background(), func(s Stage) { stages = append(stages, s) })
	sub, err := NewRelaySubmitter(env.binds, client).Submit(ctx, Call{
		Kind:     KindProject,
		Contract: projectOK,
		Method:   MethodCastVote,
		Args:     []any{big.NewInt(1), big.NewInt(2)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.TxHash != "0xdead" {
		t.Fatalf("expected relayer hash verbatim, got %q", sub.TxHash)
	}
	if atomic.LoadInt32(posts) != 1 {
		t.Fatalf("expected one POST, got %d", atomic.LoadInt32(posts))
	}
	want, err := EncodeCall(KindProject, MethodCastVote, big.NewInt(1), big.NewInt(2))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if last.TxData != common.Bytes2Hex(want) && last.TxData != "0x"+common.Bytes2Hex(want) {
		t.Fatalf("unexpected tx data %s", last.TxData)
	}
	if !SameAddress(last.ContractAddress, projectOK.Hex()) {
		t.Fatalf("unexpected contract address %s", last.ContractAddress)
	}
	if len(stages) != 3 || stages[2] != StageRelaying {
		t.Fatalf("unexpected stages %v", stages)
	}
}

func TestRelaySubmitterRelayFailure(t *testing.T) {
	env := newSimEnv(t)
	if _, err := env.wallet.RequestAccounts(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	client, _, _ := newRelayServer(t, http.StatusInternalServerError, "")

	_, err := NewRelaySubmitter(env.binds, client).Submit(context.Background(), Call{
		Kind: KindProject, Contract: projectOK, Method: MethodJoinProject,
	})
	if code := xerrors.CodeOf(err); code != CodeRelaySubmissionFailed {
		t.Fatalf("expected %s, got %v", CodeRelaySubmissionFailed, err)
	}
	if xerrors.UserMessage(err) == "" {
		t.Fatal("expected a non-empty message")
	}
}

func TestRelaySubmitterRequiresConnectedSender(t *testing.T) {
	env := newSimEnv(t)
	client, posts, _ := newRelayServer(t, http.StatusOK, "0xdead")

	_, err := NewRelaySubmitter(env.binds, client).Submit(context.Background(), Call{
		Kind: KindProject, Contract: projectOK, Method: MethodJoinProject,
	})
	if code := xerrors.CodeOf(err); code != CodeSenderUnavailable {
		t.Fatalf("expected %s, got %v", CodeSenderUnavailable, err)
	}
	if atomic.LoadInt32(posts) != 0 {
		t.Fatal("relayer must not be contacted without a sender")
	}
}

func TestRelaySubmitterFactoryFamily(t *testing.T) {
	env := newSimEnv(t)
	if _, err := env.wallet.RequestAccounts(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	client, _, last := newRelayServer(t, http.StatusOK, "0xbeef")

	_, err := NewRelaySubmitter(env.binds, client, WithoutSimulation()).Submit(context.Background(), Call{
		Kind:   KindFactory,
		Method: MethodCreateProject,
		Args: []any{"n", "d", "QmX", big.NewInt(1), big.NewInt(2),
			ScaleScore(1), ScaleScore(2), big.NewInt(1_800_000_000)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if last.ContractAddress != "" {
		t.Fatalf("factory calls carry no contract address, got %s", last.ContractAddress)
	}
}

type recordingSubmitter struct{ calls int }

func (r *recordingSubmitter) Submit(context.Context, Call) (Submission, error) {
	r.calls++
	return Submission{}, nil
}

func TestRouterOverrides(t *testing.T) {
	fallback := &recordingSubmitter{}
	direct := &recordingSubmitter{}
	router := NewRouter(fallback, map[string]Submitter{MethodCreateProject: direct})

	_, _ = router.Submit(context.Background(), Call{Method: MethodCastVote})
	_, _ = router.Submit(context.Background(), Call{Method: MethodCreateProject})
	if fallback.calls != 1 || direct.calls != 1 {
		t.Fatalf("unexpected dispatch fallback=%d direct=%d", fallback.calls, direct.calls)
	}

	if _, err := NewRouter(nil, nil).Submit(context.Background(), Call{}); err == nil {
		t.Fatal("expected error without submitters")
	}
}
