package action

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/goleak"

	"Parry-QV/internal/chain"
	xerrors "Parry-QV/internal/errors"
	"Parry-QV/internal/observability/alerting"
	"Parry-QV/internal/relay"
	"Parry-QV/internal/views"
)

// offlineBackend satisfies chain.Backend for relay submissions that skip
// simulation and therefore never touch the node.
type offlineBackend struct {
	chain.Backend
}

type fakeRelay struct {
	mu       sync.Mutex
	requests []relay.Request
	families []relay.Family
	hash     string
	err      error
}

func (f *fakeRelay) Execute(_ context.Context, family relay.Family, req relay.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.families = append(f.families, family)
	return f.hash, f.err
}

func (f *fakeRelay) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type recordingStore struct {
	*MemoryStore
	mu     sync.Mutex
	stages []Status
}

func (s *recordingStore) Transition(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	s.stages = append(s.stages, status)
	s.mu.Unlock()
	return s.MemoryStore.Transition(ctx, id, status)
}

type recordingInvalidator struct {
	mu   sync.Mutex
	seen []views.Invalidation
}

func (r *recordingInvalidator) Invalidate(_ context.Context, inv views.Invalidation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, inv)
	return nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

type recordingRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *recordingRecorder) ObserveAction(kind, status, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, kind+"/"+status+"/"+code)
}

type processorFixture struct {
	store       *recordingStore
	relay       *fakeRelay
	state       *fakeState
	invalidator *recordingInvalidator
	alerts      *recordingDispatcher
	recorder    *recordingRecorder
	processor   *Processor
	sender      common.Address
}

func newProcessorFixture(t *testing.T, consumer Consumer) *processorFixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet, err := chain.NewKeyWallet(big.NewInt(1337), []*ecdsa.PrivateKey{key})
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	accounts, err := wallet.RequestAccounts(context.Background())
	if err != nil {
		t.Fatalf("connect wallet: %v", err)
	}

	resolver := chain.NewResolver(offlineBackend{}, wallet)
	bindings := chain.NewBindings(resolver, common.HexToAddress("0xfac7"), common.HexToAddress("0x9a55"))
	fx := &processorFixture{
		store:       &recordingStore{MemoryStore: NewMemoryStore()},
		relay:       &fakeRelay{hash: "0xfeed"},
		state:       &fakeState{sender: accounts[0], now: big.NewInt(1_700_000_000), score: big.NewInt(20000)},
		invalidator: &recordingInvalidator{},
		alerts:      &recordingDispatcher{},
		recorder:    &recordingRecorder{},
		sender:      accounts[0],
	}
	submitter := chain.NewRelaySubmitter(bindings, fx.relay, chain.WithoutSimulation())
	fx.processor = NewProcessor(fx.store, consumer, fx.state, submitter,
		WithInvalidator(fx.invalidator),
		WithAlertDispatcher(fx.alerts),
		WithRecorder(fx.recorder),
	)
	return fx
}

func (fx *processorFixture) create(t *testing.T, action *Action) {
	t.Helper()
	if err := fx.store.Create(context.Background(), action); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestProcessorConfirmsRelayedAction(t *testing.T) {
	fx := newProcessorFixture(t, nil)
	project := common.HexToAddress(testProject).Hex()
	fx.create(t, &Action{ID: "poll-1", Kind: KindCreatePoll, Project: project, Params: Params{Name: "Benches", Description: "More benches"}})

	if err := fx.processor.Handle(context.Background(), "poll-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := fx.store.Get(context.Background(), "poll-1")
	if got.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s (%s)", got.Status, got.LastError)
	}
	if got.Result.TxHash != "0xfeed" || got.Result.Strategy != string(chain.StrategyRelay) || got.Result.Sender != fx.sender.Hex() {
		t.Fatalf("unexpected result %+v", got.Result)
	}
	if len(fx.store.stages) != 2 || fx.store.stages[0] != StatusEncoding || fx.store.stages[1] != StatusRelaying {
		t.Fatalf("unexpected stages %v", fx.store.stages)
	}

	if fx.relay.families[0] != relay.FamilyProject || fx.relay.requests[0].ContractAddress != project {
		t.Fatalf("unexpected relay request %+v", fx.relay.requests[0])
	}
	if fx.relay.requests[0].Sender != fx.sender.Hex() {
		t.Fatalf("relay sender = %s", fx.relay.requests[0].Sender)
	}

	if len(fx.invalidator.seen) != 1 {
		t.Fatalf("expected one invalidation, got %d", len(fx.invalidator.seen))
	}
	inv := fx.invalidator.seen[0]
	if inv.Address != fx.sender.Hex() || inv.Project != project || inv.ProjectList {
		t.Fatalf("unexpected invalidation %+v", inv)
	}
	if len(fx.recorder.results) != 1 || fx.recorder.results[0] != "create_poll/confirmed/" {
		t.Fatalf("unexpected metrics %v", fx.recorder.results)
	}
}

func TestProcessorCreateProjectInvalidatesList(t *testing.T) {
	fx := newProcessorFixture(t, nil)
	fx.create(t, &Action{ID: "proj-1", Kind: KindCreateProject, Params: validProjectParams()})

	if err := fx.processor.Handle(context.Background(), "proj-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if fx.relay.families[0] != relay.FamilyFactory || fx.relay.requests[0].ContractAddress != "" {
		t.Fatalf("unexpected relay request %+v", fx.relay.requests[0])
	}
	if len(fx.invalidator.seen) != 1 || !fx.invalidator.seen[0].ProjectList {
		t.Fatalf("expected project list invalidation, got %+v", fx.invalidator.seen)
	}
}

func TestProcessorRelayFailureIsTerminal(t *testing.T) {
	fx := newProcessorFixture(t, nil)
	fx.relay.err = xerrors.New(chain.CodeRelaySubmissionFailed, "relayer unavailable",
		xerrors.WithMetadata("status", "502"))
	fx.create(t, &Action{ID: "vote-1", Kind: KindCastVote, Project: testProject, Params: Params{PollIndex: 0, Votes: 1}})

	if err := fx.processor.Handle(context.Background(), "vote-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// A redelivered message must not resubmit a failed action.
	if err := fx.processor.Handle(context.Background(), "vote-1"); err != nil {
		t.Fatalf("second handle: %v", err)
	}

	got, _ := fx.store.Get(context.Background(), "vote-1")
	if got.Status != StatusFailed || got.ErrorCode != string(chain.CodeRelaySubmissionFailed) {
		t.Fatalf("unexpected action %+v", got)
	}
	if got.LastError != "relayer unavailable" {
		t.Fatalf("unexpected message %q", got.LastError)
	}
	if fx.relay.calls() != 1 {
		t.Fatalf("expected exactly one relay attempt, got %d", fx.relay.calls())
	}
	if len(fx.invalidator.seen) != 0 {
		t.Fatalf("failed actions must not invalidate views")
	}
	if len(fx.alerts.events) != 1 {
		t.Fatalf("expected one alert, got %d", len(fx.alerts.events))
	}
	event := fx.alerts.events[0]
	if event.Code != chain.CodeRelaySubmissionFailed || event.ActionID != "vote-1" || event.Metadata["status"] != "502" {
		t.Fatalf("unexpected alert %+v", event)
	}
}

func TestProcessorRejectsBeforeSubmitting(t *testing.T) {
	fx := newProcessorFixture(t, nil)
	fx.state.score = big.NewInt(0)
	fx.create(t, &Action{ID: "join-1", Kind: KindJoinProject, Project: testProject})

	if err := fx.processor.Handle(context.Background(), "join-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, _ := fx.store.Get(context.Background(), "join-1")
	if got.Status != StatusFailed || got.ErrorCode != string(CodeValidationFailed) {
		t.Fatalf("unexpected action %+v", got)
	}
	if fx.relay.calls() != 0 {
		t.Fatalf("relayer must not be contacted")
	}
	if len(fx.alerts.events) != 0 {
		t.Fatalf("validation failures must not alert")
	}
	if fx.recorder.results[0] != "join_project/failed/VALIDATION_FAILED" {
		t.Fatalf("unexpected metrics %v", fx.recorder.results)
	}
}

func TestProcessorSkipsUnknownAction(t *testing.T) {
	fx := newProcessorFixture(t, nil)
	if err := fx.processor.Handle(context.Background(), "ghost"); err != nil {
		t.Fatalf("unknown actions should be skipped, got %v", err)
	}
}

func TestServiceAndProcessorOverQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	queue := NewMemoryQueue(4)
	fx := newProcessorFixture(t, queue)
	service := NewService(fx.store, queue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.processor.Start(ctx) }()

	submitted, err := service.Submit(ctx, Request{Kind: KindJoinProject, Project: testProject})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	final, err := service.WaitUntilCompleted(waitCtx, submitted.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s (%s)", final.Status, final.LastError)
	}

	cancel()
	<-done
	if err := service.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
