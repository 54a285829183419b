package action

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestRecoverInterruptedFailsStaleInFlightActions(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)
	store, advance := newClockedStore(start)

	for _, id := range []string{"stale", "idle", "done", "fresh"} {
		if err := store.Create(ctx, &Action{ID: id, Kind: KindJoinProject, Project: testProject}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := store.Claim(ctx, "stale"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Transition(ctx, "stale", StatusRelaying); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := store.Claim(ctx, "done"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkConfirmed(ctx, "done", Result{Strategy: "relay", TxHash: "0x01"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	advance(time.Hour)
	if _, err := store.Claim(ctx, "fresh"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	recorder := &recordingRecorder{}
	processor := NewProcessor(store, nil, nil, nil, WithRecorder(recorder))
	recovered, err := processor.RecoverInterrupted(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected one interrupted action, got %d", recovered)
	}

	stale, _ := store.Get(ctx, "stale")
	if stale.Status != StatusFailed || stale.ErrorCode != string(CodeActionInterrupted) {
		t.Fatalf("unexpected stale action %+v", stale)
	}
	if _, err := store.Claim(ctx, "stale"); !errors.Is(err, ErrActionFinished) {
		t.Fatalf("interrupted action should be finished, got %v", err)
	}
	for id, want := range map[string]Status{"idle": StatusIdle, "done": StatusConfirmed, "fresh": StatusValidating} {
		got, _ := store.Get(ctx, id)
		if got.Status != want {
			t.Fatalf("%s: expected %s, got %s", id, want, got.Status)
		}
	}
	if len(recorder.results) != 1 || recorder.results[0] != "join_project/failed/ACTION_INTERRUPTED" {
		t.Fatalf("unexpected recorded results %v", recorder.results)
	}
}

func TestRecoverInterruptedPagesThroughBacklog(t *testing.T) {
	ctx := context.Background()
	store, _ := newClockedStore(time.Now().Add(-time.Hour))
	total := recoverBatch + 5
	for i := 0; i < total; i++ {
		id := "a" + strconv.Itoa(i)
		if err := store.Create(ctx, &Action{ID: id, Kind: KindJoinProject, Project: testProject}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := store.Claim(ctx, id); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	processor := NewProcessor(store, nil, nil, nil)
	recovered, err := processor.RecoverInterrupted(ctx, time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != total {
		t.Fatalf("expected %d recovered, got %d", total, recovered)
	}
}
