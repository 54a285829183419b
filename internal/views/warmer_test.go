package views

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestWarmerRefreshesProjectList(t *testing.T) {
	defer goleak.VerifyNone(t)

	reader := newCountingReader()
	v := New(reader, NewMemoryBackend())
	w := NewWarmer(v, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for reader.count("projects") < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	w.Stop()

	if got := reader.count("projects"); got < 2 {
		t.Fatalf("expected repeated refreshes, got %d", got)
	}
}
