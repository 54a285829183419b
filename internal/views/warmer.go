package views

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"Parry-QV/internal/chain"
	xerrors "Parry-QV/internal/errors"
)

// Warmer periodically re-fetches the project list so the first reader after
// a quiet period does not pay for the fan-out.
type Warmer struct {
	cron     *cron.Cron
	views    *Views
	interval time.Duration
}

// NewWarmer schedules a refresh every interval.
func NewWarmer(views *Views, interval time.Duration) *Warmer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Warmer{cron: cron.New(), views: views, interval: interval}
}

// Start registers the job and starts the scheduler. Refreshes use ctx.
func (w *Warmer) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.interval), func() {
		w.refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule project refresh: %w", err)
	}
	w.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running refresh.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
}

func (w *Warmer) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := w.views.RefreshProjects(ctx)
	if err != nil && !xerrors.HasCode(err, chain.CodeEmptyResult) {
		w.views.log.Warn("project list refresh failed", slog.Any("error", err))
	}
}
