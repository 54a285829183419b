package action

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"Parry-QV/pkg/logger"
)

// recoverBatch 为每轮扫描的动作数量。
const recoverBatch = 100

// RecoverInterrupted 把超过 staleAfter 未更新的在途动作标记为
// ACTION_INTERRUPTED 失败。进程在提交途中退出后，交易可能已经广播，
// 因此这些动作不会重新执行，调用方需要查询链上状态后自行决定是否重新提交。
func (p *Processor) RecoverInterrupted(ctx context.Context, staleAfter time.Duration) (int, error) {
	if p.store == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-staleAfter)
	opts := ListOptions{
		Limit:      recoverBatch,
		Statuses:   inFlightStatuses(),
		UpdatedLTE: cutoff.Unix(),
		Order:      SortByUpdatedAsc,
	}
	recovered := 0
	for {
		page, err := p.store.List(ctx, opts)
		if err != nil {
			return recovered, err
		}
		marked := 0
		for _, action := range page {
			err := p.store.MarkFailed(ctx, action.ID, CodeActionInterrupted,
				"action was interrupted before completion; check the chain before resubmitting")
			if stdErrors.Is(err, ErrActionFinished) || stdErrors.Is(err, ErrActionNotFound) {
				continue
			}
			if err != nil {
				return recovered, err
			}
			marked++
			logger.Audit().Warn("动作中断",
				slog.String("action_id", action.ID),
				slog.String("kind", string(action.Kind)),
				slog.String("project", action.Project),
				slog.String("last_status", string(action.Status)),
				slog.String("error_code", string(CodeActionInterrupted)),
			)
			p.record(action.Kind, StatusFailed, string(CodeActionInterrupted))
		}
		recovered += marked
		if len(page) < recoverBatch || marked == 0 {
			break
		}
	}
	if recovered > 0 {
		p.logger.Warn("已将中断的动作标记为失败", slog.Int("count", recovered))
	}
	return recovered, nil
}

func inFlightStatuses() []Status {
	return []Status{StatusValidating, StatusSimulating, StatusEncoding, StatusRelaying, StatusDirectSubmitting}
}
