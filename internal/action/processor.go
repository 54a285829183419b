package action

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Parry-QV/internal/chain"
	xerrors "Parry-QV/internal/errors"
	"Parry-QV/internal/observability/alerting"
	"Parry-QV/internal/views"
	"Parry-QV/pkg/logger"
)

// Recorder 记录动作结果指标。
type Recorder interface {
	ObserveAction(kind, status, code string)
}

// Processor 负责从队列消费动作并驱动状态机。
type Processor struct {
	store       Store
	consumer    Consumer
	state       ChainState
	submitter   chain.Submitter
	invalidator views.Invalidator
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	recorder    Recorder
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithInvalidator 配置确认后需要通知的视图缓存。
func WithInvalidator(invalidator views.Invalidator) ProcessorOption {
	return func(p *Processor) {
		p.invalidator = invalidator
	}
}

// WithRecorder 配置指标记录器。
func WithRecorder(recorder Recorder) ProcessorOption {
	return func(p *Processor) {
		p.recorder = recorder
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(store Store, consumer Consumer, state ChainState, submitter chain.Submitter, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:       store,
		consumer:    consumer,
		state:       state,
		submitter:   submitter,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("action")
	}
	return p
}

// Start 启动动作处理循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置动作消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 运行单个动作的状态机。只有存储层故障会返回错误，
// 业务失败会记录为 failed 终态。
func (p *Processor) Handle(ctx context.Context, actionID string) error {
	if p.store == nil || p.state == nil || p.submitter == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	action, err := p.store.Claim(ctx, actionID)
	if err != nil {
		if stdErrors.Is(err, ErrActionNotFound) || stdErrors.Is(err, ErrActionFinished) || stdErrors.Is(err, ErrActionConflict) {
			p.logger.Debug("跳过动作", slog.String("action_id", actionID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取动作失败", slog.Any("error", err), slog.String("action_id", actionID))
		return err
	}

	call, sender, err := plan(ctx, p.state, action)
	if err != nil {
		return p.fail(ctx, action, sender, err)
	}

	stageCtx := chain.WithStageHook(ctx, func(stage chain.Stage) {
		if err := p.store.Transition(ctx, action.ID, Status(stage)); err != nil {
			p.logger.Warn("记录动作状态失败",
				slog.String("action_id", action.ID),
				slog.String("stage", string(stage)),
				slog.Any("error", err))
		}
	})
	submission, err := p.submitter.Submit(stageCtx, call)
	if err != nil {
		return p.fail(ctx, action, sender, err)
	}

	result := Result{
		Strategy:    string(submission.Strategy),
		Sender:      submission.Sender.Hex(),
		TxHash:      submission.TxHash,
		BlockNumber: submission.BlockNumber,
	}
	if err := p.store.MarkConfirmed(ctx, action.ID, result); err != nil {
		p.logger.Error("标记动作成功状态失败", slog.Any("error", err), slog.String("action_id", action.ID))
		return err
	}
	logger.Audit().Info("动作已确认",
		slog.String("action_id", action.ID),
		slog.String("kind", string(action.Kind)),
		slog.String("project", action.Project),
		slog.String("sender", result.Sender),
		slog.String("strategy", result.Strategy),
		slog.String("tx_hash", result.TxHash),
	)
	p.record(action.Kind, StatusConfirmed, "")
	p.invalidate(ctx, action, submission.Sender)
	return nil
}

func (p *Processor) fail(ctx context.Context, action *Action, sender common.Address, cause error) error {
	normalized := chain.Normalize(cause, chain.CodeExecutionFailed)
	code := xerrors.CodeOf(normalized)
	message := xerrors.UserMessage(normalized)

	if err := p.store.MarkFailed(ctx, action.ID, code, message); err != nil {
		p.logger.Error("标记动作失败状态出错", slog.Any("error", err), slog.String("action_id", action.ID))
		return err
	}
	logger.Audit().Warn("动作失败",
		slog.String("action_id", action.ID),
		slog.String("kind", string(action.Kind)),
		slog.String("project", action.Project),
		slog.String("sender", sender.Hex()),
		slog.String("error_code", string(code)),
		slog.String("error", normalized.Error()),
	)
	p.record(action.Kind, StatusFailed, string(code))
	if xerrors.ShouldAlert(normalized) {
		p.emitAlert(ctx, action, code, normalized)
	}
	return nil
}

func (p *Processor) invalidate(ctx context.Context, action *Action, sender common.Address) {
	if p.invalidator == nil {
		return
	}
	inv := views.Invalidation{Address: sender.Hex(), Project: action.Project}
	if action.Kind == KindCreateProject {
		inv.ProjectList = true
	}
	if err := p.invalidator.Invalidate(ctx, inv); err != nil {
		p.logger.Warn("发布缓存失效消息失败", slog.Any("error", err), slog.String("action_id", action.ID))
	}
}

func (p *Processor) record(kind Kind, status Status, code string) {
	if p.recorder != nil {
		p.recorder.ObserveAction(string(kind), string(status), code)
	}
}

func (p *Processor) emitAlert(ctx context.Context, action *Action, code xerrors.Code, cause error) {
	if p.alerter == nil {
		return
	}
	metadata := map[string]string{"project": action.Project}
	if tagged, ok := xerrors.From(cause); ok {
		for k, v := range tagged.Metadata() {
			metadata[k] = v
		}
	}
	event := alerting.Event{
		Code:       code,
		Message:    xerrors.UserMessage(cause),
		Severity:   xerrors.SeverityOf(cause),
		ActionID:   action.ID,
		Kind:       string(action.Kind),
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败", slog.Any("error", err), slog.String("action_id", action.ID))
	}
}
