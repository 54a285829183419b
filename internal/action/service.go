package action

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	xerrors "Parry-QV/internal/errors"
	"Parry-QV/pkg/logger"
)

// Service 负责动作的创建与查询。
type Service struct {
	store    Store
	producer Producer
}

// NewService 构造动作服务。
func NewService(store Store, producer Producer) *Service {
	return &Service{store: store, producer: producer}
}

// Submit 校验请求、持久化动作并推送到队列。调用方提供的 ID 已存在时
// 直接返回已有动作。
func (s *Service) Submit(ctx context.Context, req Request) (*Action, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "动作服务未初始化")
	}
	project := strings.TrimSpace(req.Project)
	if req.Kind == KindCreateProject {
		project = ""
	}
	if err := Validate(req.Kind, project, req.Params); err != nil {
		return nil, err
	}
	if project != "" {
		project = common.HexToAddress(project).Hex()
	}

	actionID := strings.TrimSpace(req.ID)
	if actionID != "" {
		existing, err := s.store.Get(ctx, actionID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrActionNotFound) {
			return nil, err
		}
	} else {
		actionID = uuid.NewString()
	}

	params := req.Params
	params.Name = strings.TrimSpace(params.Name)
	params.Description = strings.TrimSpace(params.Description)
	action := &Action{
		ID:      actionID,
		Kind:    req.Kind,
		Project: project,
		Params:  params,
		Status:  StatusIdle,
	}
	if err := s.store.Create(ctx, action); err != nil {
		if stdErrors.Is(err, ErrActionConflict) {
			if existing, getErr := s.store.Get(ctx, actionID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, actionID); err != nil {
		logger.L().Error("动作入队失败", slog.Any("error", err), slog.String("action_id", actionID))
		wrapped := xerrors.Wrap(CodeActionPublish, err, "发布动作到队列失败")
		_ = s.store.MarkFailed(ctx, actionID, CodeActionPublish, xerrors.UserMessage(wrapped))
		return nil, wrapped
	}
	logger.Audit().Info("动作已提交",
		slog.String("action_id", actionID),
		slog.String("kind", string(action.Kind)),
		slog.String("project", action.Project),
	)
	return action, nil
}

// Get 返回指定动作的状态。
func (s *Service) Get(ctx context.Context, id string) (*Action, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "动作存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的动作列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Action, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "动作存储未初始化")
	}
	return s.store.List(ctx, BuildListOptions(opts...))
}

// Stats 返回符合过滤条件的动作统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "动作存储未初始化")
	}
	return s.store.Stats(ctx, BuildListOptions(opts...))
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询动作状态直到进入终态或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Action, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		action, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if action.Status.Terminal() {
			return action, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
