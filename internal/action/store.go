package action

import (
	"context"

	xerrors "Parry-QV/internal/errors"
)

// Store 抽象了动作状态的持久化接口。
type Store interface {
	Create(ctx context.Context, action *Action) error
	Get(ctx context.Context, id string) (*Action, error)
	// Claim 将 idle 状态的动作推进到 validating。
	Claim(ctx context.Context, id string) (*Action, error)
	// Transition 记录动作进入新的中间状态。
	Transition(ctx context.Context, id string, status Status) error
	MarkConfirmed(ctx context.Context, id string, result Result) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, message string) error
	List(ctx context.Context, opts ListOptions) ([]*Action, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}
