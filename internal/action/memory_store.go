package action

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "Parry-QV/internal/errors"
)

// MemoryStore 以内存方式保存动作状态，主要用于测试与单实例部署。
type MemoryStore struct {
	mu      sync.RWMutex
	actions map[string]*Action
	order   []string
	now     func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]*Action), now: time.Now}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, action *Action) error {
	if action == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "action 不能为空")
	}
	if strings.TrimSpace(action.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "动作 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[action.ID]; ok {
		return ErrActionConflict
	}
	now := m.now().Unix()
	if action.CreatedAt == 0 {
		action.CreatedAt = now
	}
	action.UpdatedAt = now
	if action.Status == "" {
		action.Status = StatusIdle
	}
	m.actions[action.ID] = cloneAction(action)
	m.order = append(m.order, action.ID)
	return nil
}

// Get 返回动作。
func (m *MemoryStore) Get(_ context.Context, id string) (*Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	action, ok := m.actions[id]
	if !ok {
		return nil, ErrActionNotFound
	}
	return cloneAction(action), nil
}

// Claim 将动作状态从 idle 更新为 validating。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[id]
	if !ok {
		return nil, ErrActionNotFound
	}
	switch {
	case action.Status.Terminal():
		return cloneAction(action), ErrActionFinished
	case action.Status != StatusIdle:
		return cloneAction(action), ErrActionConflict
	}
	action.Status = StatusValidating
	action.UpdatedAt = m.now().Unix()
	return cloneAction(action), nil
}

// Transition 更新动作的中间状态。
func (m *MemoryStore) Transition(_ context.Context, id string, status Status) error {
	if !status.InFlight() {
		return xerrors.New(xerrors.CodeInvalidArgument, "非法的中间状态: "+string(status))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[id]
	if !ok {
		return ErrActionNotFound
	}
	if action.Status.Terminal() {
		return ErrActionFinished
	}
	action.Status = status
	action.UpdatedAt = m.now().Unix()
	return nil
}

// MarkConfirmed 记录成功结果。
func (m *MemoryStore) MarkConfirmed(_ context.Context, id string, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[id]
	if !ok {
		return ErrActionNotFound
	}
	if action.Status.Terminal() {
		return ErrActionFinished
	}
	action.Status = StatusConfirmed
	action.Result = &result
	action.ErrorCode = ""
	action.LastError = ""
	action.UpdatedAt = m.now().Unix()
	return nil
}

// MarkFailed 记录失败原因。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[id]
	if !ok {
		return ErrActionNotFound
	}
	if action.Status.Terminal() {
		return ErrActionFinished
	}
	action.Status = StatusFailed
	action.ErrorCode = string(code)
	action.LastError = message
	action.UpdatedAt = m.now().Unix()
	return nil
}

// List 返回符合过滤条件的动作。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Action, error) {
	opts.applyDefaults()
	matched := m.filter(opts)
	if opts.Order == SortByUpdatedAsc {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].UpdatedAt < matched[j].UpdatedAt })
	} else {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].UpdatedAt > matched[j].UpdatedAt })
	}
	if opts.Offset >= len(matched) {
		return []*Action{}, nil
	}
	matched = matched[opts.Offset:]
	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Stats 汇总符合过滤条件的动作数量。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()
	var stats Stats
	for _, action := range m.filter(opts) {
		stats.add(action.Kind, action.Status, 1)
		stats.touch(action.UpdatedAt)
	}
	return stats, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) filter(opts ListOptions) []*Action {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Action, 0, len(m.actions))
	// 逆序遍历，使相同 UpdatedAt 时新创建的动作排在前面。
	for i := len(m.order) - 1; i >= 0; i-- {
		action := m.actions[m.order[i]]
		if opts.matches(action) {
			result = append(result, cloneAction(action))
		}
	}
	return result
}
