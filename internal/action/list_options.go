package action

import (
	"strings"
	"time"
)

// SortOrder defines how results should be ordered when listing actions.
type SortOrder int

const (
	// SortByUpdatedDesc orders actions by UpdatedAt descending (most recent first).
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc orders actions by UpdatedAt ascending (oldest first).
	SortByUpdatedAsc
)

// ListOptions controls how actions are selected when querying the store.
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Kinds      []Kind
	Project    string
	UpdatedGTE int64
	UpdatedLTE int64
	Order      SortOrder
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Statuses != nil {
		opts.Statuses = normalizeStatuses(opts.Statuses)
	}
	if opts.Kinds != nil {
		opts.Kinds = normalizeKinds(opts.Kinds)
	}
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Project = strings.ToLower(strings.TrimSpace(opts.Project))
}

// matches reports whether action passes every filter except paging.
func (opts ListOptions) matches(action *Action) bool {
	if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, action.Status) {
		return false
	}
	if len(opts.Kinds) > 0 && !containsKind(opts.Kinds, action.Kind) {
		return false
	}
	if opts.Project != "" && !strings.EqualFold(opts.Project, action.Project) {
		return false
	}
	if opts.UpdatedGTE > 0 && action.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && action.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	return true
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of actions returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching actions.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithStatuses filters actions by the provided statuses.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithKinds filters actions by kind.
func WithKinds(kinds ...Kind) ListOption {
	return func(opts *ListOptions) {
		opts.Kinds = append(opts.Kinds[:0], kinds...)
	}
}

// WithProject filters actions touching one project contract.
func WithProject(project string) ListOption {
	return func(opts *ListOptions) {
		opts.Project = project
	}
}

// WithUpdatedSince filters actions updated after the provided instant (inclusive).
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.UpdatedGTE = 0
			return
		}
		opts.UpdatedGTE = ts.Unix()
	}
}

// WithUpdatedUntil filters actions updated before the provided instant (inclusive).
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.UpdatedLTE = 0
			return
		}
		opts.UpdatedLTE = ts.Unix()
	}
}

// WithSortOrder changes the returned order of actions.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// BuildListOptions applies option functions on top of defaults.
func BuildListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStatuses(input []Status) []Status {
	seen := make(map[Status]struct{}, len(input))
	result := make([]Status, 0, len(input))
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func normalizeKinds(input []Kind) []Kind {
	seen := make(map[Kind]struct{}, len(input))
	result := make([]Kind, 0, len(input))
	for _, kind := range input {
		if !IsValidKind(kind) {
			continue
		}
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		result = append(result, kind)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func containsStatus(list []Status, status Status) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func containsKind(list []Kind, kind Kind) bool {
	for _, k := range list {
		if k == kind {
			return true
		}
	}
	return false
}
