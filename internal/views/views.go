package views

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/moznion/go-optional"
	"golang.org/x/sync/singleflight"

	"Parry-QV/internal/chain"
	"Parry-QV/pkg/logger"
)

const (
	// DefaultTTL bounds how long a view is served without an invalidation.
	DefaultTTL = 30 * time.Second
	// DefaultLoadTimeout bounds a shared chain read. Shared reads outlive
	// the request that started them.
	DefaultLoadTimeout = 20 * time.Second
)

// Reader is the subset of chain.Reader served through the cache.
type Reader interface {
	ListProjectSummaries(ctx context.Context) ([]chain.ProjectSummary, error)
	GetProjectSummary(ctx context.Context, address string) (optional.Option[chain.ProjectSummary], error)
	ListPolls(ctx context.Context, project common.Address) ([]chain.Poll, error)
	GetPoll(ctx context.Context, project common.Address, index uint64) (chain.Poll, error)
	GetMembership(ctx context.Context, project, wallet common.Address) (chain.Membership, error)
	GetVoteRecord(ctx context.Context, project common.Address, index uint64, wallet common.Address) (chain.VoteRecord, error)
	GetPassportScore(ctx context.Context, wallet common.Address) (chain.PassportScore, error)
}

// Observer records cache hits and misses.
type Observer interface {
	ObserveView(view string, hit bool)
}

// Option configures Views.
type Option func(*Views)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(v *Views) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithLoadTimeout overrides DefaultLoadTimeout.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(v *Views) {
		if timeout > 0 {
			v.loadTimeout = timeout
		}
	}
}

// WithBus broadcasts invalidations to other instances.
func WithBus(bus Bus) Option {
	return func(v *Views) {
		v.bus = bus
	}
}

// WithObserver reports hits and misses.
func WithObserver(observer Observer) Option {
	return func(v *Views) {
		v.observer = observer
	}
}

// Views serves chain reads through a tagged cache.
//
// Every tag carries a generation that invalidations bump. A load only
// stores its result when the generations of its tags are unchanged, so a
// read that started before an invalidation never repopulates the cache.
type Views struct {
	reader      Reader
	backend     Backend
	bus         Bus
	observer    Observer
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
	log         *slog.Logger

	mu       sync.Mutex
	gens     map[string]uint64
	inflight map[string]*flight
}

type flight struct {
	tags []string
}

// New wraps reader with backend.
func New(reader Reader, backend Backend, opts ...Option) *Views {
	v := &Views{
		reader:      reader,
		backend:     backend,
		ttl:         DefaultTTL,
		loadTimeout: DefaultLoadTimeout,
		log:         loggerFor("views"),
		gens:        make(map[string]uint64),
		inflight:    make(map[string]*flight),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Projects returns every project summary in enumeration order.
func (v *Views) Projects(ctx context.Context) ([]chain.ProjectSummary, error) {
	return lookup(ctx, v, "projects", projectListTag, []string{projectListTag}, v.reader.ListProjectSummaries)
}

// Project returns one summary; None when no enumerated project matches.
// Misses are not cached.
func (v *Views) Project(ctx context.Context, address string) (optional.Option[chain.ProjectSummary], error) {
	key := "project:" + lower(address)
	raw, ok := v.get(ctx, key)
	if ok {
		var summary chain.ProjectSummary
		if err := json.Unmarshal(raw, &summary); err == nil {
			v.observe("project", true)
			return optional.Some(summary), nil
		}
	}
	v.observe("project", false)
	tags := []string{projectTag(address)}
	gen := v.generation(tags)
	found, err := v.reader.GetProjectSummary(ctx, address)
	if err != nil || found.IsNone() {
		return found, err
	}
	summary, _ := found.Take()
	v.setIfCurrent(ctx, key, summary, tags, gen)
	return found, nil
}

// Polls returns the polls of project ordered by index.
func (v *Views) Polls(ctx context.Context, project common.Address) ([]chain.Poll, error) {
	key := "polls:" + hex(project)
	return lookup(ctx, v, "polls", key, []string{projectTag(project.Hex())}, func(ctx context.Context) ([]chain.Poll, error) {
		return v.reader.ListPolls(ctx, project)
	})
}

// Poll returns one poll.
func (v *Views) Poll(ctx context.Context, project common.Address, index uint64) (chain.Poll, error) {
	key := fmt.Sprintf("poll:%s:%d", hex(project), index)
	return lookup(ctx, v, "poll", key, []string{projectTag(project.Hex())}, func(ctx context.Context) (chain.Poll, error) {
		return v.reader.GetPoll(ctx, project, index)
	})
}

// Membership returns wallet's standing in project.
func (v *Views) Membership(ctx context.Context, project, wallet common.Address) (chain.Membership, error) {
	key := fmt.Sprintf("member:%s:%s", hex(project), hex(wallet))
	tags := []string{projectTag(project.Hex()), addressTag(wallet.Hex())}
	return lookup(ctx, v, "membership", key, tags, func(ctx context.Context) (chain.Membership, error) {
		return v.reader.GetMembership(ctx, project, wallet)
	})
}

// VoteRecord returns wallet's vote on one poll.
func (v *Views) VoteRecord(ctx context.Context, project common.Address, index uint64, wallet common.Address) (chain.VoteRecord, error) {
	key := fmt.Sprintf("vote:%s:%d:%s", hex(project), index, hex(wallet))
	tags := []string{projectTag(project.Hex()), addressTag(wallet.Hex())}
	return lookup(ctx, v, "vote", key, tags, func(ctx context.Context) (chain.VoteRecord, error) {
		return v.reader.GetVoteRecord(ctx, project, index, wallet)
	})
}

// PassportScore returns wallet's identity score.
func (v *Views) PassportScore(ctx context.Context, wallet common.Address) (chain.PassportScore, error) {
	key := "passport:" + hex(wallet)
	return lookup(ctx, v, "passport", key, []string{addressTag(wallet.Hex())}, func(ctx context.Context) (chain.PassportScore, error) {
		return v.reader.GetPassportScore(ctx, wallet)
	})
}

// Invalidate drops the named views locally and broadcasts inv.
func (v *Views) Invalidate(ctx context.Context, inv Invalidation) error {
	if inv.Empty() {
		return nil
	}
	if err := v.drop(ctx, inv.tags()...); err != nil {
		return err
	}
	if v.bus != nil {
		return v.bus.Publish(ctx, inv)
	}
	return nil
}

// RefreshProjects drops and re-fetches the project list.
func (v *Views) RefreshProjects(ctx context.Context) error {
	if err := v.drop(ctx, projectListTag); err != nil {
		return err
	}
	_, err := v.Projects(ctx)
	return err
}

// Run applies invalidations received from the bus until ctx ends.
func (v *Views) Run(ctx context.Context) error {
	if v.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return v.bus.Subscribe(ctx, func(inv Invalidation) {
		if err := v.drop(ctx, inv.tags()...); err != nil {
			v.log.Warn("apply invalidation failed", slog.Any("error", err))
		}
	})
}

func lookup[T any](ctx context.Context, v *Views, view, key string, tags []string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok := v.get(ctx, key); ok {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			v.observe(view, true)
			return value, nil
		}
	}
	v.observe(view, false)
	ch := v.group.DoChan(key, func() (any, error) {
		gen, done := v.begin(key, tags)
		defer done()
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.loadTimeout)
		defer cancel()
		value, err := load(loadCtx)
		if err != nil {
			return value, err
		}
		v.setIfCurrent(loadCtx, key, value, tags, gen)
		return value, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		return value, nil
	}
}

// begin registers an in-flight load of key and snapshots its generation.
func (v *Views) begin(key string, tags []string) (uint64, func()) {
	f := &flight{tags: tags}
	v.mu.Lock()
	gen := v.generationLocked(tags)
	v.inflight[key] = f
	v.mu.Unlock()
	return gen, func() {
		v.mu.Lock()
		if v.inflight[key] == f {
			delete(v.inflight, key)
		}
		v.mu.Unlock()
	}
}

func (v *Views) generation(tags []string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generationLocked(tags)
}

// generationLocked sums the tag generations; any bump changes the sum.
func (v *Views) generationLocked(tags []string) uint64 {
	var sum uint64
	for _, tag := range tags {
		sum += v.gens[tag]
	}
	return sum
}

// drop bumps the generation of tags, detaches in-flight loads carrying
// them and removes the cached entries.
func (v *Views) drop(ctx context.Context, tags ...string) error {
	v.mu.Lock()
	for _, tag := range tags {
		v.gens[tag]++
	}
	for key, f := range v.inflight {
		if sharesTag(f.tags, tags) {
			v.group.Forget(key)
			delete(v.inflight, key)
		}
	}
	v.mu.Unlock()
	return v.backend.Drop(ctx, tags...)
}

func sharesTag(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// setIfCurrent stores value unless one of its tags was invalidated after
// gen was taken. The check and the write happen under v.mu so a concurrent
// drop either sees the entry or makes the write skip.
func (v *Views) setIfCurrent(ctx context.Context, key string, value any, tags []string, gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.generationLocked(tags) != gen {
		v.log.Debug("discarding view loaded before invalidation", slog.String("key", key))
		return
	}
	v.set(ctx, key, value, tags)
}

func (v *Views) get(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := v.backend.Get(ctx, key)
	if err != nil {
		v.log.Warn("view cache read failed", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	return raw, ok
}

func (v *Views) set(ctx context.Context, key string, value any, tags []string) {
	raw, err := json.Marshal(value)
	if err != nil {
		v.log.Warn("encode view failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := v.backend.Set(ctx, key, raw, v.ttl, tags); err != nil {
		v.log.Warn("view cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (v *Views) observe(view string, hit bool) {
	if v.observer != nil {
		v.observer.ObserveView(view, hit)
	}
}

func loggerFor(component string) *slog.Logger {
	return logger.Named(component)
}

func hex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
