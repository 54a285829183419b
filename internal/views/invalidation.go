package views

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"Parry-QV/pkg/logger"
)

// Invalidation names the views that must be re-fetched on next read.
type Invalidation struct {
	// Address drops every wallet-scoped view of this account.
	Address string `json:"address,omitempty"`
	// Project drops the summary, polls and per-member views of a project.
	Project string `json:"project,omitempty"`
	// ProjectList drops the enumerated project list.
	ProjectList bool `json:"projectList,omitempty"`
}

// Empty reports whether inv names nothing.
func (inv Invalidation) Empty() bool {
	return inv.Address == "" && inv.Project == "" && !inv.ProjectList
}

func (inv Invalidation) tags() []string {
	var tags []string
	if inv.Address != "" {
		tags = append(tags, addressTag(inv.Address))
	}
	if inv.Project != "" {
		tags = append(tags, projectTag(inv.Project))
	}
	if inv.ProjectList {
		tags = append(tags, projectListTag)
	}
	return tags
}

const projectListTag = "projects"

func addressTag(address string) string {
	return "address:" + strings.ToLower(strings.TrimSpace(address))
}

func projectTag(project string) string {
	return "project:" + strings.ToLower(strings.TrimSpace(project))
}

// Bus broadcasts invalidations between gateway instances.
type Bus interface {
	Publish(ctx context.Context, inv Invalidation) error
	// Subscribe delivers invalidations to fn until ctx ends.
	Subscribe(ctx context.Context, fn func(Invalidation)) error
}

// LocalBus delivers invalidations to subscribers in the same process.
type LocalBus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(Invalidation)
}

// NewLocalBus returns an in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]func(Invalidation))}
}

// Publish calls every current subscriber synchronously.
func (b *LocalBus) Publish(_ context.Context, inv Invalidation) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.handlers {
		fn(inv)
	}
	return nil
}

// Subscribe registers fn and blocks until ctx ends.
func (b *LocalBus) Subscribe(ctx context.Context, fn func(Invalidation)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = fn
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
	return ctx.Err()
}

// RedisBus carries invalidations over a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus returns a bus publishing on channel.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = "parryqv:invalidations"
	}
	return &RedisBus{client: client, channel: channel}
}

// Publish sends inv to every subscribed instance.
func (b *RedisBus) Publish(ctx context.Context, inv Invalidation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe listens on the channel until ctx ends. Malformed messages are
// logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(Invalidation)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var inv Invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				logger.Named("views").Warn("discarding malformed invalidation",
					slog.String("payload", msg.Payload), slog.Any("error", err))
				continue
			}
			fn(inv)
		}
	}
}
