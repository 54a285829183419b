// Package redis builds the shared go-redis client used by the action queue,
// the view cache and the invalidation bus.
package redis
