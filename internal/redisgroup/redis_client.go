package redisgroup

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStreamClient is the subset of Redis Streams operations the channel
// processor and publish helper need. Narrowing the dependency to an
// interface (rather than *redis.Client directly) keeps the core mockable
// in tests, mirroring the teacher's RedisStreamsClient abstraction.
type RedisStreamClient interface {
	// XAdd appends an entry to a stream.
	XAdd(ctx context.Context, args *redis.XAddArgs) (string, error)
	// XGroupCreate creates a consumer group starting at the given id. It
	// does not create the stream: callers see
	// "ERR The XGROUP subcommand requires the key to exist" until a
	// producer has published at least once.
	XGroupCreate(ctx context.Context, stream, group, start string) error
	// XReadGroup reads entries from a stream via a consumer group.
	XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error)
	// XAck acknowledges processed entries.
	XAck(ctx context.Context, stream, group string, ids ...string) (int64, error)
	// XPending returns the summary pending-entries report for a group.
	XPending(ctx context.Context, stream, group string) (*redis.XPending, error)
}

// RedisGoAdapter adapts go-redis/v9's *redis.Client to RedisStreamClient.
type RedisGoAdapter struct {
	Client *redis.Client
}

// NewRedisGoAdapter wraps an existing go-redis client.
func NewRedisGoAdapter(client *redis.Client) *RedisGoAdapter {
	return &RedisGoAdapter{Client: client}
}

// XAdd implements RedisStreamClient.
func (a *RedisGoAdapter) XAdd(ctx context.Context, args *redis.XAddArgs) (string, error) {
	return a.Client.XAdd(ctx, args).Result()
}

// XGroupCreate implements RedisStreamClient.
func (a *RedisGoAdapter) XGroupCreate(ctx context.Context, stream, group, start string) error {
	return a.Client.XGroupCreate(ctx, stream, group, start).Err()
}

// XReadGroup implements RedisStreamClient.
func (a *RedisGoAdapter) XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error) {
	return a.Client.XReadGroup(ctx, args).Result()
}

// XAck implements RedisStreamClient.
func (a *RedisGoAdapter) XAck(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	return a.Client.XAck(ctx, stream, group, ids...).Result()
}

// XPending implements RedisStreamClient.
func (a *RedisGoAdapter) XPending(ctx context.Context, stream, group string) (*redis.XPending, error) {
	return a.Client.XPending(ctx, stream, group).Result()
}
