package redisgroup

import "context"

// RedisMessage wraps one payload string read from a channel together with
// the Redis-assigned record id it arrived under. It is created fresh for
// every handler invocation and dropped once that record is acknowledged
// (or re-created on retry after a restart).
type RedisMessage struct {
	Payload  string
	RecordID string
}

// Handler processes one RedisMessage. Returning nil acknowledges the
// record; returning an error terminates the owning ChannelProcessor
// without acknowledging it, leaving the record in the consumer group's
// pending entries list for the next run.
type Handler func(ctx context.Context, msg RedisMessage) error
