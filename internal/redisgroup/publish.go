package redisgroup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/relaydeck/streamgroup/internal/keys"
)

// payloadField is the stream entry field Publish writes and ChannelProcessor
// reads. The producer side of the wire format is otherwise out of scope:
// any entry carrying this field is readable here regardless of what wrote it.
const payloadField = "payload"

// Publisher appends entries to a channel's stream. It exists so the CLI's
// publish subcommand and tests have a producer without depending on the
// consumer-side plumbing.
type Publisher struct {
	client RedisStreamClient
}

// NewPublisher wraps client for publishing.
func NewPublisher(client RedisStreamClient) *Publisher {
	return &Publisher{client: client}
}

// Publish appends payload to channel's stream and returns the assigned
// record id.
func (p *Publisher) Publish(ctx context.Context, channel, payload string) (string, error) {
	stream := keys.ForChannel(channel)
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			payloadField: payload,
		},
	})
	if err != nil {
		return "", fmt.Errorf("redisgroup: publish to %s: %w", stream, err)
	}
	return id, nil
}
