package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaydeck/streamgroup/internal/keys"
)

// DecodeError wraps a failure to decode a present assignment key. It is
// always fatal: a corrupt assignment document must never be treated as an
// absent one.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("assignment: corrupt document at %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RedisClient is the subset of Redis operations the store needs. Defining
// it narrowly (rather than depending on *redis.Client directly) keeps the
// store mockable in tests, the same shape as the teacher's
// RedisRateLimitClient.
type RedisClient interface {
	// Set writes value to key with the given TTL (0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value of key and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)
}

// RedisGoAdapter adapts go-redis/v9's *redis.Client to RedisClient.
type RedisGoAdapter struct {
	Client *redis.Client
}

// NewRedisGoAdapter wraps an existing go-redis client.
func NewRedisGoAdapter(client *redis.Client) *RedisGoAdapter {
	return &RedisGoAdapter{Client: client}
}

// Set implements RedisClient.
func (a *RedisGoAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return a.Client.Set(ctx, key, value, ttl).Err()
}

// Get implements RedisClient.
func (a *RedisGoAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := a.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Store reads and writes a consumer's assignment document under a TTL'd
// key. Every operation is idempotent at the Redis level.
type Store interface {
	// Initialize writes a's serialized form under (groupID, memberID) with
	// the store's configured TTL.
	Initialize(ctx context.Context, groupID, memberID string, a Assignment) error
	// Read returns the decoded assignment, or ok=false if the key is
	// absent or expired. Decode errors on a present key are returned, not
	// swallowed into ok=false.
	Read(ctx context.Context, groupID, memberID string) (a Assignment, ok bool, err error)
	// Save has identical semantics to Initialize: it overwrites the
	// document and resets its TTL.
	Save(ctx context.Context, groupID, memberID string, a Assignment) error
}

// RedisStore is the Store implementation backed by Redis.
type RedisStore struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisStore returns a Store writing assignment documents with the
// given TTL.
func NewRedisStore(client RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Initialize implements Store.
func (s *RedisStore) Initialize(ctx context.Context, groupID, memberID string, a Assignment) error {
	return s.write(ctx, groupID, memberID, a)
}

// Save implements Store. Identical to Initialize per spec: both write the
// full document and reset the TTL.
func (s *RedisStore) Save(ctx context.Context, groupID, memberID string, a Assignment) error {
	return s.write(ctx, groupID, memberID, a)
}

func (s *RedisStore) write(ctx context.Context, groupID, memberID string, a Assignment) error {
	data, err := Encode(a)
	if err != nil {
		return fmt.Errorf("assignment: encode: %w", err)
	}
	key := keys.ForAssignment(groupID, memberID)
	if err := s.client.Set(ctx, key, string(data), s.ttl); err != nil {
		return fmt.Errorf("assignment: write %s: %w", key, err)
	}
	return nil
}

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, groupID, memberID string) (Assignment, bool, error) {
	key := keys.ForAssignment(groupID, memberID)
	val, ok, err := s.client.Get(ctx, key)
	if err != nil {
		return Assignment{}, false, fmt.Errorf("assignment: read %s: %w", key, err)
	}
	if !ok {
		return Assignment{}, false, nil
	}
	a, err := Decode([]byte(val))
	if err != nil {
		return Assignment{}, false, &DecodeError{Key: key, Err: err}
	}
	return a, true, nil
}
