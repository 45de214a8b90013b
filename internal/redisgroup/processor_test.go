package redisgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeStreamClient is a hand-rolled RedisStreamClient with fine-grained
// control over bootstrap errors, modeled on the teacher's
// mockRedisStreamsClient: a miniredis instance can't easily be made to
// return "key missing" on the Nth call and succeed on the N+1th.
type fakeStreamClient struct {
	mu sync.Mutex

	groupCreateCalls int
	groupExistsAfter int // XGroupCreate succeeds once calls reach this count (0 = always succeeds)
	groupExists      bool

	entries    []redis.XMessage
	nextID     int
	lastDeliveredNew int // index into entries already delivered via ">"
	pending    map[string]bool // ids currently pending (delivered, not acked)
	acked      []string
}

func newFakeStreamClient() *fakeStreamClient {
	return &fakeStreamClient{pending: make(map[string]bool)}
}

func (f *fakeStreamClient) seed(payloads ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range payloads {
		f.nextID++
		id := fmt.Sprintf("%d-0", f.nextID)
		f.entries = append(f.entries, redis.XMessage{ID: id, Values: map[string]interface{}{payloadField: p}})
	}
}

func (f *fakeStreamClient) XAdd(ctx context.Context, args *redis.XAddArgs) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStreamClient) XGroupCreate(ctx context.Context, stream, group, start string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupCreateCalls++
	if f.groupExists {
		return errors.New("BUSYGROUP Consumer Group name already exists")
	}
	if f.groupExistsAfter > 0 && f.groupCreateCalls < f.groupExistsAfter {
		return errors.New("ERR The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
	}
	f.groupExists = true
	return nil
}

func (f *fakeStreamClient) XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	startID := args.Streams[1]
	var msgs []redis.XMessage

	if startID == "0" {
		for _, e := range f.entries {
			if f.pending[e.ID] {
				msgs = append(msgs, e)
			}
		}
	} else {
		for i := f.lastDeliveredNew; i < len(f.entries); i++ {
			msgs = append(msgs, f.entries[i])
			f.pending[f.entries[i].ID] = true
		}
		f.lastDeliveredNew = len(f.entries)
		if len(msgs) == 0 {
			if args.Block > 0 {
				f.mu.Unlock()
				time.Sleep(minDuration(args.Block, 20*time.Millisecond))
				f.mu.Lock()
			}
			return nil, redis.Nil
		}
	}

	if len(msgs) == 0 {
		return nil, redis.Nil
	}
	return []redis.XStream{{Stream: stream0(args), Messages: msgs}}, nil
}

func stream0(args *redis.XReadGroupArgs) string {
	return args.Streams[0]
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (f *fakeStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.pending, id)
		f.acked = append(f.acked, id)
	}
	return int64(len(ids)), nil
}

func (f *fakeStreamClient) XPending(ctx context.Context, stream, group string) (*redis.XPending, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &redis.XPending{Count: int64(len(f.pending))}, nil
}

func testProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		GroupID:         "g1",
		MemberID:        "m1",
		Channel:         "orders",
		KeyMissingSleep: time.Millisecond,
		BlockTimeout:    20 * time.Millisecond,
		BatchSize:       10,
	}
}

func TestChannelProcessorDeliversAndAcksInOrder(t *testing.T) {
	client := newFakeStreamClient()
	client.seed("a", "b", "c")

	var got []string
	var mu sync.Mutex
	handler := func(ctx context.Context, msg RedisMessage) error {
		mu.Lock()
		got = append(got, msg.Payload)
		mu.Unlock()
		return nil
	}

	p := NewChannelProcessor(client, testProcessorConfig(), handler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitForCondition(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})

	p.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if len(client.acked) != 3 {
		t.Errorf("expected 3 acks, got %d", len(client.acked))
	}
}

func TestChannelProcessorHandlerFailureLeavesRecordPending(t *testing.T) {
	client := newFakeStreamClient()
	client.seed("bad")

	handler := func(ctx context.Context, msg RedisMessage) error {
		return errors.New("boom")
	}

	p := NewChannelProcessor(client, testProcessorConfig(), handler, nil)
	err := p.Run(context.Background())

	var handlerErr *HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("expected *HandlerError, got %T: %v", err, err)
	}
	if len(client.acked) != 0 {
		t.Errorf("expected no acks after handler failure, got %d", len(client.acked))
	}
	if len(client.pending) != 1 {
		t.Errorf("expected record to remain pending, got %d pending", len(client.pending))
	}
}

func TestChannelProcessorBootstrapWaitsForStreamThenSucceeds(t *testing.T) {
	client := newFakeStreamClient()
	client.groupExistsAfter = 3 // fails twice, succeeds on the third attempt

	var processed int32
	handler := func(ctx context.Context, msg RedisMessage) error {
		processed++
		return nil
	}

	cfg := testProcessorConfig()
	cfg.KeyMissingSleep = time.Millisecond
	p := NewChannelProcessor(client, cfg, handler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitForCondition(t, time.Second, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.groupExists
	})

	p.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.groupCreateCalls < 3 {
		t.Errorf("expected at least 3 XGroupCreate attempts, got %d", client.groupCreateCalls)
	}
}

func TestChannelProcessorStopDuringBootstrapWaitIsBounded(t *testing.T) {
	client := newFakeStreamClient()
	client.groupExistsAfter = 1_000_000 // the stream never appears

	cfg := testProcessorConfig()
	cfg.KeyMissingSleep = 20 * time.Millisecond

	p := NewChannelProcessor(client, cfg, func(ctx context.Context, msg RedisMessage) error { return nil }, nil)

	// Background, uncancelable context: only Stop() (running=false) can
	// unwind the bootstrap retry loop, never ctx.
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	waitForCondition(t, time.Second, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.groupCreateCalls > 0
	})

	start := time.Now()
	p.Stop()
	elapsed := time.Since(start)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Stop() did not unblock a processor parked in the bootstrap wait")
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Stop took %v, expected bounded by one KeyMissingSleep interval", elapsed)
	}
}

func TestChannelProcessorBootstrapIdempotentWhenGroupAlreadyExists(t *testing.T) {
	client := newFakeStreamClient()
	client.groupExists = true

	p := NewChannelProcessor(client, testProcessorConfig(), func(ctx context.Context, msg RedisMessage) error { return nil }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	p.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestChannelProcessorStopLatencyBoundedByBlockTimeout(t *testing.T) {
	client := newFakeStreamClient()
	client.groupExists = true

	cfg := testProcessorConfig()
	cfg.BlockTimeout = 50 * time.Millisecond
	p := NewChannelProcessor(client, cfg, func(ctx context.Context, msg RedisMessage) error { return nil }, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	p.Stop()
	elapsed := time.Since(start)
	<-done

	if elapsed > 200*time.Millisecond {
		t.Errorf("Stop took %v, expected bounded by BlockTimeout", elapsed)
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
