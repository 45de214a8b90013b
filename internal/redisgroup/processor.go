package redisgroup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/relaydeck/streamgroup/internal/keys"
	"github.com/relaydeck/streamgroup/internal/logging"
)

// processorState names the phase a ChannelProcessor's run loop is in.
// It is exposed through State for diagnostics; nothing branches on it.
type processorState string

const (
	stateIdle            processorState = "idle"
	stateEnsuringGroup   processorState = "ensuring_group"
	stateDrainingPending processorState = "draining_pending"
	stateReading         processorState = "reading"
	stateTerminated      processorState = "terminated"
)

// HandlerError wraps a Handler failure with the record and channel it
// occurred on. A ChannelProcessor that observes one stops immediately,
// leaving the record in the consumer group's pending entries list.
type HandlerError struct {
	Channel  string
	RecordID string
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("redisgroup: handler failed on %s record %s: %v", e.Channel, e.RecordID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ProcessorStats is a snapshot of a ChannelProcessor's lifetime counters.
type ProcessorStats struct {
	Processed int64
	Failed    int64
}

// ProcessorConfig configures a ChannelProcessor.
type ProcessorConfig struct {
	GroupID         string
	MemberID        string
	Channel         string
	KeyMissingSleep time.Duration
	BlockTimeout    time.Duration
	BatchSize       int64
}

// ChannelProcessor owns the Redis Streams consumer-group read loop for one
// (subscriberId, channel) pair: it bootstraps the consumer group, drains
// this consumer's pending entries, then reads and hands off new entries to
// its Handler one at a time until stopped.
type ChannelProcessor struct {
	client  RedisStreamClient
	cfg     ProcessorConfig
	handler Handler

	logger    *zap.Logger
	lifecycle *logging.LifecycleLogger

	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	state atomic.Value // processorState

	processed atomic.Int64
	failed    atomic.Int64
}

// NewChannelProcessor constructs a processor for one channel. handler is
// invoked once per record, in order, never concurrently.
func NewChannelProcessor(client RedisStreamClient, cfg ProcessorConfig, handler Handler, logger *zap.Logger) *ChannelProcessor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	p := &ChannelProcessor{
		client:    client,
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		lifecycle: logging.NewLifecycleLogger(logger),
		done:      make(chan struct{}),
	}
	p.state.Store(stateIdle)
	return p
}

// State returns the processor's current phase, for tests and diagnostics.
func (p *ChannelProcessor) State() processorState {
	return p.state.Load().(processorState)
}

// Stats returns a snapshot of processed/failed record counts.
func (p *ChannelProcessor) Stats() ProcessorStats {
	return ProcessorStats{Processed: p.processed.Load(), Failed: p.failed.Load()}
}

// Run bootstraps the consumer group, drains this consumer's pending
// entries, then reads new entries until ctx is canceled, Stop is called,
// or the handler returns an error. It returns the terminal error, if any;
// a clean stop returns nil.
func (p *ChannelProcessor) Run(ctx context.Context) error {
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.state.Store(stateTerminated)
		close(p.done)
	}()

	p.lifecycle.Log(logging.Event{
		EventType: logging.EventProcessorStarted,
		GroupID:   p.cfg.GroupID,
		MemberID:  p.cfg.MemberID,
		Channel:   p.cfg.Channel,
		Outcome:   logging.OutcomeSuccess,
	})

	if err := p.ensureGroup(ctx); err != nil {
		p.lifecycle.Log(logging.Event{
			EventType: logging.EventProcessorFailed,
			GroupID:   p.cfg.GroupID,
			MemberID:  p.cfg.MemberID,
			Channel:   p.cfg.Channel,
			Outcome:   logging.OutcomeFailure,
			Reason:    err.Error(),
		})
		return err
	}

	if err := p.drainPending(ctx); err != nil {
		p.lifecycle.Log(logging.Event{
			EventType: logging.EventProcessorFailed,
			GroupID:   p.cfg.GroupID,
			MemberID:  p.cfg.MemberID,
			Channel:   p.cfg.Channel,
			Outcome:   logging.OutcomeFailure,
			Reason:    err.Error(),
		})
		return err
	}

	err := p.readLoop(ctx)
	p.lifecycle.Log(logging.Event{
		EventType: logging.EventProcessorStopped,
		GroupID:   p.cfg.GroupID,
		MemberID:  p.cfg.MemberID,
		Channel:   p.cfg.Channel,
		Outcome:   logging.OutcomeSuccess,
	})
	return err
}

// Stop requests the processor terminate and blocks until its run loop has
// exited. Because reads block on XREADGROUP up to BlockTimeout and are
// never forcibly interrupted, Stop can take up to that long to return.
func (p *ChannelProcessor) Stop() {
	p.stopOnce.Do(func() {
		p.running.Store(false)
	})
	<-p.done
}

// errStopped is a terminal (non-retryable) sentinel that unwinds the
// bootstrap retry loop as soon as Stop has cleared running, bounding
// Stop()'s latency here to at most one KeyMissingSleep interval.
var errStopped = errors.New("redisgroup: stopped during group bootstrap")

// ensureGroup creates the consumer group at id "0", retrying while the
// target stream does not exist yet. A group that already exists is treated
// as success, mirroring at-least-once semantics across restarts. The retry
// loop runs only while running is set, so Stop() can interrupt it.
func (p *ChannelProcessor) ensureGroup(ctx context.Context) error {
	p.state.Store(stateEnsuringGroup)
	stream := keys.ForChannel(p.cfg.Channel)

	b := retry.NewConstant(p.cfg.KeyMissingSleep)
	waited := false
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if !p.running.Load() {
			return errStopped
		}
		err := p.client.XGroupCreate(ctx, stream, p.cfg.GroupID, "0")
		if err == nil {
			return nil
		}
		if isGroupExistsError(err) {
			return nil
		}
		if isKeyMissingError(err) {
			if !waited {
				waited = true
				p.lifecycle.Log(logging.Event{
					EventType: logging.EventGroupBootstrapWait,
					GroupID:   p.cfg.GroupID,
					MemberID:  p.cfg.MemberID,
					Channel:   p.cfg.Channel,
				})
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, errStopped) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redisgroup: bootstrap group %s on %s: %w", p.cfg.GroupID, stream, err)
	}

	p.lifecycle.Log(logging.Event{
		EventType: logging.EventGroupBootstrapped,
		GroupID:   p.cfg.GroupID,
		MemberID:  p.cfg.MemberID,
		Channel:   p.cfg.Channel,
		Outcome:   logging.OutcomeSuccess,
	})
	return nil
}

// drainPending reads this consumer's own pending entries list (id "0")
// until exhausted, before any new entry is read. This ordering is the
// core of the at-least-once guarantee across restarts: a crash between
// delivery and acknowledgment leaves a record in the PEL, and that record
// is redelivered before anything new.
func (p *ChannelProcessor) drainPending(ctx context.Context) error {
	p.state.Store(stateDrainingPending)
	stream := keys.ForChannel(p.cfg.Channel)

	for {
		if !p.running.Load() {
			return nil
		}
		streams, err := p.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.cfg.GroupID,
			Consumer: p.cfg.MemberID,
			Streams:  []string{stream, "0"},
			Count:    p.cfg.BatchSize,
		})
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("redisgroup: drain pending on %s: %w", stream, err)
		}

		n := recordCount(streams)
		if n == 0 {
			return nil
		}
		if err := p.processRecords(ctx, streams); err != nil {
			return err
		}
	}
}

// readLoop blocks on new entries (id ">") until ctx is canceled, Stop is
// called, or a handler invocation fails. There is no forced interruption
// of an in-flight XREADGROUP call: Stop lets the current block complete.
func (p *ChannelProcessor) readLoop(ctx context.Context) error {
	p.state.Store(stateReading)
	stream := keys.ForChannel(p.cfg.Channel)

	for p.running.Load() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		streams, err := p.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.cfg.GroupID,
			Consumer: p.cfg.MemberID,
			Streams:  []string{stream, ">"},
			Count:    p.cfg.BatchSize,
			Block:    p.cfg.BlockTimeout,
		})
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("redisgroup: read %s: %w", stream, err)
		}

		if err := p.processRecords(ctx, streams); err != nil {
			return err
		}
	}
	return nil
}

// processRecords hands each record to the handler in order and
// acknowledges it on success. A handler error stops the processor without
// acknowledging, leaving the record pending.
func (p *ChannelProcessor) processRecords(ctx context.Context, streams []redis.XStream) error {
	stream := keys.ForChannel(p.cfg.Channel)

	for _, s := range streams {
		for _, m := range s.Messages {
			msg := RedisMessage{Payload: payloadOf(m), RecordID: m.ID}

			if err := p.handler(ctx, msg); err != nil {
				p.failed.Add(1)
				p.lifecycle.Log(logging.Event{
					EventType: logging.EventHandlerFailed,
					GroupID:   p.cfg.GroupID,
					MemberID:  p.cfg.MemberID,
					Channel:   p.cfg.Channel,
					RecordID:  m.ID,
					Outcome:   logging.OutcomeFailure,
					Reason:    err.Error(),
				})
				return &HandlerError{Channel: p.cfg.Channel, RecordID: m.ID, Err: err}
			}

			if _, err := p.client.XAck(ctx, stream, p.cfg.GroupID, m.ID); err != nil {
				return fmt.Errorf("redisgroup: ack %s on %s: %w", m.ID, stream, err)
			}
			p.processed.Add(1)
		}
	}
	return nil
}

// payloadOf extracts the "payload" field written by Publish. Entries
// without it decode to an empty payload rather than erroring, since a
// foreign producer's record shape is not this package's concern.
func payloadOf(m redis.XMessage) string {
	v, ok := m.Values[payloadField]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordCount(streams []redis.XStream) int {
	n := 0
	for _, s := range streams {
		n += len(s.Messages)
	}
	return n
}

// isGroupExistsError reports whether err is go-redis's BUSYGROUP response
// to XGROUP CREATE on an already-existing group. Matched by substring per
// the error string contract (spec §6): the surrounding message is free to
// vary across Redis versions.
func isGroupExistsError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Consumer Group name already exists")
}

// isKeyMissingError reports whether err is XGROUP CREATE's response when
// the target stream does not exist and MKSTREAM was not given. Matched by
// substring per the error string contract (spec §6).
func isKeyMissingError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "ERR The XGROUP subcommand requires the key to exist")
}
