package redisgroup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relaydeck/streamgroup/internal/assignment"
	"github.com/relaydeck/streamgroup/internal/logging"
)

// HandlerFactory builds the Handler a newly started channel processor
// should use. It is called once per channel, at the moment the
// coordinator decides to start a processor for it, so a caller can hand
// back a channel-specific handler closure.
type HandlerFactory func(channel string) Handler

// CoordinatorConfig configures a SubscriptionCoordinator.
type CoordinatorConfig struct {
	GroupID         string
	MemberID        string
	KeyMissingSleep time.Duration
	BlockTimeout    time.Duration
	BatchSize       int64
	ListenerConfig  ListenerConfig
}

// SubscriptionCoordinator composes an AssignmentListener and a dynamic
// pool of ChannelProcessors: it reacts to assignment changes by starting
// processors for newly assigned channels and stopping ones for removed
// channels, leaving unaffected processors running untouched.
type SubscriptionCoordinator struct {
	client  RedisStreamClient
	store   assignment.Store
	cfg     CoordinatorConfig
	factory HandlerFactory
	logger  *zap.Logger

	lifecycle *logging.LifecycleLogger

	mu         sync.Mutex
	processors map[string]*ChannelProcessor

	eg       *errgroup.Group
	runCtx   context.Context
	listener *AssignmentListener
}

// NewSubscriptionCoordinator builds a coordinator. Run starts it.
func NewSubscriptionCoordinator(client RedisStreamClient, store assignment.Store, cfg CoordinatorConfig, factory HandlerFactory, logger *zap.Logger) *SubscriptionCoordinator {
	return &SubscriptionCoordinator{
		client:     client,
		store:      store,
		cfg:        cfg,
		factory:    factory,
		logger:     logger,
		lifecycle:  logging.NewLifecycleLogger(logger),
		processors: make(map[string]*ChannelProcessor),
	}
}

// Run builds the assignment listener (whose first poll happens
// synchronously, so the initial assignment is already applied once this
// returns that far), then blocks running the listener's poll loop until
// ctx is canceled or Stop is called. It returns once every channel
// processor it started has stopped.
func (c *SubscriptionCoordinator) Run(ctx context.Context) error {
	// A plain errgroup.Group, not errgroup.WithContext: processors run on
	// ctx directly so that one channel's handler failure cannot cancel
	// its siblings' read loops the way a shared derived context would.
	c.eg = &errgroup.Group{}
	c.runCtx = ctx

	listener, err := NewAssignmentListener(ctx, c.store, c.cfg.ListenerConfig, c.logger, c.reconcile, c.stopAll)
	if err != nil {
		return err
	}
	c.listener = listener

	listener.Run(ctx)
	c.stopAll()
	return c.eg.Wait()
}

// Stop ends the listener's poll loop; Run then stops every running
// processor and returns once they have all exited.
func (c *SubscriptionCoordinator) Stop() {
	if c.listener != nil {
		c.listener.Stop()
	}
}

// Stats returns a snapshot of every currently running channel processor's
// counters, keyed by channel name.
func (c *SubscriptionCoordinator) Stats() map[string]ProcessorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]ProcessorStats, len(c.processors))
	for ch, p := range c.processors {
		out[ch] = p.Stats()
	}
	return out
}

// reconcile is the AssignmentListener's ChangeFunc: it diffs old against
// current and starts/stops processors accordingly. Channels present in
// both are left running untouched, even if their partition count changed
// — spec scope is channel membership, not partition-triggered restarts.
func (c *SubscriptionCoordinator) reconcile(old, current assignment.Assignment) {
	oldSet := old.ChannelSet()
	newSet := current.ChannelSet()

	for ch := range newSet {
		if _, ok := oldSet[ch]; !ok {
			c.startChannel(ch)
		}
	}
	for ch := range oldSet {
		if _, ok := newSet[ch]; !ok {
			c.stopChannel(ch)
		}
	}
}

func (c *SubscriptionCoordinator) startChannel(channel string) {
	c.mu.Lock()
	if _, exists := c.processors[channel]; exists {
		c.mu.Unlock()
		return
	}

	p := NewChannelProcessor(c.client, ProcessorConfig{
		GroupID:         c.cfg.GroupID,
		MemberID:        c.cfg.MemberID,
		Channel:         channel,
		KeyMissingSleep: c.cfg.KeyMissingSleep,
		BlockTimeout:    c.cfg.BlockTimeout,
		BatchSize:       c.cfg.BatchSize,
	}, c.factory(channel), c.logger)
	c.processors[channel] = p
	c.mu.Unlock()

	c.eg.Go(func() error {
		// p.Run uses runCtx, not an errgroup-derived context: one channel's
		// handler failure must not cancel its siblings' read loops.
		err := p.Run(c.runCtx)
		c.mu.Lock()
		delete(c.processors, channel)
		c.mu.Unlock()
		return err
	})
}

func (c *SubscriptionCoordinator) stopChannel(channel string) {
	c.mu.Lock()
	p, exists := c.processors[channel]
	c.mu.Unlock()
	if !exists {
		return
	}
	p.Stop()
}

// stopAll stops every currently running processor. It is the ExpiryPolicy
// hook and also runs at listener shutdown.
func (c *SubscriptionCoordinator) stopAll() {
	c.mu.Lock()
	channels := make([]string, 0, len(c.processors))
	for ch := range c.processors {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		c.stopChannel(ch)
	}
}
