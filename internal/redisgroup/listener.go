package redisgroup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaydeck/streamgroup/internal/assignment"
	"github.com/relaydeck/streamgroup/internal/logging"
)

// ChangeFunc is invoked whenever the assignment listener observes a new
// assignment value, including the first poll. old is the zero Assignment
// on that first call.
type ChangeFunc func(old, current assignment.Assignment)

// ExpiryPolicy controls what happens when an assignment listener observes
// its key going from present to absent (expired TTL, or deleted).
type ExpiryPolicy int

const (
	// ExpiryPolicyKeepRunning leaves any already-started channel
	// processors running. This is the source behavior: the listener
	// never fires a change callback on a present-to-absent transition.
	ExpiryPolicyKeepRunning ExpiryPolicy = iota
	// ExpiryPolicyStopAll invokes onExpire, letting the coordinator tear
	// down every running processor for this member.
	ExpiryPolicyStopAll
)

// ListenerConfig configures an AssignmentListener.
type ListenerConfig struct {
	GroupID      string
	MemberID     string
	Interval     time.Duration
	ExpiryPolicy ExpiryPolicy
}

// AssignmentListener periodically polls a member's assignment document and
// reports changes. The first poll happens synchronously in the
// constructor, so a caller's first OnChange callback has already fired by
// the time NewAssignmentListener returns.
type AssignmentListener struct {
	store     assignment.Store
	cfg       ListenerConfig
	logger    *zap.Logger
	lifecycle *logging.LifecycleLogger

	onChange ChangeFunc
	onExpire func()

	mu      sync.Mutex
	last    assignment.Assignment
	present bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewAssignmentListener builds a listener and performs its first poll
// synchronously, invoking onChange if an assignment is present. onExpire
// may be nil; it is only called when cfg.ExpiryPolicy is
// ExpiryPolicyStopAll and the key transitions from present to absent.
func NewAssignmentListener(ctx context.Context, store assignment.Store, cfg ListenerConfig, logger *zap.Logger, onChange ChangeFunc, onExpire func()) (*AssignmentListener, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("redisgroup: listener interval must be positive")
	}
	l := &AssignmentListener{
		store:     store,
		cfg:       cfg,
		logger:    logger,
		lifecycle: logging.NewLifecycleLogger(logger),
		onChange:  onChange,
		onExpire:  onExpire,
		done:      make(chan struct{}),
	}
	if err := l.poll(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Run polls on cfg.Interval until ctx is canceled or Stop is called.
func (l *AssignmentListener) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.poll(ctx); err != nil && l.logger != nil {
				l.logger.Warn("assignment poll failed", zap.Error(err))
			}
		}
	}
}

// Stop ends the poll loop. It does not cancel an in-flight poll.
func (l *AssignmentListener) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// Last returns the most recently observed assignment and whether the key
// was present at that poll.
func (l *AssignmentListener) Last() (assignment.Assignment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.present
}

func (l *AssignmentListener) poll(ctx context.Context) error {
	current, ok, err := l.store.Read(ctx, l.cfg.GroupID, l.cfg.MemberID)
	if err != nil {
		return fmt.Errorf("redisgroup: assignment poll: %w", err)
	}

	l.mu.Lock()
	wasPresent := l.present
	previous := l.last

	if !ok {
		l.present = false
		l.mu.Unlock()
		if wasPresent && l.cfg.ExpiryPolicy == ExpiryPolicyStopAll && l.onExpire != nil {
			l.onExpire()
		}
		return nil
	}

	changed := !wasPresent || !previous.Equal(current)
	l.last = current
	l.present = true
	l.mu.Unlock()

	if changed {
		l.lifecycle.Log(logging.Event{
			EventType: logging.EventAssignmentChanged,
			GroupID:   l.cfg.GroupID,
			MemberID:  l.cfg.MemberID,
			Outcome:   logging.OutcomeSuccess,
		})
		if l.onChange != nil {
			l.onChange(previous, current)
		}
	}
	return nil
}
