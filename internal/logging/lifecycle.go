package logging

import (
	"time"

	"go.uber.org/zap"
)

// EventType names a lifecycle event emitted by the consumer runtime.
type EventType string

const (
	EventAssignmentChanged  EventType = "assignment_changed"
	EventGroupBootstrapped  EventType = "group_bootstrapped"
	EventGroupBootstrapWait EventType = "group_bootstrap_wait"
	EventProcessorStarted   EventType = "processor_started"
	EventProcessorStopped   EventType = "processor_stopped"
	EventProcessorFailed    EventType = "processor_failed"
	EventHandlerFailed      EventType = "handler_failed"
)

// Outcome classifies how a lifecycle event concluded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one structured lifecycle record: a group bootstrap, an
// assignment change, a processor starting, stopping, or failing.
type Event struct {
	EventType EventType
	GroupID   string
	MemberID  string
	Channel   string
	RecordID  string
	Outcome   Outcome
	Reason    string
	Timestamp time.Time
}

// LifecycleLogger emits Events as structured zap log lines.
type LifecycleLogger struct {
	logger *zap.Logger
}

// NewLifecycleLogger wraps baseLogger for lifecycle event logging.
func NewLifecycleLogger(baseLogger *zap.Logger) *LifecycleLogger {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	return &LifecycleLogger{logger: baseLogger}
}

// Log records one lifecycle event.
func (l *LifecycleLogger) Log(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String(FieldEventType, string(e.EventType)),
		zap.Time("timestamp", e.Timestamp),
	}
	if e.GroupID != "" {
		fields = append(fields, zap.String(FieldGroupID, e.GroupID))
	}
	if e.MemberID != "" {
		fields = append(fields, zap.String(FieldMemberID, e.MemberID))
	}
	if e.Channel != "" {
		fields = append(fields, zap.String(FieldChannel, e.Channel))
	}
	if e.RecordID != "" {
		fields = append(fields, zap.String(FieldRecordID, e.RecordID))
	}
	if e.Outcome != "" {
		fields = append(fields, zap.String(FieldOutcome, string(e.Outcome)))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String(FieldReason, e.Reason))
	}

	if e.Outcome == OutcomeFailure {
		l.logger.Warn("lifecycle event", fields...)
		return
	}
	l.logger.Info("lifecycle event", fields...)
}
