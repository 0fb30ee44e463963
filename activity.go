package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventLoginLocked           ActivityEventType = "auth.login.locked"
	ActivityEventLoginInactive         ActivityEventType = "auth.login.inactive"
	ActivityEventPasswordResetRequest  ActivityEventType = "auth.password.reset.requested"
	ActivityEventPasswordResetDelivery ActivityEventType = "auth.password.reset.delivery_failed"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password.reset"
)

// ActivityEvent captures audit-friendly information about an action.
// Subject is the username or email the action targeted.
type ActivityEvent struct {
	EventType  ActivityEventType
	Subject    string
	Reason     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity sends event to sink, logging instead of failing the caller
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}

// LoginRecorder stores the time of a successful login
type LoginRecorder interface {
	TrackSuccessfulLogin(ctx context.Context, username string) error
}

// TrackLogins returns a sink that stamps successful logins through recorder
func TrackLogins(recorder LoginRecorder) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		if event.EventType != ActivityEventLoginSuccess {
			return nil
		}
		return recorder.TrackSuccessfulLogin(ctx, event.Subject)
	})
}

// MultiActivitySink fans an event out to every sink, returning the
// first error after all sinks ran
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		var first error
		for _, sink := range sinks {
			if sink == nil {
				continue
			}
			if err := sink.Record(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
