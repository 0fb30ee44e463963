// Package sentry reports auth activity to Sentry. Every event becomes a
// breadcrumb and security relevant events are captured as messages.
package sentry

import (
	"context"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	auth "github.com/goliatone/go-portal-auth"
)

// DefaultCaptured lists the events reported as sentry messages
var DefaultCaptured = map[auth.ActivityEventType]sentrygo.Level{
	auth.ActivityEventLoginLocked:           sentrygo.LevelWarning,
	auth.ActivityEventPasswordResetDelivery: sentrygo.LevelError,
}

// Sink implements auth.ActivitySink
type Sink struct {
	hub      *sentrygo.Hub
	captured map[auth.ActivityEventType]sentrygo.Level
}

var _ auth.ActivitySink = (*Sink)(nil)

type Option func(*Sink)

// WithCaptured replaces the events reported as messages
func WithCaptured(captured map[auth.ActivityEventType]sentrygo.Level) Option {
	return func(s *Sink) {
		if captured != nil {
			s.captured = captured
		}
	}
}

// NewSink creates a sink reporting to hub, or the current hub when nil
func NewSink(hub *sentrygo.Hub, opts ...Option) *Sink {
	if hub == nil {
		hub = sentrygo.CurrentHub()
	}
	s := &Sink{hub: hub, captured: DefaultCaptured}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements auth.ActivitySink
func (s *Sink) Record(ctx context.Context, event auth.ActivityEvent) error {
	hub := s.hub
	if ctxHub := sentrygo.GetHubFromContext(ctx); ctxHub != nil {
		hub = ctxHub
	}

	data := make(map[string]any, len(event.Metadata)+2)
	for k, v := range event.Metadata {
		data[k] = v
	}
	data["subject"] = event.Subject
	if event.Reason != "" {
		data["reason"] = event.Reason
	}

	level, capture := s.captured[event.EventType]
	if !capture {
		level = sentrygo.LevelInfo
	}

	hub.AddBreadcrumb(&sentrygo.Breadcrumb{
		Type:      "default",
		Category:  "auth",
		Message:   string(event.EventType),
		Data:      data,
		Level:     level,
		Timestamp: event.OccurredAt,
	}, nil)

	if !capture {
		return nil
	}

	hub.WithScope(func(scope *sentrygo.Scope) {
		scope.SetLevel(level)
		scope.SetTag("auth.event", string(event.EventType))
		if event.Reason != "" {
			scope.SetTag("auth.reason", event.Reason)
		}
		scope.SetContext("auth", sentrygo.Context(data))
		hub.CaptureMessage(string(event.EventType))
	})

	return nil
}

// Init configures the global client. An empty dsn leaves sentry disabled.
func Init(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentrygo.Init(sentrygo.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// Flush waits for buffered events to be sent
func Flush() {
	sentrygo.Flush(2 * time.Second)
}
