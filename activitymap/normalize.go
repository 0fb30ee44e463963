// Package activitymap turns auth activity events into a flat audit record
// and provides a sink that writes those records to a logger.
package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-portal-auth"
)

const (
	// MetadataKeyReason stores ActivityEvent.Reason
	MetadataKeyReason = "reason"
	// MetadataKeyOutcome is "success" or "failure", derived from the event type
	MetadataKeyOutcome = "outcome"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "anonymous"
)

var failureEvents = map[auth.ActivityEventType]bool{
	auth.ActivityEventLoginFailure:          true,
	auth.ActivityEventLoginLocked:           true,
	auth.ActivityEventLoginInactive:         true,
	auth.ActivityEventPasswordResetDelivery: true,
}

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an auth.ActivityEvent into the normalized shape.
// The event subject (username or email) becomes the actor.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Subject),
		options.actorFallback,
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event has no subject.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the time used for events without a timestamp
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// Sink returns an auth.ActivitySink logging every event as a normalized record
func Sink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		record := Normalize(event, opts...)
		args := []any{
			"actor_id", record.ActorID,
			"verb", record.Verb,
			"object_type", record.ObjectType,
			"channel", record.Channel,
			"occurred_at", record.OccurredAt,
		}
		if len(record.Metadata) > 0 {
			args = append(args, "metadata", record.Metadata)
		}

		if record.Metadata[MetadataKeyOutcome] == "failure" {
			logger.Warn("auth activity", args...)
		} else {
			logger.Info("auth activity", args...)
		}
		return nil
	})
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+2)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if reason := strings.TrimSpace(event.Reason); reason != "" {
		if _, exists := metadata[MetadataKeyReason]; !exists {
			metadata[MetadataKeyReason] = reason
		}
	}

	outcome := "success"
	if failureEvents[event.EventType] {
		outcome = "failure"
	}
	metadata[MetadataKeyOutcome] = outcome

	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
