package sentry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	auth "github.com/goliatone/go-portal-auth"
	authsentry "github.com/goliatone/go-portal-auth/adapters/sentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	events []*sentrygo.Event
}

func (c *capture) beforeSend(event *sentrygo.Event, _ *sentrygo.EventHint) *sentrygo.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func newHub(t *testing.T) (*sentrygo.Hub, *capture) {
	t.Helper()
	c := &capture{}
	client, err := sentrygo.NewClient(sentrygo.ClientOptions{
		SampleRate: 1.0,
		BeforeSend: c.beforeSend,
	})
	require.NoError(t, err)
	return sentrygo.NewHub(client, sentrygo.NewScope()), c
}

func TestSink_CapturesLockouts(t *testing.T) {
	hub, c := newHub(t)
	sink := authsentry.NewSink(hub)
	ctx := context.Background()
	now := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventLoginFailure,
		Subject:    "alice",
		Reason:     "bad credentials",
		Metadata:   map[string]any{"attempts": 5},
		OccurredAt: now,
	}))
	assert.Empty(t, c.events, "failures are breadcrumbs only")

	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventLoginLocked,
		Subject:    "alice",
		Reason:     "locked",
		OccurredAt: now.Add(time.Second),
	}))

	require.Len(t, c.events, 1)
	event := c.events[0]
	assert.Equal(t, string(auth.ActivityEventLoginLocked), event.Message)
	assert.Equal(t, sentrygo.LevelWarning, event.Level)
	assert.Equal(t, string(auth.ActivityEventLoginLocked), event.Tags["auth.event"])
	assert.Equal(t, "locked", event.Tags["auth.reason"])
	require.Len(t, event.Breadcrumbs, 2)
	assert.Equal(t, string(auth.ActivityEventLoginFailure), event.Breadcrumbs[0].Message)
	assert.Equal(t, 5, event.Breadcrumbs[0].Data["attempts"])
}

func TestSink_CustomCaptured(t *testing.T) {
	hub, c := newHub(t)
	sink := authsentry.NewSink(hub, authsentry.WithCaptured(map[auth.ActivityEventType]sentrygo.Level{
		auth.ActivityEventPasswordResetSuccess: sentrygo.LevelInfo,
	}))

	require.NoError(t, sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLoginLocked,
		Subject:   "alice",
	}))
	require.NoError(t, sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventPasswordResetSuccess,
		Subject:   "carol@example.com",
	}))

	require.Len(t, c.events, 1)
	assert.Equal(t, string(auth.ActivityEventPasswordResetSuccess), c.events[0].Message)
}

func TestInit_EmptyDSN(t *testing.T) {
	assert.NoError(t, authsentry.Init("", "test"))
}
