package buildtracker_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-buildtracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversInOrder(t *testing.T) {
	b := buildtracker.NewBroadcaster()
	var got []string

	b.OnSessionChange(func(e buildtracker.SessionEvent) { got = append(got, "first:"+string(e.Type)) })
	b.OnSessionChange(func(e buildtracker.SessionEvent) { got = append(got, "second:"+string(e.Type)) })

	err := b.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionSignedIn, &buildtracker.Session{UserID: "u1"}))

	require.NoError(t, err)
	assert.Equal(t, []string{"first:SIGNED_IN", "second:SIGNED_IN"}, got)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := buildtracker.NewBroadcaster()
	calls := 0

	unsubscribe := b.OnSessionChange(func(buildtracker.SessionEvent) { calls++ })
	require.Equal(t, 1, b.Len())

	unsubscribe()
	unsubscribe()

	assert.Equal(t, 0, b.Len())
	require.NoError(t, b.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionSignedOut, nil)))
	assert.Zero(t, calls)
}

func TestBroadcaster_PanickingSubscriber(t *testing.T) {
	b := buildtracker.NewBroadcaster()
	delivered := false

	b.OnSessionChange(func(buildtracker.SessionEvent) { panic("subscriber failure") })
	b.OnSessionChange(func(buildtracker.SessionEvent) { delivered = true })

	require.NotPanics(t, func() {
		_ = b.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionTokenRefreshed, nil))
	})
	assert.True(t, delivered)
}

func TestBroadcaster_CancelledContext(t *testing.T) {
	b := buildtracker.NewBroadcaster()
	calls := 0
	b.OnSessionChange(func(buildtracker.SessionEvent) { calls++ })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Publish(ctx, buildtracker.NewSessionEvent(buildtracker.SessionSignedIn, nil))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestBroadcaster_NilSubscriber(t *testing.T) {
	b := buildtracker.NewBroadcaster()

	unsubscribe := b.OnSessionChange(nil)

	assert.NotNil(t, unsubscribe)
	assert.Equal(t, 0, b.Len())
}
