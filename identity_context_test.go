package buildtracker_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-buildtracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityContext_InitialIdentity(t *testing.T) {
	initial := authenticated("u1", "jane@x.com", "Janey")

	ic := buildtracker.NewIdentityContext(staticResolver{}, nil, &initial)
	defer ic.Close()

	assert.False(t, ic.IsLoading())
	assert.True(t, ic.Identity().Equal(initial))
}

func TestIdentityContext_LoadingUntilFirstResolution(t *testing.T) {
	source := &stubSource{}
	ic := buildtracker.NewIdentityContext(newResolver(source, nil), nil, nil)
	defer ic.Close()

	assert.True(t, ic.IsLoading())

	require.NoError(t, ic.Refresh(context.Background()))

	assert.False(t, ic.IsLoading(), "a no session result still completes loading")
	assert.False(t, ic.Identity().IsAuthenticated)

	source.set(&buildtracker.Session{UserID: "u1", Email: "jane@x.com"})
	require.NoError(t, ic.Refresh(context.Background()))

	assert.False(t, ic.IsLoading())
	assert.Equal(t, "jane", ic.Identity().Name())
}

func TestIdentityContext_CancelledRefreshIsDiscarded(t *testing.T) {
	initial := buildtracker.Unauthenticated()
	resolver := staticResolver{authenticated("u1", "jane@x.com", "")}
	ic := buildtracker.NewIdentityContext(resolver, nil, &initial)
	defer ic.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ic.Refresh(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ic.Identity().IsAuthenticated)
}

func TestIdentityContext_SessionEvents(t *testing.T) {
	source := &stubSource{}
	notifier := buildtracker.NewBroadcaster()
	resolver := newResolver(source, profileOf(&buildtracker.Profile{ID: "u1", DisplayName: "Janey"}))

	ic := buildtracker.NewIdentityContext(resolver, notifier, nil)
	defer ic.Close()

	var states []buildtracker.IdentityState
	ic.Subscribe(func(s buildtracker.IdentityState) { states = append(states, s) })

	session := &buildtracker.Session{UserID: "u1", Email: "jane@x.com"}
	source.set(session)
	require.NoError(t, notifier.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionSignedIn, session)))

	require.Len(t, states, 1)
	assert.False(t, states[0].IsLoading)
	assert.Equal(t, "Janey", states[0].Identity.Name())

	source.set(nil)
	require.NoError(t, notifier.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionSignedOut, nil)))

	require.Len(t, states, 2)
	assert.False(t, states[1].Identity.IsAuthenticated)
	assert.False(t, states[1].IsLoading)
}

func TestIdentityContext_MinimalEventResolution(t *testing.T) {
	initial := authenticated("u1", "jane@x.com", "Janey")
	calls := 0
	resolver := resolverFunc(func(ctx context.Context) buildtracker.Identity {
		calls++
		return buildtracker.Unauthenticated()
	})
	notifier := buildtracker.NewBroadcaster()

	ic := buildtracker.NewIdentityContext(resolver, notifier, &initial, buildtracker.WithMinimalEventResolution())
	defer ic.Close()

	refreshed := &buildtracker.Session{UserID: "u1", Email: "jane@x.com"}
	require.NoError(t, notifier.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionTokenRefreshed, refreshed)))

	assert.Zero(t, calls, "minimal resolution uses the event session")
	assert.Equal(t, "Janey", ic.Identity().Name(), "display name is kept for the same user")

	other := &buildtracker.Session{UserID: "u2", Email: "bob@x.com"}
	require.NoError(t, notifier.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionSignedIn, other)))

	assert.Equal(t, "u2", ic.Identity().UserID())
	assert.Equal(t, "bob", ic.Identity().Name())
}

func TestIdentityContext_CloseUnsubscribes(t *testing.T) {
	notifier := buildtracker.NewBroadcaster()
	initial := authenticated("u1", "jane@x.com", "")

	ic := buildtracker.NewIdentityContext(staticResolver{}, notifier, &initial)
	require.Equal(t, 1, notifier.Len())

	notified := 0
	ic.Subscribe(func(buildtracker.IdentityState) { notified++ })

	ic.Close()
	ic.Close()

	assert.Equal(t, 0, notifier.Len())
	require.NoError(t, notifier.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionSignedOut, nil)))
	assert.Zero(t, notified)
	assert.True(t, ic.Identity().IsAuthenticated, "a closed context keeps its last identity")
}

func TestIdentityContext_SubscriberPanic(t *testing.T) {
	ic := buildtracker.NewIdentityContext(staticResolver{authenticated("u1", "", "")}, nil, nil)
	defer ic.Close()

	delivered := false
	ic.Subscribe(func(buildtracker.IdentityState) { panic("render failed") })
	ic.Subscribe(func(buildtracker.IdentityState) { delivered = true })

	require.NotPanics(t, func() {
		require.NoError(t, ic.Refresh(context.Background()))
	})
	assert.True(t, delivered)
}

func TestIdentityContext_Unsubscribe(t *testing.T) {
	ic := buildtracker.NewIdentityContext(staticResolver{}, nil, nil)
	defer ic.Close()

	calls := 0
	unsubscribe := ic.Subscribe(func(buildtracker.IdentityState) { calls++ })
	unsubscribe()

	require.NoError(t, ic.Refresh(context.Background()))
	assert.Zero(t, calls)
}

func TestIdentityContext_SignOutWinsOverInFlightRefresh(t *testing.T) {
	initial := authenticated("u1", "jane@x.com", "Janey")
	entered := make(chan struct{})
	release := make(chan struct{})
	resolver := resolverFunc(func(ctx context.Context) buildtracker.Identity {
		close(entered)
		<-release
		return authenticated("u1", "jane@x.com", "Janey")
	})
	notifier := buildtracker.NewBroadcaster()

	ic := buildtracker.NewIdentityContext(resolver, notifier, &initial)
	defer ic.Close()

	done := make(chan error, 1)
	go func() {
		done <- ic.Refresh(context.Background())
	}()

	<-entered
	require.NoError(t, notifier.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionSignedOut, nil)))
	assert.False(t, ic.Identity().IsAuthenticated)

	close(release)
	require.NoError(t, <-done)

	assert.False(t, ic.Identity().IsAuthenticated, "a resolution started before the sign out is discarded")
	assert.False(t, ic.IsLoading())
}

func TestIdentityContext_RefreshAfterSignOutApplies(t *testing.T) {
	initial := buildtracker.Unauthenticated()
	notifier := buildtracker.NewBroadcaster()
	ic := buildtracker.NewIdentityContext(staticResolver{authenticated("u1", "jane@x.com", "")}, notifier, &initial)
	defer ic.Close()

	require.NoError(t, notifier.Publish(context.Background(), buildtracker.NewSessionEvent(buildtracker.SessionSignedOut, nil)))
	require.NoError(t, ic.Refresh(context.Background()))

	assert.True(t, ic.Identity().IsAuthenticated)
}

type resolverFunc func(ctx context.Context) buildtracker.Identity

func (f resolverFunc) ResolveIdentity(ctx context.Context) buildtracker.Identity {
	return f(ctx)
}
