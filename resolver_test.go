package buildtracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-buildtracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentity_NoSession(t *testing.T) {
	profileCalls := 0
	profiles := profileFinderFunc(func(ctx context.Context, userID string) (*buildtracker.Profile, error) {
		profileCalls++
		return nil, nil
	})

	identity := newResolver(&stubSource{}, profiles).ResolveIdentity(context.Background())

	assert.False(t, identity.IsAuthenticated)
	assert.Nil(t, identity.ID)
	assert.Zero(t, profileCalls, "profile lookup must not run without a session")
}

func TestResolveIdentity_SessionTransportFailure(t *testing.T) {
	source := &stubSource{err: errors.New("dial tcp: connection refused")}

	var identity buildtracker.Identity
	require.NotPanics(t, func() {
		identity = newResolver(source, nil).ResolveIdentity(context.Background())
	})

	assert.True(t, identity.Equal(buildtracker.Unauthenticated()))
}

func TestResolveIdentity_SessionSourcePanics(t *testing.T) {
	source := &stubSource{panics: true}

	var identity buildtracker.Identity
	require.NotPanics(t, func() {
		identity = newResolver(source, nil).ResolveIdentity(context.Background())
	})

	assert.False(t, identity.IsAuthenticated)
}

func TestResolveIdentity_NoProfileFallsBackToEmail(t *testing.T) {
	source := &stubSource{session: &buildtracker.Session{UserID: "u1", Email: "jane@x.com"}}

	identity := newResolver(source, profileOf(nil)).ResolveIdentity(context.Background())

	require.True(t, identity.IsAuthenticated)
	assert.Equal(t, "u1", identity.UserID())
	assert.Equal(t, "jane@x.com", identity.EmailAddress())
	assert.Equal(t, "jane", identity.Name())
}

func TestResolveIdentity_ProfileDisplayNameWins(t *testing.T) {
	source := &stubSource{session: &buildtracker.Session{
		UserID:   "u1",
		Email:    "jane@x.com",
		Metadata: map[string]any{"full_name": "Jane From Metadata"},
	}}
	profiles := profileOf(&buildtracker.Profile{ID: "u1", DisplayName: "Janey"})

	identity := newResolver(source, profiles).ResolveIdentity(context.Background())

	assert.Equal(t, "Janey", identity.Name())
}

func TestResolveIdentity_ProfileFailureIsSwallowed(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		profiles buildtracker.ProfileFinder
		expected string
	}{
		{
			name:     "transport error uses metadata",
			metadata: map[string]any{"full_name": "Jane Doe"},
			profiles: profileFinderFunc(func(ctx context.Context, userID string) (*buildtracker.Profile, error) {
				return nil, errors.New("profile store unreachable")
			}),
			expected: "Jane Doe",
		},
		{
			name: "transport error uses email",
			profiles: profileFinderFunc(func(ctx context.Context, userID string) (*buildtracker.Profile, error) {
				return nil, errors.New("profile store unreachable")
			}),
			expected: "jane",
		},
		{
			name: "panicking lookup uses email",
			profiles: profileFinderFunc(func(ctx context.Context, userID string) (*buildtracker.Profile, error) {
				panic("boom")
			}),
			expected: "jane",
		},
		{
			name:     "nil profile finder",
			expected: "jane",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &stubSource{session: &buildtracker.Session{UserID: "u1", Email: "jane@x.com", Metadata: tt.metadata}}

			identity := newResolver(source, tt.profiles).ResolveIdentity(context.Background())

			require.True(t, identity.IsAuthenticated)
			require.NotNil(t, identity.DisplayName)
			assert.Equal(t, tt.expected, *identity.DisplayName)
		})
	}
}

func TestResolveIdentity_ExpiredSession(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	source := &stubSource{session: &buildtracker.Session{UserID: "u1", Email: "jane@x.com", ExpiresAt: &past}}

	identity := newResolver(source, nil).ResolveIdentity(context.Background())

	assert.False(t, identity.IsAuthenticated)
}

func TestResolveIdentity_CancelledContext(t *testing.T) {
	source := &stubSource{session: &buildtracker.Session{UserID: "u1", Email: "jane@x.com"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	identity := newResolver(source, nil).ResolveIdentity(ctx)

	assert.False(t, identity.IsAuthenticated)
	assert.Zero(t, source.calls)
}

func TestResolveIdentity_Idempotent(t *testing.T) {
	source := &stubSource{session: &buildtracker.Session{UserID: "u1", Email: "jane@x.com"}}
	resolver := newResolver(source, profileOf(&buildtracker.Profile{ID: "u1", FullName: "Jane Doe"}))

	first := resolver.ResolveIdentity(context.Background())
	second := resolver.ResolveIdentity(context.Background())

	assert.True(t, first.Equal(second))
	assert.Equal(t, 2, source.calls, "every call resolves again")
}

func TestResolveIdentity_NilResolver(t *testing.T) {
	var resolver *buildtracker.IdentityResolver

	identity := resolver.ResolveIdentity(context.Background())

	assert.False(t, identity.IsAuthenticated)
}
