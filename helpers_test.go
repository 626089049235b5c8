package buildtracker_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-buildtracker"
)

type stubSource struct {
	mu      sync.Mutex
	session *buildtracker.Session
	err     error
	panics  bool
	calls   int
}

func (s *stubSource) GetSession(ctx context.Context) (*buildtracker.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.panics {
		panic("session source exploded")
	}
	return s.session, s.err
}

func (s *stubSource) set(session *buildtracker.Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

type profileFinderFunc func(ctx context.Context, userID string) (*buildtracker.Profile, error)

func (f profileFinderFunc) FindProfile(ctx context.Context, userID string) (*buildtracker.Profile, error) {
	return f(ctx, userID)
}

func profileOf(p *buildtracker.Profile) profileFinderFunc {
	return func(ctx context.Context, userID string) (*buildtracker.Profile, error) {
		if p == nil || p.ID != userID {
			return nil, buildtracker.ErrRecordNotFound.Clone()
		}
		return p, nil
	}
}

type staticResolver struct {
	identity buildtracker.Identity
}

func (r staticResolver) ResolveIdentity(ctx context.Context) buildtracker.Identity {
	return r.identity
}

func newResolver(source buildtracker.SessionSource, profiles buildtracker.ProfileFinder) *buildtracker.IdentityResolver {
	return buildtracker.NewIdentityResolver(buildtracker.NewSessionClient(source), profiles)
}

func authenticated(id, email, name string) buildtracker.Identity {
	session := &buildtracker.Session{UserID: id, Email: email}
	var profile *buildtracker.Profile
	if name != "" {
		profile = &buildtracker.Profile{ID: id, DisplayName: name}
	}
	return buildtracker.NewIdentity(session, profile)
}

func strPtr(s string) *string {
	return &s
}
