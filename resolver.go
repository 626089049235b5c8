package buildtracker

import (
	"context"
	"fmt"
)

// IdentityResolver turns the current session into an Identity
type IdentityResolver struct {
	sessions *SessionClient
	profiles ProfileFinder
	logger   Logger
}

var _ Resolver = (*IdentityResolver)(nil)

// NewIdentityResolver creates a resolver. profiles may be nil, in which
// case identities are built from the session alone.
func NewIdentityResolver(sessions *SessionClient, profiles ProfileFinder) *IdentityResolver {
	return &IdentityResolver{
		sessions: sessions,
		profiles: profiles,
		logger:   defLogger{},
	}
}

func (r *IdentityResolver) WithLogger(l Logger) *IdentityResolver {
	if l != nil {
		r.logger = l
	}
	return r
}

// ResolveIdentity never fails. A missing session, a session transport error
// or a panicking collaborator all yield Unauthenticated, while a failed
// profile lookup only drops the profile based display name candidates.
func (r *IdentityResolver) ResolveIdentity(ctx context.Context) (identity Identity) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("identity resolution panic", "panic", fmt.Sprint(rec))
			identity = Unauthenticated()
		}
	}()

	if r == nil || r.sessions == nil {
		return Unauthenticated()
	}

	session := r.sessions.CurrentSession(ctx)
	if session == nil {
		return Unauthenticated()
	}

	return NewIdentity(session, r.lookupProfile(ctx, session.UserID))
}

func (r *IdentityResolver) lookupProfile(ctx context.Context, userID string) (profile *Profile) {
	if r.profiles == nil {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("profile lookup panic", "user_id", userID, "panic", fmt.Sprint(rec))
			profile = nil
		}
	}()

	profile, err := r.profiles.FindProfile(ctx, userID)
	if err != nil {
		if IsRecordNotFound(err) {
			r.logger.Debug("profile not found", "user_id", userID)
		} else {
			r.logger.Warn("profile lookup failed", "user_id", userID, "error", err)
		}
		return nil
	}
	return profile
}
