package buildtracker

import (
	"context"
)

// IsOwner reports whether identity owns a record whose owner id is ownerID.
// The comparison is an exact byte match.
func IsOwner(identity Identity, ownerID string) bool {
	return identity.ID != nil && *identity.ID == ownerID
}

// OwnershipGuard authorizes mutations. It always resolves the identity again
// from the request session and never uses an identity cached on the request.
type OwnershipGuard struct {
	resolver Resolver
	logger   Logger
}

// NewOwnershipGuard creates a guard backed by resolver
func NewOwnershipGuard(resolver Resolver) *OwnershipGuard {
	return &OwnershipGuard{
		resolver: resolver,
		logger:   defLogger{},
	}
}

func (g *OwnershipGuard) WithLogger(l Logger) *OwnershipGuard {
	if l != nil {
		g.logger = l
	}
	return g
}

// RequireIdentity resolves the caller and fails if there is no session
func (g *OwnershipGuard) RequireIdentity(ctx context.Context) (Identity, error) {
	identity := g.resolver.ResolveIdentity(ctx)
	if !identity.IsAuthenticated {
		return identity, ErrNotAuthenticated.Clone()
	}
	return identity, nil
}

// Authorize resolves the caller and fails unless it owns ownerID
func (g *OwnershipGuard) Authorize(ctx context.Context, ownerID string) (Identity, error) {
	identity, err := g.RequireIdentity(ctx)
	if err != nil {
		return identity, err
	}

	if !IsOwner(identity, ownerID) {
		g.logger.Warn("ownership check rejected", "user_id", identity.UserID(), "owner_id", ownerID)
		return identity, ErrNotOwner.Clone().WithMetadata(map[string]any{
			"user_id":  identity.UserID(),
			"owner_id": ownerID,
		})
	}

	return identity, nil
}
