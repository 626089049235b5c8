package supabase

import (
	"time"

	"github.com/goliatone/go-buildtracker"
)

// NewJWTVerifier verifies access tokens with the project JWT secret,
// without a round trip to the identity service
func NewJWTVerifier(secret string) *buildtracker.TokenService {
	return buildtracker.NewTokenService([]byte(secret), time.Hour, "", buildtracker.DefaultAudience)
}
