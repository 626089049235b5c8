package local

import (
	"time"

	"github.com/goliatone/go-buildtracker"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type accountRecord struct {
	bun.BaseModel `bun:"table:auth_accounts,alias:acc"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid"`
	Email         string         `bun:"email,notnull"`
	PasswordHash  string         `bun:"password_hash,notnull"`
	UserMetadata  map[string]any `bun:"user_metadata,type:jsonb"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp"`
}

func (a *accountRecord) account() *buildtracker.Account {
	return &buildtracker.Account{
		ID:           a.ID.String(),
		Email:        a.Email,
		UserMetadata: a.UserMetadata,
		CreatedAt:    a.CreatedAt,
	}
}

type refreshTokenRecord struct {
	bun.BaseModel `bun:"table:auth_refresh_tokens,alias:art"`
	Token         string     `bun:"token,pk"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid"`
	SessionID     string     `bun:"session_id,notnull"`
	Revoked       bool       `bun:"revoked,notnull"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull"`
}
