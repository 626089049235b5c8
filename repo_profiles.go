package buildtracker

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Profiles stores profile records keyed by account id
type Profiles interface {
	ProfileFinder
	FindProfileTx(ctx context.Context, tx bun.IDB, userID string) (*Profile, error)
	Save(ctx context.Context, profile *Profile) (*Profile, error)
	SaveTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error)
}

type profiles struct {
	db *bun.DB
}

var _ Profiles = (*profiles)(nil)

func NewProfilesRepository(db *bun.DB) Profiles {
	return &profiles{db: db}
}

func (r *profiles) FindProfile(ctx context.Context, userID string) (*Profile, error) {
	return r.FindProfileTx(ctx, dbFromContext(ctx, r.db), userID)
}

// FindProfileTx treats zero and multiple matching rows the same way: the
// profile is reported as not found.
func (r *profiles) FindProfileTx(ctx context.Context, tx bun.IDB, userID string) (*Profile, error) {
	if userID == "" {
		return nil, notFound("profile", userID)
	}

	var records []*Profile
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.id = ?", userID).
		Limit(2).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err, "profile", userID)
	}

	if len(records) != 1 {
		return nil, notFound("profile", userID).WithMetadata(map[string]any{
			"rows": len(records),
		})
	}

	return records[0], nil
}

func (r *profiles) Save(ctx context.Context, profile *Profile) (*Profile, error) {
	return r.SaveTx(ctx, dbFromContext(ctx, r.db), profile)
}

// SaveTx inserts the profile or updates the editable columns of an existing one
func (r *profiles) SaveTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error) {
	now := time.Now().UTC()
	profile.UpdatedAt = &now
	if profile.CreatedAt == nil {
		profile.CreatedAt = &now
	}

	_, err := tx.NewInsert().
		Model(profile).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("full_name = EXCLUDED.full_name").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("bio = EXCLUDED.bio").
		Set("location = EXCLUDED.location").
		Set("phone_number = EXCLUDED.phone_number").
		Set("skills = EXCLUDED.skills").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.FindProfileTx(ctx, tx, profile.ID)
}
