package buildtracker

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Builds stores build records
type Builds interface {
	repository.Repository[*Build]
	GetBuild(ctx context.Context, id string) (*Build, error)
	GetBuildTx(ctx context.Context, tx bun.IDB, id string) (*Build, error)
	ListByOwner(ctx context.Context, userID string, includePrivate bool) ([]*Build, error)
	ListPublic(ctx context.Context, limit int) ([]*Build, error)
}

type builds struct {
	repository.Repository[*Build]
	db *bun.DB
}

var _ Builds = (*builds)(nil)

func NewBuildsRepository(db *bun.DB) Builds {
	return &builds{
		db: db,
		Repository: repository.NewRepository[*Build](db, uuidHandlers(
			func() *Build { return &Build{} },
			func(b *Build) uuid.UUID {
				if b == nil {
					return uuid.Nil
				}
				return b.ID
			},
			func(b *Build, id uuid.UUID) {
				if b != nil {
					b.ID = id
				}
			},
		)),
	}
}

func (r *builds) GetBuild(ctx context.Context, id string) (*Build, error) {
	return r.GetBuildTx(ctx, r.db, id)
}

func (r *builds) GetBuildTx(ctx context.Context, tx bun.IDB, id string) (*Build, error) {
	uid, err := parseRecordID("build", id)
	if err != nil {
		return nil, err
	}

	record := &Build{}
	err = tx.NewSelect().
		Model(record).
		Relation("Owner").
		Where("?TableAlias.id = ?", uid).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err, "build", id)
	}
	return record, nil
}

func (r *builds) ListByOwner(ctx context.Context, userID string, includePrivate bool) ([]*Build, error) {
	records := []*Build{}
	q := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("bld.created_at DESC")

	if !includePrivate {
		q = q.Where("?TableAlias.visibility = ?", VisibilityPublic)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *builds) ListPublic(ctx context.Context, limit int) ([]*Build, error) {
	if limit <= 0 {
		limit = 20
	}

	records := []*Build{}
	err := r.db.NewSelect().
		Model(&records).
		Relation("Owner").
		Where("?TableAlias.visibility = ?", VisibilityPublic).
		Order("bld.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Updates stores build updates
type Updates interface {
	repository.Repository[*BuildUpdate]
	GetUpdate(ctx context.Context, id string) (*BuildUpdate, error)
	GetUpdateTx(ctx context.Context, tx bun.IDB, id string) (*BuildUpdate, error)
	ListByBuild(ctx context.Context, buildID uuid.UUID) ([]*BuildUpdate, error)
}

type updates struct {
	repository.Repository[*BuildUpdate]
	db *bun.DB
}

var _ Updates = (*updates)(nil)

func NewUpdatesRepository(db *bun.DB) Updates {
	return &updates{
		db: db,
		Repository: repository.NewRepository[*BuildUpdate](db, uuidHandlers(
			func() *BuildUpdate { return &BuildUpdate{} },
			func(u *BuildUpdate) uuid.UUID {
				if u == nil {
					return uuid.Nil
				}
				return u.ID
			},
			func(u *BuildUpdate, id uuid.UUID) {
				if u != nil {
					u.ID = id
				}
			},
		)),
	}
}

func (r *updates) GetUpdate(ctx context.Context, id string) (*BuildUpdate, error) {
	return r.GetUpdateTx(ctx, r.db, id)
}

// GetUpdateTx loads the update with its parent build, the build carries the owner id
func (r *updates) GetUpdateTx(ctx context.Context, tx bun.IDB, id string) (*BuildUpdate, error) {
	uid, err := parseRecordID("update", id)
	if err != nil {
		return nil, err
	}

	record := &BuildUpdate{}
	err = tx.NewSelect().
		Model(record).
		Relation("Build").
		Where("?TableAlias.id = ?", uid).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err, "update", id)
	}
	return record, nil
}

func (r *updates) ListByBuild(ctx context.Context, buildID uuid.UUID) ([]*BuildUpdate, error) {
	records := []*BuildUpdate{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.build_id = ?", buildID).
		Order("bup.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
