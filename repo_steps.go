package buildtracker

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Steps stores the ordered steps of an update
type Steps interface {
	repository.Repository[*UpdateStep]
	GetStepTx(ctx context.Context, tx bun.IDB, updateID uuid.UUID, id string) (*UpdateStep, error)
	ListByUpdate(ctx context.Context, updateID uuid.UUID) ([]*UpdateStep, error)
	NextPositionTx(ctx context.Context, tx bun.IDB, updateID uuid.UUID) (int, error)
}

type steps struct {
	repository.Repository[*UpdateStep]
	db *bun.DB
}

var _ Steps = (*steps)(nil)

func NewStepsRepository(db *bun.DB) Steps {
	return &steps{
		db: db,
		Repository: repository.NewRepository[*UpdateStep](db, uuidHandlers(
			func() *UpdateStep { return &UpdateStep{} },
			func(s *UpdateStep) uuid.UUID {
				if s == nil {
					return uuid.Nil
				}
				return s.ID
			},
			func(s *UpdateStep, id uuid.UUID) {
				if s != nil {
					s.ID = id
				}
			},
		)),
	}
}

// GetStepTx loads a step that belongs to updateID
func (r *steps) GetStepTx(ctx context.Context, tx bun.IDB, updateID uuid.UUID, id string) (*UpdateStep, error) {
	uid, err := parseRecordID("step", id)
	if err != nil {
		return nil, err
	}

	record := &UpdateStep{}
	err = tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", uid).
		Where("?TableAlias.update_id = ?", updateID).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err, "step", id)
	}
	return record, nil
}

func (r *steps) ListByUpdate(ctx context.Context, updateID uuid.UUID) ([]*UpdateStep, error) {
	records := []*UpdateStep{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.update_id = ?", updateID).
		Order("order_position ASC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// NextPositionTx returns the position after the last step of the update
func (r *steps) NextPositionTx(ctx context.Context, tx bun.IDB, updateID uuid.UUID) (int, error) {
	var position int
	err := tx.NewSelect().
		Model((*UpdateStep)(nil)).
		ColumnExpr("COALESCE(MAX(order_position), 0) + 1").
		Where("update_id = ?", updateID).
		Scan(ctx, &position)
	if err != nil {
		return 0, err
	}
	return position, nil
}

// Comments stores update comments
type Comments interface {
	repository.Repository[*Comment]
	ListByUpdate(ctx context.Context, updateID uuid.UUID) ([]*Comment, error)
}

type comments struct {
	repository.Repository[*Comment]
	db *bun.DB
}

var _ Comments = (*comments)(nil)

func NewCommentsRepository(db *bun.DB) Comments {
	return &comments{
		db: db,
		Repository: repository.NewRepository[*Comment](db, uuidHandlers(
			func() *Comment { return &Comment{} },
			func(c *Comment) uuid.UUID {
				if c == nil {
					return uuid.Nil
				}
				return c.ID
			},
			func(c *Comment, id uuid.UUID) {
				if c != nil {
					c.ID = id
				}
			},
		)),
	}
}

// ListByUpdate returns comments newest first with their author profile
func (r *comments) ListByUpdate(ctx context.Context, updateID uuid.UUID) ([]*Comment, error) {
	records := []*Comment{}
	err := r.db.NewSelect().
		Model(&records).
		Relation("Author").
		Where("?TableAlias.update_id = ?", updateID).
		Order("buc.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
