package buildtracker

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StepFields are the editable fields of an update step
type StepFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (f StepFields) Validate() *goerrors.Error {
	return validateWith(func() error {
		return validation.ValidateStruct(&f,
			validation.Field(&f.Title, validation.Required, notBlank, validation.Length(1, 200)),
			validation.Field(&f.Description, validation.Length(0, 5000)),
		)
	}, "Invalid step")
}

type AddStepMessage struct {
	BuildID  string `json:"build_id"`
	UpdateID string `json:"update_id"`
	StepFields
	OnResponse func(*UpdateStep) `json:"-"`
}

func (e AddStepMessage) Type() string { return "step.add" }

// AddStepHandler appends a step after the last step of an update
type AddStepHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewAddStepHandler(repo RepositoryManager, guard *OwnershipGuard) *AddStepHandler {
	return &AddStepHandler{repo: repo, guard: guard}
}

func (h *AddStepHandler) Execute(ctx context.Context, event AddStepMessage) error {
	return runCommand(ctx, event.Type(), func(ctx context.Context) error {
		if err := event.Validate(); err != nil {
			return err
		}

		return h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			update, err := loadOwnedUpdate(ctx, tx, h.repo, h.guard, event.BuildID, event.UpdateID)
			if err != nil {
				return err
			}

			position, err := h.repo.Steps().NextPositionTx(ctx, tx, update.ID)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not compute step position")
			}

			now := time.Now().UTC()
			step := &UpdateStep{
				ID:            uuid.New(),
				UpdateID:      update.ID,
				Title:         strings.TrimSpace(event.Title),
				Description:   strings.TrimSpace(event.Description),
				OrderPosition: position,
				CreatedAt:     &now,
				UpdatedAt:     &now,
			}

			if step, err = h.repo.Steps().CreateTx(ctx, tx, step); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create step")
			}

			if event.OnResponse != nil {
				event.OnResponse(step)
			}
			return nil
		})
	})
}

type EditStepMessage struct {
	BuildID  string `json:"build_id"`
	UpdateID string `json:"update_id"`
	StepID   string `json:"step_id"`
	StepFields
	OrderPosition int               `json:"order_position"`
	OnResponse    func(*UpdateStep) `json:"-"`
}

func (e EditStepMessage) Type() string { return "step.edit" }

func (e EditStepMessage) Validate() *goerrors.Error {
	if err := e.StepFields.Validate(); err != nil {
		return err
	}
	return validateWith(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.OrderPosition, validation.Min(0)),
		)
	}, "Invalid step")
}

// EditStepHandler edits a step. Ownership is checked against the build that
// owns the update the step belongs to.
type EditStepHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewEditStepHandler(repo RepositoryManager, guard *OwnershipGuard) *EditStepHandler {
	return &EditStepHandler{repo: repo, guard: guard}
}

func (h *EditStepHandler) Execute(ctx context.Context, event EditStepMessage) error {
	return runCommand(ctx, event.Type(), func(ctx context.Context) error {
		if err := event.Validate(); err != nil {
			return err
		}

		return h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			update, err := loadOwnedUpdate(ctx, tx, h.repo, h.guard, event.BuildID, event.UpdateID)
			if err != nil {
				return err
			}

			step, err := h.repo.Steps().GetStepTx(ctx, tx, update.ID, event.StepID)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			step.Title = strings.TrimSpace(event.Title)
			step.Description = strings.TrimSpace(event.Description)
			if event.OrderPosition > 0 {
				step.OrderPosition = event.OrderPosition
			}
			step.UpdatedAt = &now

			if step, err = h.repo.Steps().UpdateTx(ctx, tx, step, repository.UpdateByID(step.ID.String())); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update step")
			}

			if event.OnResponse != nil {
				event.OnResponse(step)
			}
			return nil
		})
	})
}
