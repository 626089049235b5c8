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

// BuildFields are the editable fields of a build
type BuildFields struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	BuildType   string            `json:"build_type"`
	Status      string            `json:"status"`
	Visibility  string            `json:"visibility"`
	Location    string            `json:"location"`
	Details     map[string]string `json:"details,omitempty"`
}

func (f BuildFields) Validate() *goerrors.Error {
	return validateWith(func() error {
		return validation.ValidateStruct(&f,
			validation.Field(&f.Name, validation.Required, notBlank, validation.Length(1, 200)),
			validation.Field(&f.Description, validation.Required, notBlank, validation.Length(1, 5000)),
			validation.Field(&f.BuildType, validation.Required, validation.In(BuildTypes...)),
			validation.Field(&f.Status, validation.Required, validation.In(BuildStatuses...)),
			validation.Field(&f.Visibility, validation.Required, validation.In(Visibilities...)),
			validation.Field(&f.Location, validation.Length(0, 200)),
		)
	}, "Invalid build")
}

func (f BuildFields) apply(b *Build) {
	b.Name = strings.TrimSpace(f.Name)
	b.Description = strings.TrimSpace(f.Description)
	b.BuildType = f.BuildType
	b.Status = f.Status
	b.Visibility = f.Visibility
	b.Location = strings.TrimSpace(f.Location)
	b.Details = f.Details
}

type CreateBuildMessage struct {
	BuildFields
	OnResponse func(*Build) `json:"-"`
}

func (e CreateBuildMessage) Type() string { return "build.create" }

type CreateBuildHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewCreateBuildHandler(repo RepositoryManager, guard *OwnershipGuard) *CreateBuildHandler {
	return &CreateBuildHandler{repo: repo, guard: guard}
}

func (h *CreateBuildHandler) Execute(ctx context.Context, event CreateBuildMessage) error {
	return runCommand(ctx, event.Type(), func(ctx context.Context) error {
		if err := event.Validate(); err != nil {
			return err
		}

		return h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			identity, err := h.guard.RequireIdentity(ctx)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			build := &Build{
				ID:        uuid.New(),
				UserID:    identity.UserID(),
				CreatedAt: &now,
				UpdatedAt: &now,
			}
			event.apply(build)

			if build, err = h.repo.Builds().CreateTx(ctx, tx, build); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create build")
			}

			if event.OnResponse != nil {
				event.OnResponse(build)
			}
			return nil
		})
	})
}

type UpdateBuildMessage struct {
	BuildID string `json:"build_id"`
	BuildFields
	OnResponse func(*Build) `json:"-"`
}

func (e UpdateBuildMessage) Type() string { return "build.update" }

type UpdateBuildHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewUpdateBuildHandler(repo RepositoryManager, guard *OwnershipGuard) *UpdateBuildHandler {
	return &UpdateBuildHandler{repo: repo, guard: guard}
}

func (h *UpdateBuildHandler) Execute(ctx context.Context, event UpdateBuildMessage) error {
	return runCommand(ctx, event.Type(), func(ctx context.Context) error {
		if err := event.Validate(); err != nil {
			return err
		}

		return h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			build, err := h.repo.Builds().GetBuildTx(ctx, tx, event.BuildID)
			if err != nil {
				return err
			}

			if _, err := h.guard.Authorize(ctx, build.OwnerID()); err != nil {
				return err
			}

			event.apply(build)
			now := time.Now().UTC()
			build.UpdatedAt = &now

			updated, err := h.repo.Builds().UpdateTx(ctx, tx, build, repository.UpdateByID(build.ID.String()))
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update build")
			}

			if event.OnResponse != nil {
				event.OnResponse(updated)
			}
			return nil
		})
	})
}
