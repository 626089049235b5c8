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

// UpdateFields are the editable fields of a build update
type UpdateFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func (f UpdateFields) Validate() *goerrors.Error {
	return validateWith(func() error {
		return validation.ValidateStruct(&f,
			validation.Field(&f.Title, validation.Required, notBlank, validation.Length(1, 200)),
			validation.Field(&f.Description, validation.Required, notBlank, validation.Length(1, 10000)),
			validation.Field(&f.Status, validation.Required, validation.In(UpdateStatuses...)),
		)
	}, "Invalid update")
}

func (f UpdateFields) apply(u *BuildUpdate) {
	u.Title = strings.TrimSpace(f.Title)
	u.Description = strings.TrimSpace(f.Description)
	u.Status = f.Status
}

type CreateUpdateMessage struct {
	BuildID string `json:"build_id"`
	UpdateFields
	OnResponse func(*BuildUpdate) `json:"-"`
}

func (e CreateUpdateMessage) Type() string { return "update.create" }

type CreateUpdateHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewCreateUpdateHandler(repo RepositoryManager, guard *OwnershipGuard) *CreateUpdateHandler {
	return &CreateUpdateHandler{repo: repo, guard: guard}
}

func (h *CreateUpdateHandler) Execute(ctx context.Context, event CreateUpdateMessage) error {
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

			now := time.Now().UTC()
			update := &BuildUpdate{
				ID:        uuid.New(),
				BuildID:   build.ID,
				CreatedAt: &now,
				UpdatedAt: &now,
			}
			event.apply(update)

			if update, err = h.repo.Updates().CreateTx(ctx, tx, update); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create update")
			}
			update.Build = build

			if event.OnResponse != nil {
				event.OnResponse(update)
			}
			return nil
		})
	})
}

type EditUpdateMessage struct {
	BuildID  string `json:"build_id"`
	UpdateID string `json:"update_id"`
	UpdateFields
	OnResponse func(*BuildUpdate) `json:"-"`
}

func (e EditUpdateMessage) Type() string { return "update.edit" }

type EditUpdateHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewEditUpdateHandler(repo RepositoryManager, guard *OwnershipGuard) *EditUpdateHandler {
	return &EditUpdateHandler{repo: repo, guard: guard}
}

func (h *EditUpdateHandler) Execute(ctx context.Context, event EditUpdateMessage) error {
	return runCommand(ctx, event.Type(), func(ctx context.Context) error {
		if err := event.Validate(); err != nil {
			return err
		}

		return h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			update, err := loadOwnedUpdate(ctx, tx, h.repo, h.guard, event.BuildID, event.UpdateID)
			if err != nil {
				return err
			}

			event.apply(update)
			now := time.Now().UTC()
			update.UpdatedAt = &now

			build := update.Build
			if update, err = h.repo.Updates().UpdateTx(ctx, tx, update, repository.UpdateByID(update.ID.String())); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update build update")
			}
			update.Build = build

			if event.OnResponse != nil {
				event.OnResponse(update)
			}
			return nil
		})
	})
}

// Reactions accepted by ReactToUpdateHandler
const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

type ReactToUpdateMessage struct {
	UpdateID string `json:"update_id"`
	Reaction string `json:"reaction"`
}

func (e ReactToUpdateMessage) Type() string { return "update.react" }

func (e ReactToUpdateMessage) Validate() *goerrors.Error {
	return validateWith(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.UpdateID, validation.Required),
			validation.Field(&e.Reaction, validation.Required, validation.In(ReactionLike, ReactionDislike)),
		)
	}, "Invalid reaction")
}

// ReactToUpdateHandler counts a like or dislike from any signed in user on a
// visible update.
type ReactToUpdateHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewReactToUpdateHandler(repo RepositoryManager, guard *OwnershipGuard) *ReactToUpdateHandler {
	return &ReactToUpdateHandler{repo: repo, guard: guard}
}

func (h *ReactToUpdateHandler) Execute(ctx context.Context, event ReactToUpdateMessage) error {
	return runCommand(ctx, event.Type(), func(ctx context.Context) error {
		if err := event.Validate(); err != nil {
			return err
		}

		return h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			identity, err := h.guard.RequireIdentity(ctx)
			if err != nil {
				return err
			}

			update, err := h.repo.Updates().GetUpdateTx(ctx, tx, event.UpdateID)
			if err != nil {
				return err
			}

			if !CanView(identity, update.Build) {
				return notFound("update", event.UpdateID)
			}

			column := "likes"
			if event.Reaction == ReactionDislike {
				column = "dislikes"
			}

			_, err = tx.NewUpdate().
				Model((*BuildUpdate)(nil)).
				Set("? = ? + 1", bun.Ident(column), bun.Ident(column)).
				Where("id = ?", update.ID).
				Exec(ctx)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not record reaction")
			}
			return nil
		})
	})
}

// loadOwnedUpdate loads an update with its build and checks ownership of
// the build. A buildID that does not match the update parent is not found.
func loadOwnedUpdate(ctx context.Context, tx bun.IDB, repo RepositoryManager, guard *OwnershipGuard, buildID, updateID string) (*BuildUpdate, error) {
	update, err := repo.Updates().GetUpdateTx(ctx, tx, updateID)
	if err != nil {
		return nil, err
	}

	if update.Build == nil {
		return nil, notFound("build", update.BuildID.String())
	}

	if buildID != "" && update.BuildID.String() != buildID {
		return nil, notFound("update", updateID)
	}

	if _, err := guard.Authorize(ctx, update.OwnerID()); err != nil {
		return nil, err
	}

	return update, nil
}

// CanView reports whether identity can read build: public builds are
// readable by anyone, private ones only by their owner.
func CanView(identity Identity, build *Build) bool {
	if build == nil {
		return false
	}
	return build.IsPublic() || IsOwner(identity, build.OwnerID())
}
