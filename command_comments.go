package buildtracker

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AddCommentMessage struct {
	UpdateID   string         `json:"update_id"`
	Content    string         `json:"content"`
	OnResponse func(*Comment) `json:"-"`
}

func (e AddCommentMessage) Type() string { return "comment.add" }

func (e AddCommentMessage) Validate() *goerrors.Error {
	return validateWith(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.UpdateID, validation.Required),
			validation.Field(&e.Content, validation.Required, notBlank, validation.Length(1, 2000)),
		)
	}, "Invalid comment")
}

// AddCommentHandler lets any signed in user comment on an update they can see
type AddCommentHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewAddCommentHandler(repo RepositoryManager, guard *OwnershipGuard) *AddCommentHandler {
	return &AddCommentHandler{repo: repo, guard: guard}
}

func (h *AddCommentHandler) Execute(ctx context.Context, event AddCommentMessage) error {
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

			now := time.Now().UTC()
			comment := &Comment{
				ID:        uuid.New(),
				UpdateID:  update.ID,
				UserID:    identity.UserID(),
				Content:   strings.TrimSpace(event.Content),
				CreatedAt: &now,
			}

			if comment, err = h.repo.Comments().CreateTx(ctx, tx, comment); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create comment")
			}

			if event.OnResponse != nil {
				event.OnResponse(comment)
			}
			return nil
		})
	})
}
