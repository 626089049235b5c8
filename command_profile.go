package buildtracker

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is used to parse phone numbers without a country code
var DefaultPhoneRegion = "US"

type UpdateProfileMessage struct {
	DisplayName string         `json:"display_name"`
	FullName    string         `json:"full_name"`
	AvatarURL   string         `json:"avatar_url"`
	Bio         string         `json:"bio"`
	Location    string         `json:"location"`
	Phone       string         `json:"phone_number"`
	Skills      []string       `json:"skills"`
	OnResponse  func(*Profile) `json:"-"`
}

func (e UpdateProfileMessage) Type() string { return "profile.update" }

func (e UpdateProfileMessage) Validate() *goerrors.Error {
	return validateWith(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.DisplayName, validation.Length(0, 100)),
			validation.Field(&e.FullName, validation.Length(0, 200)),
			validation.Field(&e.AvatarURL, is.URL),
			validation.Field(&e.Bio, validation.Length(0, 2000)),
			validation.Field(&e.Location, validation.Length(0, 200)),
			validation.Field(&e.Phone, validation.By(validatePhone)),
		)
	}, "Invalid profile")
}

// UpdateProfileHandler saves the profile of the resolved identity. The
// profile id is always the identity id, never a submitted value.
type UpdateProfileHandler struct {
	repo  RepositoryManager
	guard *OwnershipGuard
}

func NewUpdateProfileHandler(repo RepositoryManager, guard *OwnershipGuard) *UpdateProfileHandler {
	return &UpdateProfileHandler{repo: repo, guard: guard}
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	return runCommand(ctx, event.Type(), func(ctx context.Context) error {
		if err := event.Validate(); err != nil {
			return err
		}

		phone, err := NormalizePhone(event.Phone)
		if err != nil {
			return err
		}

		return h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			identity, err := h.guard.RequireIdentity(ctx)
			if err != nil {
				return err
			}

			profile := &Profile{
				ID:          identity.UserID(),
				DisplayName: strings.TrimSpace(event.DisplayName),
				FullName:    strings.TrimSpace(event.FullName),
				AvatarURL:   strings.TrimSpace(event.AvatarURL),
				Bio:         strings.TrimSpace(event.Bio),
				Location:    strings.TrimSpace(event.Location),
				Phone:       phone,
				Skills:      cleanSkills(event.Skills),
			}

			if existing, err := h.repo.Profiles().FindProfileTx(ctx, tx, profile.ID); err == nil {
				profile.CreatedAt = existing.CreatedAt
			}

			saved, err := h.repo.Profiles().SaveTx(ctx, tx, profile)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not save profile")
			}

			if event.OnResponse != nil {
				event.OnResponse(saved)
			}
			return nil
		})
	})
}

// NormalizePhone formats phone as E.164, "" stays ""
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"phone_number": phone})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func validatePhone(value any) error {
	s, _ := value.(string)
	if _, err := NormalizePhone(s); err != nil {
		return errors.New("must be a valid phone number")
	}
	return nil
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := map[string]bool{}
	for _, skill := range skills {
		for _, part := range strings.Split(skill, ",") {
			part = strings.TrimSpace(part)
			key := strings.ToLower(part)
			if part == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, part)
		}
	}
	return out
}
