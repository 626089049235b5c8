package buildtracker

import (
	"strings"
)

// Identity is the resolved view of the current user.
// ID is nil if and only if there is no session.
type Identity struct {
	ID              *string `json:"id"`
	Email           *string `json:"email"`
	DisplayName     *string `json:"display_name"`
	IsAuthenticated bool    `json:"is_authenticated"`
}

// Unauthenticated returns the identity used when there is no session
func Unauthenticated() Identity {
	return Identity{}
}

// NewIdentity builds an identity from a session and an optional profile.
// A nil session, or one without a user id, yields Unauthenticated.
func NewIdentity(session *Session, profile *Profile) Identity {
	if session == nil || session.UserID == "" {
		return Unauthenticated()
	}

	id := session.UserID
	return Identity{
		ID:              &id,
		Email:           optionalString(session.Email),
		DisplayName:     resolveDisplayName(profile, session),
		IsAuthenticated: true,
	}
}

// UserID returns the id or "" for anonymous identities
func (i Identity) UserID() string {
	return derefString(i.ID)
}

// EmailAddress returns the email or ""
func (i Identity) EmailAddress() string {
	return derefString(i.Email)
}

// Name returns the display name or ""
func (i Identity) Name() string {
	return derefString(i.DisplayName)
}

// Equal compares identities field by field
func (i Identity) Equal(o Identity) bool {
	return i.IsAuthenticated == o.IsAuthenticated &&
		equalStringPtr(i.ID, o.ID) &&
		equalStringPtr(i.Email, o.Email) &&
		equalStringPtr(i.DisplayName, o.DisplayName)
}

// displayNameSource yields a candidate display name, "" when it has none
type displayNameSource struct {
	name    string
	resolve func(profile *Profile, session *Session) string
}

// displayNameSources is evaluated in order, the first non-empty value wins.
var displayNameSources = []displayNameSource{
	{
		name: "profile.display_name",
		resolve: func(p *Profile, _ *Session) string {
			if p == nil {
				return ""
			}
			return p.DisplayName
		},
	},
	{
		name: "profile.full_name",
		resolve: func(p *Profile, _ *Session) string {
			if p == nil {
				return ""
			}
			return p.FullName
		},
	},
	{
		name: "metadata.full_name",
		resolve: func(_ *Profile, s *Session) string {
			return s.MetadataString("full_name")
		},
	},
	{
		name: "email.local_part",
		resolve: func(_ *Profile, s *Session) string {
			return emailLocalPart(s.GetEmail())
		},
	},
}

func resolveDisplayName(profile *Profile, session *Session) *string {
	for _, source := range displayNameSources {
		if name := strings.TrimSpace(source.resolve(profile, session)); name != "" {
			return &name
		}
	}
	return nil
}

func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
