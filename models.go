package buildtracker

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BuildType is the kind of project being built
type BuildType = string

const (
	BuildTypeVehicle      BuildType = "vehicle"
	BuildTypeConstruction BuildType = "construction"
	BuildTypeCraft        BuildType = "craft"
	BuildTypeOther        BuildType = "other"
)

// BuildStatus is the progress of a build
type BuildStatus = string

const (
	BuildPlanning   BuildStatus = "planning"
	BuildInProgress BuildStatus = "in-progress"
	BuildCompleted  BuildStatus = "completed"
	BuildOnHold     BuildStatus = "on-hold"
)

// Visibility controls who can see a build
type Visibility = string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// UpdateStatus is the progress reported by an update
type UpdateStatus = string

const (
	UpdatePlanned    UpdateStatus = "Planned"
	UpdateInProgress UpdateStatus = "In Progress"
	UpdateCompleted  UpdateStatus = "Completed"
	UpdateBlocked    UpdateStatus = "Blocked"
)

var (
	BuildTypes     = []any{BuildTypeVehicle, BuildTypeConstruction, BuildTypeCraft, BuildTypeOther}
	BuildStatuses  = []any{BuildPlanning, BuildInProgress, BuildCompleted, BuildOnHold}
	Visibilities   = []any{VisibilityPublic, VisibilityPrivate}
	UpdateStatuses = []any{UpdatePlanned, UpdateInProgress, UpdateCompleted, UpdateBlocked}
)

// Profile is the optional enrichment record of an account. ID is the
// identity service account id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            string     `bun:"id,pk" json:"id"`
	DisplayName   string     `bun:"display_name" json:"display_name,omitempty"`
	FullName      string     `bun:"full_name" json:"full_name,omitempty"`
	AvatarURL     string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	Bio           string     `bun:"bio" json:"bio,omitempty"`
	Location      string     `bun:"location" json:"location,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	Skills        []string   `bun:"skills,type:jsonb" json:"skills,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// BuilderStats is the summary shown next to a builder profile. Dates are
// preformatted, "N/A" when unknown.
type BuilderStats struct {
	MemberSince   string `json:"member_since"`
	MemberFor     string `json:"member_for"`
	LastUpdated   string `json:"last_updated"`
	ProjectsCount int    `json:"projects_count"`
}

func NewBuilderStats(p *Profile, projects int, now time.Time) BuilderStats {
	stats := BuilderStats{
		MemberSince:   "N/A",
		MemberFor:     "N/A",
		LastUpdated:   "N/A",
		ProjectsCount: projects,
	}
	if p == nil {
		return stats
	}
	if p.CreatedAt != nil {
		stats.MemberSince = formatDate(*p.CreatedAt)
		stats.MemberFor = MembershipDuration(*p.CreatedAt, now)
	}
	if p.UpdatedAt != nil {
		stats.LastUpdated = formatDate(*p.UpdatedAt)
	}
	return stats
}

func formatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// MembershipDuration renders the time since start as days, months or years
func MembershipDuration(start, now time.Time) string {
	diff := now.Sub(start)
	if diff < 0 {
		diff = -diff
	}
	days := int(math.Ceil(diff.Hours() / 24))

	plural := func(n int, unit string) string {
		if n > 1 {
			return fmt.Sprintf("%d %ss", n, unit)
		}
		return fmt.Sprintf("%d %s", n, unit)
	}

	switch {
	case days < 30:
		return fmt.Sprintf("%d days", days)
	case days < 365:
		return plural(days/30, "month")
	default:
		return plural(days/365, "year")
	}
}

// Name returns the public name of the profile owner
func (p *Profile) Name() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.FullName
}

// Build is a project owned by UserID
type Build struct {
	bun.BaseModel `bun:"table:builds,alias:bld"`
	ID            uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        string            `bun:"user_id,notnull" json:"user_id"`
	Owner         *Profile          `bun:"rel:belongs-to,join:user_id=id" json:"owner,omitempty"`
	Name          string            `bun:"name,notnull" json:"name"`
	Description   string            `bun:"description" json:"description,omitempty"`
	BuildType     BuildType         `bun:"build_type,notnull" json:"build_type"`
	Status        BuildStatus       `bun:"status,notnull" json:"status"`
	Visibility    Visibility        `bun:"visibility,notnull" json:"visibility"`
	Location      string            `bun:"location" json:"location,omitempty"`
	Details       map[string]string `bun:"details,type:jsonb" json:"details,omitempty"`
	CreatedAt     *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// OwnerID returns the id of the identity that created the build
func (b *Build) OwnerID() string {
	if b == nil {
		return ""
	}
	return b.UserID
}

// IsPublic reports whether anyone can read the build
func (b *Build) IsPublic() bool {
	return b != nil && b.Visibility == VisibilityPublic
}

// BuildUpdate is a progress report on a build. Its owner is the build owner.
type BuildUpdate struct {
	bun.BaseModel `bun:"table:build_updates,alias:bup"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	BuildID       uuid.UUID    `bun:"build_id,notnull,type:uuid" json:"build_id"`
	Build         *Build       `bun:"rel:belongs-to,join:build_id=id" json:"build,omitempty"`
	Title         string       `bun:"title,notnull" json:"title"`
	Description   string       `bun:"description" json:"description,omitempty"`
	Status        UpdateStatus `bun:"status,notnull" json:"status"`
	Likes         int          `bun:"likes,notnull,default:0" json:"likes"`
	Dislikes      int          `bun:"dislikes,notnull,default:0" json:"dislikes"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// OwnerID returns the owner of the parent build, "" if it was not loaded
func (u *BuildUpdate) OwnerID() string {
	if u == nil {
		return ""
	}
	return u.Build.OwnerID()
}

// UpdateStep is an ordered step of an update
type UpdateStep struct {
	bun.BaseModel `bun:"table:build_update_steps,alias:bus"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UpdateID      uuid.UUID  `bun:"update_id,notnull,type:uuid" json:"update_id"`
	Title         string     `bun:"title,notnull" json:"title"`
	Description   string     `bun:"description" json:"description,omitempty"`
	OrderPosition int        `bun:"order_position,notnull" json:"order_position"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Comment is left by any signed in user on an update
type Comment struct {
	bun.BaseModel `bun:"table:build_update_comments,alias:buc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UpdateID      uuid.UUID  `bun:"update_id,notnull,type:uuid" json:"update_id"`
	UserID        string     `bun:"user_id,notnull" json:"user_id"`
	Author        *Profile   `bun:"rel:belongs-to,join:user_id=id" json:"author,omitempty"`
	Content       string     `bun:"content,notnull" json:"content"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
