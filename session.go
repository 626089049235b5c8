package buildtracker

import (
	"fmt"
	"strings"
	"time"
)

// Session is the observed state of an identity service session.
// It is never created by this package, only read from a SessionSource.
type Session struct {
	UserID    string         `json:"user_id"`
	Email     string         `json:"email,omitempty"`
	Metadata  map[string]any `json:"user_metadata,omitempty"`
	IssuedAt  *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

func (s *Session) GetUserID() string {
	if s == nil {
		return ""
	}
	return s.UserID
}

func (s *Session) GetEmail() string {
	if s == nil {
		return ""
	}
	return s.Email
}

// MetadataString returns the trimmed string value stored under key in the
// account metadata, or "" when missing or not a string.
func (s *Session) MetadataString(key string) string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	v, ok := s.Metadata[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Expired reports whether the session expiration is before now
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

func (s Session) String() string {
	expiresAt := "<nil>"
	if s.ExpiresAt != nil {
		expiresAt = s.ExpiresAt.Format(time.RFC1123)
	}
	return fmt.Sprintf("user=%s email=%s exp=%s", s.UserID, s.Email, expiresAt)
}

// SessionEventType names a session transition
type SessionEventType string

const (
	SessionSignedIn       SessionEventType = "SIGNED_IN"
	SessionSignedOut      SessionEventType = "SIGNED_OUT"
	SessionTokenRefreshed SessionEventType = "TOKEN_REFRESHED"
	SessionUserUpdated    SessionEventType = "USER_UPDATED"
)

// SessionEvent is published when the session of a user changes.
// Session is nil for sign out events.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	Session    *Session         `json:"session,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewSessionEvent creates an event stamped with the current time
func NewSessionEvent(eventType SessionEventType, session *Session) SessionEvent {
	return SessionEvent{
		Type:       eventType,
		Session:    session,
		OccurredAt: time.Now().UTC(),
	}
}
