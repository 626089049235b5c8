package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/goliatone/go-buildtracker"
	"github.com/goliatone/go-errors"
)

// ProfileFinder reads the profiles table through PostgREST
type ProfileFinder struct {
	cfg    Config
	http   *http.Client
	logger buildtracker.Logger
}

var _ buildtracker.ProfileFinder = (*ProfileFinder)(nil)

func NewProfileFinder(cfg Config) (*ProfileFinder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &ProfileFinder{
		cfg:    cfg,
		http:   cfg.httpClient(),
		logger: nopLogger{},
	}, nil
}

func (p *ProfileFinder) WithLogger(l buildtracker.Logger) *ProfileFinder {
	if l != nil {
		p.logger = l
	}
	return p
}

// profileRow mirrors the profiles table columns
type profileRow struct {
	ID          string   `json:"id"`
	DisplayName *string  `json:"display_name"`
	FullName    *string  `json:"full_name"`
	Name        *string  `json:"name"`
	AvatarURL   *string  `json:"avatar_url"`
	Bio         *string  `json:"description"`
	Location    *string  `json:"location"`
	Phone       *string  `json:"phone_number"`
	Skills      []string `json:"skills"`
}

func (r profileRow) profile() *buildtracker.Profile {
	p := &buildtracker.Profile{
		ID:          r.ID,
		DisplayName: deref(r.DisplayName),
		FullName:    deref(r.FullName),
		AvatarURL:   deref(r.AvatarURL),
		Bio:         deref(r.Bio),
		Location:    deref(r.Location),
		Phone:       deref(r.Phone),
		Skills:      r.Skills,
	}
	if p.FullName == "" {
		p.FullName = deref(r.Name)
	}
	return p
}

// FindProfile returns the profile with id userID. Anything but exactly one
// row is a not found error.
func (p *ProfileFinder) FindProfile(ctx context.Context, userID string) (*buildtracker.Profile, error) {
	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", "*")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.baseURL()+"/rest/v1/profiles?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "build profile request")
	}

	bearer := p.cfg.AnonKey
	if token, ok := buildtracker.AccessTokenFromContext(ctx); ok && token != "" {
		bearer = token
	}
	req.Header.Set("apikey", p.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	res, err := p.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "profile store unreachable")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "read profile response")
	}

	if res.StatusCode >= http.StatusBadRequest {
		return nil, errors.New("profile lookup failed", errors.CategoryOperation).
			WithCode(res.StatusCode).
			WithMetadata(map[string]any{"status": res.StatusCode, "user_id": userID})
	}

	var rows []profileRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "decode profile response")
	}

	if len(rows) != 1 {
		p.logger.Debug("profile lookup did not return a single row", "user_id", userID, "rows", len(rows))
		return nil, buildtracker.ErrRecordNotFound.Clone().WithMetadata(map[string]any{
			"kind": "profile",
			"id":   userID,
			"rows": len(rows),
		})
	}

	return rows[0].profile(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
