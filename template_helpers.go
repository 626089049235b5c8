package buildtracker

import (
	"maps"

	"github.com/goliatone/go-buildtracker/middleware/csrf"
	"github.com/goliatone/go-router"
)

// TemplateIdentityKey is the view key holding the current Identity
var TemplateIdentityKey = "current_identity"

// TemplateHelpers returns the helper functions made available to every
// view through the template engine global data.
//
// In templates:
//
//	{% if is_authenticated(current_identity) %}
//	{% if is_owner(current_identity, build.UserID) %}<a href="...">Edit</a>{% endif %}
//	{{ display_name(current_identity) }}
//	{{ csrf_field|safe }}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticated,
		"is_owner":         isOwnerHelper,
		"display_name":     displayName,
		"build_types":      BuildTypes,
		"build_statuses":   BuildStatuses,
		"visibilities":     Visibilities,
		"update_statuses":  UpdateStatuses,
	}
}

// MergeTemplateData builds the view context for a request: the helpers, the
// current identity, the csrf values set by the csrf middleware and finally
// the handler data, which wins on key collisions.
func MergeTemplateData(c router.Context, data router.ViewContext) router.ViewContext {
	out := router.ViewContext{}
	maps.Copy(out, TemplateHelpers())

	out[TemplateIdentityKey] = GetRouterIdentity(c)

	if helpers, ok := c.Locals(csrf.DefaultTemplateHelpersKey).(map[string]any); ok {
		maps.Copy(out, helpers)
	} else {
		maps.Copy(out, csrf.TemplateHelpersWithRouter(c, csrf.DefaultContextKey))
	}

	maps.Copy(out, data)
	return out
}

func isAuthenticated(v any) bool {
	switch id := v.(type) {
	case Identity:
		return id.IsAuthenticated
	case *Identity:
		return id != nil && id.IsAuthenticated
	default:
		return false
	}
}

func isOwnerHelper(v any, ownerID string) bool {
	switch id := v.(type) {
	case Identity:
		return IsOwner(id, ownerID)
	case *Identity:
		return id != nil && IsOwner(*id, ownerID)
	default:
		return false
	}
}

func displayName(v any) string {
	switch id := v.(type) {
	case Identity:
		return id.Name()
	case *Identity:
		if id == nil {
			return ""
		}
		return id.Name()
	default:
		return ""
	}
}
