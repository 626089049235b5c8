package buildtracker

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
)

var (
	// ErrNotAuthenticated is returned when a mutation has no resolved identity
	ErrNotAuthenticated = errors.New("authentication required", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("NOT_AUTHENTICATED")

	// ErrNotOwner is returned when the resolved identity does not own the record
	ErrNotOwner = errors.New("identity does not own this resource", errors.CategoryAuthz).
			WithCode(errors.CodeForbidden).
			WithTextCode("NOT_OWNER")

	// ErrRecordNotFound is returned for missing builds, updates, steps and profiles
	ErrRecordNotFound = errors.New("record not found", errors.CategoryNotFound).
				WithCode(errors.CodeNotFound).
				WithTextCode("RECORD_NOT_FOUND")

	// ErrInvalidCredentials is returned by auth backends on a failed sign in
	ErrInvalidCredentials = errors.New("invalid login credentials", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("INVALID_CREDENTIALS")

	// ErrTokenExpired is returned when an access token is past its expiration
	ErrTokenExpired = errors.New("access token expired", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode("TOKEN_EXPIRED")

	// ErrValidation is the base for rejected command input
	ErrValidation = errors.New("validation failed", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode("VALIDATION_FAILED")

	// ErrTokenMalformed is returned when an access token can not be parsed
	ErrTokenMalformed = errors.New("access token malformed", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("TOKEN_MALFORMED")
)

// IsNotOwner reports whether err is an ownership rejection
func IsNotOwner(err error) bool {
	return hasTextCode(err, ErrNotOwner.TextCode)
}

// IsNotAuthenticated reports whether err is a missing identity rejection
func IsNotAuthenticated(err error) bool {
	return hasTextCode(err, ErrNotAuthenticated.TextCode)
}

// IsTokenExpired reports whether err is an expired token error
func IsTokenExpired(err error) bool {
	return hasTextCode(err, ErrTokenExpired.TextCode)
}

// IsRecordNotFound reports whether err is a missing record error
func IsRecordNotFound(err error) bool {
	return hasTextCode(err, ErrRecordNotFound.TextCode)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func notFound(kind, id string) *errors.Error {
	return errors.New(kind+" not found", errors.CategoryNotFound).
		WithCode(errors.CodeNotFound).
		WithTextCode(ErrRecordNotFound.TextCode).
		WithMetadata(map[string]any{
			"kind": kind,
			"id":   id,
		})
}

// IsValidation reports whether err carries rejected input fields
func IsValidation(err error) bool {
	return hasTextCode(err, ErrValidation.TextCode)
}

// notBlank rejects strings made only of whitespace, Required lets them pass
var notBlank = validation.By(func(value any) error {
	if s, ok := value.(string); ok && s != "" && strings.TrimSpace(s) == "" {
		return fmt.Errorf("cannot be blank")
	}
	return nil
})

// validateWith runs an ozzo validation and returns nil or a validation
// error holding the failed fields in its "fields" metadata.
func validateWith(fn func() error, message string) *errors.Error {
	err := fn()
	if err == nil {
		return nil
	}
	return ErrValidation.Clone().
		WithMetadata(map[string]any{
			"message": message,
			"fields":  FormatValidationErrorToMap(err),
		})
}

// FormatValidationErrorToMap flattens an ozzo validation error into
// field name to message pairs. Other errors land under "form".
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	if fields := ValidationFields(err); len(fields) > 0 {
		return fields
	}

	out["form"] = err.Error()
	return out
}

// ValidationFields returns the failed fields of a validation error, nil for
// any other error
func ValidationFields(err error) map[string]string {
	var richErr *errors.Error
	if !errors.As(err, &richErr) || richErr.Metadata == nil {
		return nil
	}
	fields, _ := richErr.Metadata["fields"].(map[string]string)
	return fields
}
