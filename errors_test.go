package buildtracker_test

import (
	"fmt"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-buildtracker"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not owner", buildtracker.ErrNotOwner.Clone(), buildtracker.IsNotOwner},
		{"not authenticated", buildtracker.ErrNotAuthenticated.Clone(), buildtracker.IsNotAuthenticated},
		{"token expired", buildtracker.ErrTokenExpired.Clone(), buildtracker.IsTokenExpired},
		{"not found", buildtracker.ErrRecordNotFound.Clone(), buildtracker.IsRecordNotFound},
		{"validation", buildtracker.ErrValidation.Clone(), buildtracker.IsValidation},
		{"wrapped", fmt.Errorf("command failed: %w", buildtracker.ErrNotOwner.Clone()), buildtracker.IsNotOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(nil))
			assert.False(t, tt.check(fmt.Errorf("plain")))
		})
	}

	assert.False(t, buildtracker.IsNotOwner(buildtracker.ErrNotAuthenticated.Clone()))
}

func TestErrorCategories(t *testing.T) {
	assert.Equal(t, errors.CategoryAuthz, buildtracker.ErrNotOwner.Category)
	assert.Equal(t, errors.CategoryAuth, buildtracker.ErrNotAuthenticated.Category)
	assert.Equal(t, errors.CategoryNotFound, buildtracker.ErrRecordNotFound.Category)
	assert.Equal(t, errors.CategoryValidation, buildtracker.ErrValidation.Category)
}

func TestFormatValidationErrorToMap(t *testing.T) {
	t.Run("ozzo errors", func(t *testing.T) {
		err := validation.Errors{
			"name":  fmt.Errorf("cannot be blank"),
			"email": nil,
		}

		fields := buildtracker.FormatValidationErrorToMap(err)

		assert.Equal(t, map[string]string{"name": "cannot be blank"}, fields)
	})

	t.Run("command validation error", func(t *testing.T) {
		err := buildtracker.BuildFields{}.Validate()
		require.NotNil(t, err)

		fields := buildtracker.FormatValidationErrorToMap(err)

		assert.Contains(t, fields, "name")
		assert.Contains(t, fields, "build_type")
		assert.Equal(t, fields, buildtracker.ValidationFields(err))
	})

	t.Run("other error", func(t *testing.T) {
		fields := buildtracker.FormatValidationErrorToMap(fmt.Errorf("boom"))

		assert.Equal(t, map[string]string{"form": "boom"}, fields)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Empty(t, buildtracker.FormatValidationErrorToMap(nil))
		assert.Nil(t, buildtracker.ValidationFields(fmt.Errorf("boom")))
	})
}
