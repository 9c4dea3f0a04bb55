package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

func TestAppError_Types(t *testing.T) {
	tests := []struct {
		name     string
		err      *errors.AppError
		wantType errors.ErrorType
		check    func(error) bool
	}{
		{
			name:     "validation",
			err:      errors.NewValidationError("INVALID_WINDOW", "min lag exceeds max lag"),
			wantType: errors.ErrorTypeValidation,
			check:    errors.IsValidation,
		},
		{
			name:     "not found",
			err:      errors.NewNotFoundError("event"),
			wantType: errors.ErrorTypeNotFound,
			check:    errors.IsNotFound,
		},
		{
			name:     "conflict",
			err:      errors.NewConflictError("relationship already exists"),
			wantType: errors.ErrorTypeConflict,
			check:    errors.IsConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.True(t, tt.check(tt.err))

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.IsType(wrapped, tt.wantType))
		})
	}
}

func TestAppError_Details(t *testing.T) {
	err := errors.NewNotFoundError("event").WithID("abc")

	v, ok := errors.Detail(err, "id")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	v, ok = errors.Detail(err, "resource")
	require.True(t, ok)
	assert.Equal(t, "event", v)

	_, ok = errors.Detail(stderrors.New("plain"), "id")
	assert.False(t, ok)
}

func TestAppError_Cause(t *testing.T) {
	root := stderrors.New("boom")
	err := errors.NewRuleEvaluationError("price_rule", root)

	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "price_rule")
	assert.Contains(t, err.Error(), "boom")
	assert.Nil(t, errors.Wrap(nil, "ignored"))
}
