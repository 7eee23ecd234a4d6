package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	typed := Clone(ErrInfeasible, "no laboratory room")
	wrapped := fmt.Errorf("start job: %w", typed)

	got := FromError(wrapped)
	assert.Equal(t, "INFEASIBLE_INPUT", got.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, got.Status)
	assert.Equal(t, "no laboratory room", got.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.EqualError(t, got, "internal server error: boom")
	assert.Nil(t, FromError(nil))
}

func TestIsMatchesByCode(t *testing.T) {
	err := Wrap(errors.New("missing"), ErrNotFound.Code, ErrNotFound.Status, "schedule not found")
	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrValidation))
	assert.False(t, Is(errors.New("plain"), ErrNotFound))
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrValidation, "population_size must be positive")
	assert.Equal(t, "validation failed", ErrValidation.Message)
	assert.Equal(t, "population_size must be positive", clone.Message)
}
