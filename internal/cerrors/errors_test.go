package cerrors

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppError_CopiesDoNotMutateSentinel(t *testing.T) {
	cause := errors.New("boom")
	e := ErrSubscriptionNotFound.WithCause(cause).WithMessage("subscription %d not found", 7)

	assert.Equal(t, "subscription 7 not found", e.Error())
	assert.Equal(t, ErrSubscriptionNotFound.Code, e.Code)
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "subscription not found", ErrSubscriptionNotFound.Message)
	assert.Nil(t, ErrSubscriptionNotFound.Cause)
}

func TestAppError_Nil(t *testing.T) {
	var e *AppError
	assert.Equal(t, "OK", e.Error())
	assert.Nil(t, e.WithCause(errors.New("x")))
	assert.Nil(t, e.WithMessage("x"))
}

func TestHTTPStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatusOf(nil))
	assert.Equal(t, http.StatusConflict, HTTPStatusOf(ErrSweepInProgress))
	assert.Equal(t, http.StatusConflict, HTTPStatusOf(errors.Wrap(ErrSubscriptionExists, "create")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusOf(errors.New("plain")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusOf(&AppError{Code: "x"}))
}

func TestIsCode(t *testing.T) {
	err := errors.Wrap(ErrUserHasNoEmail.WithMessage("user 3 has no email"), "test trigger")
	assert.True(t, IsCode(err, ErrUserHasNoEmail.Code))
	assert.False(t, IsCode(err, ErrUnknownUser.Code))
	assert.False(t, IsCode(errors.New("plain"), ErrUnknownUser.Code))
}
