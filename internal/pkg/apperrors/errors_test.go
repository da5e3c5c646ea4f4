package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MapsStatus(t *testing.T) {
	cases := map[ErrorType]int{
		ErrInvalidRequest:   http.StatusBadRequest,
		ErrAuthFailed:       http.StatusUnauthorized,
		ErrUnauthorized:     http.StatusForbidden,
		ErrCapViolation:     http.StatusUnprocessableEntity,
		ErrAlreadyDone:      http.StatusConflict,
		ErrNothingToRelease: http.StatusConflict,
		ErrRateLimited:      http.StatusTooManyRequests,
		ErrReadOnly:         http.StatusServiceUnavailable,
		ErrUpstream:         http.StatusBadGateway,
		ErrInternal:         http.StatusInternalServerError,
	}
	for typ, status := range cases {
		assert.Equal(t, status, New(typ, "x", nil).HTTPStatus, string(typ))
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	orig := New(ErrCapViolation, "over cap", nil).WithKind("CapViolation")
	wrapped := fmt.Errorf("purchase: %w", orig)
	assert.Same(t, orig, Wrap(wrapped))

	plain := errors.New("boom")
	got := Wrap(plain)
	assert.Equal(t, ErrInternal, got.Type)
	assert.ErrorIs(t, got, plain)
}

func TestError_IncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	assert.Equal(t, "token ledger failure: connection refused", New(ErrUpstream, "token ledger failure", cause).Error())
	assert.Equal(t, "boom", New(ErrInternal, "boom", errors.New("boom")).Error())
}
