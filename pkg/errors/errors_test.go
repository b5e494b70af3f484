package errors

import (
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeNotFound, CodeOf(ErrDateNotFound))
	assert.Equal(t, CodeUnknown, CodeOf(pkgerrors.New("boom")))

	wrapped := pkgerrors.Wrap(ErrRequestNotPending, "accept")
	assert.Equal(t, CodeFailedPrecondition, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrRequestNotPending)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrValidation(pkgerrors.New("x")): http.StatusBadRequest,
		ErrRequestNotFound:                http.StatusNotFound,
		ErrDuplicateRequest:               http.StatusConflict,
		ErrNotRequestHost:                 http.StatusForbidden,
		ErrInvalidCredentials:             http.StatusUnauthorized,
		ErrRequestNotPending:              http.StatusConflict,
		ErrUploadUnavailable:              http.StatusServiceUnavailable,
		ErrStore("insert", pkgerrors.New("db down")): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	err := ErrStore("requests.insert", pkgerrors.New("pq: connection refused"))
	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Equal(t, "request not found", PublicMessage(ErrRequestNotFound))
}
