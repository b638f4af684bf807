package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[*AppError]int{
		NotFound("appointment", nil):         http.StatusNotFound,
		BadRequest("bad", nil):               http.StatusBadRequest,
		Unauthorized(nil):                    http.StatusUnauthorized,
		Forbidden("no"):                      http.StatusForbidden,
		Conflict("full", nil):                http.StatusConflict,
		Unprocessable("invalid", []string{}): http.StatusUnprocessableEntity,
		Unavailable("down", nil):             http.StatusServiceUnavailable,
		Internal(fmt.Errorf("boom")):         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, err.HTTPStatus(), err.Message)
	}
}

func TestAsThroughWrapping(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	wrapped := fmt.Errorf("failed to check slots: %w", Unavailable("could not verify slot availability", inner))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrUnavailable, appErr.Code)
	assert.ErrorIs(t, wrapped, inner)
	assert.Equal(t, "could not verify slot availability: connection refused", appErr.Error())

	_, ok = As(inner)
	assert.False(t, ok)
}
