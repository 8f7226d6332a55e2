package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("connection refused")
	err := TransportError("token endpoint unreachable", cause)

	assert.Equal(t, "TransportError: token endpoint unreachable: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := Forbidden("operation not connected")
	assert.Equal(t, "Forbidden: operation not connected", bare.Error())
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		expected Kind
	}{
		{
			name:     "classified error",
			err:      CredentialError("refresh failed", nil),
			expected: KindCredentialError,
		},
		{
			name:     "wrapped classified error",
			err:      fmt.Errorf("performing invocation: %w", DibsDenied("invocation already leased")),
			expected: KindDibsDenied,
		},
		{
			name:     "plain error",
			err:      stderrors.New("nil pointer dereference"),
			expected: KindUnexpectedAddonError,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, KindOf(tc.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		err    error
		status int
	}{
		{InvalidArguments("unknown key", nil), http.StatusBadRequest},
		{InvalidCredentials("access token without refresh token"), http.StatusBadRequest},
		{CredentialError("no credentials", nil), http.StatusUnauthorized},
		{Forbidden("capability not connected"), http.StatusForbidden},
		{NotFound("no such invocation"), http.StatusNotFound},
		{DibsDenied("leased"), http.StatusConflict},
		{Newf(KindTimeout, "deadline reached"), http.StatusGatewayTimeout},
		{ProviderError(503, "upstream unavailable"), http.StatusBadGateway},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.status, HTTPStatus(tc.err), "kind %s", KindOf(tc.err))
	}
}

func TestProviderErrorStatus(t *testing.T) {
	t.Parallel()

	err := ProviderError(http.StatusTooManyRequests, "rate limited")

	var classified *Error
	require.True(t, stderrors.As(err, &classified))
	assert.Equal(t, http.StatusTooManyRequests, classified.ProviderStatus)
}
