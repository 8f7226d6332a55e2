package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

func TestOAuth2Validation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		creds OAuth2
		valid bool
	}{
		{
			name:  "active token pair",
			creds: OAuth2{AccessToken: "AT", RefreshToken: "RT"},
			valid: true,
		},
		{
			name:  "in-flight authorization",
			creds: OAuth2{StateToken: "state"},
			valid: true,
		},
		{
			name:  "neither access nor state token",
			creds: OAuth2{RefreshToken: "RT"},
			valid: false,
		},
		{
			name:  "both access and state token",
			creds: OAuth2{AccessToken: "AT", RefreshToken: "RT", StateToken: "state"},
			valid: false,
		},
		{
			name:  "access token without refresh token",
			creds: OAuth2{AccessToken: "AT"},
			valid: false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.creds.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, gverrors.KindInvalidCredentials, gverrors.KindOf(err))
			}
		})
	}
}

func TestOAuth2Expired(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	assert.True(t, OAuth2{}.Expired(0), "absent token is always expired")
	assert.True(t, OAuth2{AccessToken: "AT", AccessTokenExpiresAt: &past}.Expired(0))
	assert.False(t, OAuth2{AccessToken: "AT", AccessTokenExpiresAt: &future}.Expired(0))
	assert.True(t, OAuth2{AccessToken: "AT", AccessTokenExpiresAt: &future}.Expired(2*time.Hour),
		"freshness window counts as expired")
	assert.False(t, OAuth2{AccessToken: "AT"}.Expired(0), "no recorded expiry means not expired")
}

func TestAuthHeaders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Bearer AT1", OAuth2{AccessToken: "AT1"}.AuthHeaders().Get("Authorization"))
	assert.Equal(t, "Bearer pat", AccessToken{Token: "pat"}.AuthHeaders().Get("Authorization"))
	// "user:pass" base64
	assert.Equal(t, "Basic dXNlcjpwYXNz",
		UsernamePassword{Username: "user", Password: "pass"}.AuthHeaders().Get("Authorization"))
	assert.Empty(t, AccessKeySecretKey{AccessKey: "k", SecretKey: "s"}.AuthHeaders())
}

func TestEncodeDecodeJSON(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		creds Credentials
	}{
		{"oauth2", OAuth2{AccessToken: "AT", RefreshToken: "RT", AuthorizedScopes: []string{"read"}}},
		{"oauth1", OAuth1{Token: "tok", TokenSecret: "sec"}},
		{"access token", AccessToken{Token: "pat"}},
		{"username password", UsernamePassword{Username: "u", Password: "p"}},
		{"key pair", AccessKeySecretKey{AccessKey: "AK", SecretKey: "SK"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			encoded, err := EncodeJSON(tc.creds)
			require.NoError(t, err)

			decoded, err := DecodeJSON(tc.creds.Format(), encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.creds, decoded)
		})
	}
}

func TestEncodeJSONValidatesFirst(t *testing.T) {
	t.Parallel()

	_, err := EncodeJSON(OAuth2{AccessToken: "AT"})
	require.Error(t, err)
	assert.Equal(t, gverrors.KindInvalidCredentials, gverrors.KindOf(err))
}

func TestDecodeJSONUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := DecodeJSON(Format("carrier_pigeon"), []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, gverrors.KindInvalidCredentials, gverrors.KindOf(err))
}
