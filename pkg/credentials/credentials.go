// Package credentials models the typed credential variants gravyvalet
// stores for authorized accounts, and their at-rest encryption.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// Format tags the shape of a credentials blob. It always matches the
// credentials format declared by the owning ExternalService.
type Format string

// Credential formats
const (
	FormatOAuth2             Format = "oauth2"
	FormatOAuth1a            Format = "oauth1a"
	FormatAccessToken        Format = "access_token"
	FormatUsernamePassword   Format = "username_password"
	FormatAccessKeySecretKey Format = "access_key_secret_key"
)

// Credentials is the sum type over all credential variants.
type Credentials interface {
	// Format reports the variant tag.
	Format() Format

	// AuthHeaders returns the header tuples the constrained requestor
	// injects at send time.
	AuthHeaders() http.Header

	// Validate enforces the variant's invariants before any write.
	Validate() error
}

// AccessToken is a static personal access token.
type AccessToken struct {
	Token string `json:"access_token"`
}

// Format implements Credentials.
func (AccessToken) Format() Format { return FormatAccessToken }

// AuthHeaders implements Credentials.
func (c AccessToken) AuthHeaders() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + c.Token}}
}

// Validate implements Credentials.
func (c AccessToken) Validate() error {
	if c.Token == "" {
		return gverrors.InvalidCredentials("access token must not be empty")
	}
	return nil
}

// OAuth1 holds the permanent token pair from a completed OAuth1a handshake.
type OAuth1 struct {
	Token       string `json:"oauth_token"`
	TokenSecret string `json:"oauth_token_secret"`
}

// Format implements Credentials.
func (OAuth1) Format() Format { return FormatOAuth1a }

// AuthHeaders implements Credentials. Full per-request OAuth1 signing is a
// client-requestor concern; the plain token header covers providers (e.g.
// Zotero) that accept the token directly.
func (c OAuth1) AuthHeaders() http.Header {
	return http.Header{"Authorization": []string{`OAuth oauth_token="` + c.Token + `"`}}
}

// Validate implements Credentials.
func (c OAuth1) Validate() error {
	if c.Token == "" || c.TokenSecret == "" {
		return gverrors.InvalidCredentials("oauth1 credentials require both token and token secret")
	}
	return nil
}

// OAuth2 holds either an active token pair or a state token identifying an
// in-flight authorization, never both.
type OAuth2 struct {
	AccessToken          string     `json:"access_token,omitempty"`
	RefreshToken         string     `json:"refresh_token,omitempty"`
	AccessTokenExpiresAt *time.Time `json:"access_token_expires_at,omitempty"`
	StateToken           string     `json:"state_token,omitempty"`
	AuthorizedScopes     []string   `json:"authorized_scopes,omitempty"`
}

// Format implements Credentials.
func (OAuth2) Format() Format { return FormatOAuth2 }

// AuthHeaders implements Credentials.
func (c OAuth2) AuthHeaders() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + c.AccessToken}}
}

// Validate enforces the single OAuth2 rule: exactly one of access token or
// state token is set, and an access token implies a refresh token.
func (c OAuth2) Validate() error {
	if c.AccessToken == "" && c.StateToken == "" {
		return gverrors.InvalidCredentials(
			"oauth2 credentials without an active access token must specify " +
				"a state token to identify the active authorization flow")
	}
	if c.AccessToken != "" && c.StateToken != "" {
		return gverrors.InvalidCredentials(
			"oauth2 credentials may not carry both an access token and a state token")
	}
	if c.AccessToken != "" && c.RefreshToken == "" {
		return gverrors.InvalidCredentials(
			"oauth2 credentials with an active access token must also specify " +
				"a refresh token to enable renewing authorization")
	}
	return nil
}

// Expired reports whether the access token is absent or past the freshness
// window before its recorded expiry.
func (c OAuth2) Expired(window time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.AccessTokenExpiresAt == nil {
		return false
	}
	return time.Now().Add(window).After(*c.AccessTokenExpiresAt)
}

// UsernamePassword is a basic-auth credential pair.
type UsernamePassword struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Format implements Credentials.
func (UsernamePassword) Format() Format { return FormatUsernamePassword }

// AuthHeaders implements Credentials.
func (c UsernamePassword) AuthHeaders() http.Header {
	encoded := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	return http.Header{"Authorization": []string{"Basic " + encoded}}
}

// Validate implements Credentials.
func (c UsernamePassword) Validate() error {
	if c.Username == "" || c.Password == "" {
		return gverrors.InvalidCredentials("username and password must both be set")
	}
	return nil
}

// AccessKeySecretKey is an S3-style key pair. Request signing is provider
// specific, so no headers are injected here.
type AccessKeySecretKey struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// Format implements Credentials.
func (AccessKeySecretKey) Format() Format { return FormatAccessKeySecretKey }

// AuthHeaders implements Credentials.
func (AccessKeySecretKey) AuthHeaders() http.Header { return http.Header{} }

// Validate implements Credentials.
func (c AccessKeySecretKey) Validate() error {
	if c.AccessKey == "" || c.SecretKey == "" {
		return gverrors.InvalidCredentials("access key and secret key must both be set")
	}
	return nil
}

// EncodeJSON serializes credentials for encryption, validating first.
func EncodeJSON(c Credentials) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding credentials: %w", err)
	}
	return encoded, nil
}

// DecodeJSON parses a decrypted blob into the variant named by format.
func DecodeJSON(format Format, data []byte) (Credentials, error) {
	var parsed Credentials
	switch format {
	case FormatOAuth2:
		var c OAuth2
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, gverrors.New(gverrors.KindInvalidCredentials, "decoding oauth2 credentials", err)
		}
		parsed = c
	case FormatOAuth1a:
		var c OAuth1
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, gverrors.New(gverrors.KindInvalidCredentials, "decoding oauth1 credentials", err)
		}
		parsed = c
	case FormatAccessToken:
		var c AccessToken
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, gverrors.New(gverrors.KindInvalidCredentials, "decoding access token credentials", err)
		}
		parsed = c
	case FormatUsernamePassword:
		var c UsernamePassword
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, gverrors.New(gverrors.KindInvalidCredentials, "decoding username/password credentials", err)
		}
		parsed = c
	case FormatAccessKeySecretKey:
		var c AccessKeySecretKey
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, gverrors.New(gverrors.KindInvalidCredentials, "decoding key pair credentials", err)
		}
		parsed = c
	default:
		return nil, gverrors.Newf(gverrors.KindInvalidCredentials, "unknown credentials format %q", format)
	}
	return parsed, nil
}
