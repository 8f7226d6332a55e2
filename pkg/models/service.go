// Package models holds the persisted domain records: external services and
// their OAuth client configs, user and resource references, authorized
// accounts, configured addons, credentials records, and operation
// invocations. Invariant checks live next to the types; persistence lives
// in pkg/storage.
package models

import (
	"time"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// ServiceQuirks is a bitset of provider protocol deviations.
type ServiceQuirks uint8

// Known quirks
const (
	// QuirkOnlyAccessToken marks OAuth2 providers without a refresh
	// endpoint; their access token is treated like a PAT.
	QuirkOnlyAccessToken ServiceQuirks = 1 << iota

	// QuirkNonRotatingRefreshToken marks providers whose refresh responses
	// omit a new refresh token; the stored one is kept.
	QuirkNonRotatingRefreshToken
)

// Has reports whether the quirk bit is set.
func (q ServiceQuirks) Has(quirk ServiceQuirks) bool {
	return q&quirk != 0
}

// ExternalService is one configured provider endpoint: which implementation
// drives it, what credentials it takes, and what capabilities it supports.
type ExternalService struct {
	ID   int64
	Name string

	// ProviderName keys into the addon registry, e.g. "BOX".
	ProviderName string

	// ImpNumber mirrors the registered provider's stable integer id.
	ImpNumber int

	CredentialFormat      credentials.Format
	SupportedCapabilities addon.Capabilities

	APIBaseURL  string
	WebBaseURL  string
	MaxUploadMB int

	// WBProviderKey is the key waterbutler uses for this provider, when it
	// differs from the lowercased provider name.
	WBProviderKey string

	Quirks ServiceQuirks

	OAuth2ClientConfigID *int64
	OAuth1ClientConfigID *int64

	Created  time.Time
	Modified time.Time
}

// WaterbutlerKey returns the provider key waterbutler addresses this
// service by.
func (s *ExternalService) WaterbutlerKey() string {
	if s.WBProviderKey != "" {
		return s.WBProviderKey
	}
	return s.ProviderName
}

// Validate checks the service's internal consistency.
func (s *ExternalService) Validate() error {
	if s.ProviderName == "" || s.ImpNumber <= 0 {
		return gverrors.Newf(gverrors.KindInvalidArguments,
			"service %q needs a provider name and imp number", s.Name)
	}
	switch s.CredentialFormat {
	case credentials.FormatOAuth2:
		if s.OAuth2ClientConfigID == nil {
			return gverrors.Newf(gverrors.KindInvalidArguments,
				"oauth2 service %q has no client config", s.Name)
		}
	case credentials.FormatOAuth1a:
		if s.OAuth1ClientConfigID == nil {
			return gverrors.Newf(gverrors.KindInvalidArguments,
				"oauth1 service %q has no client config", s.Name)
		}
	}
	return nil
}

// OAuth2ClientConfig holds one OAuth2 app registration.
type OAuth2ClientConfig struct {
	ID           int64
	AuthURI      string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	Created  time.Time
	Modified time.Time
}

// OAuth1ClientConfig holds one OAuth1a app registration.
type OAuth1ClientConfig struct {
	ID              int64
	RequestTokenURL string
	AuthURL         string
	AccessTokenURL  string
	ClientKey       string
	ClientSecret    string

	Created  time.Time
	Modified time.Time
}
