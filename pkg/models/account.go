package models

import (
	"time"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// UserReference identifies a user of the parent platform by URI. The
// gateway never stores user profiles, only this opaque reference.
type UserReference struct {
	ID      int64
	UserURI string

	// Deactivated is set when the user is deactivated or merged away.
	// Deactivated users keep their rows for audit but are filtered from
	// active listings and refused invocations.
	Deactivated *time.Time

	Created  time.Time
	Modified time.Time
}

// Active reports whether the user may still invoke operations.
func (u *UserReference) Active() bool {
	return u.Deactivated == nil
}

// ResourceReference identifies a parent-platform resource (e.g. a project)
// by URI.
type ResourceReference struct {
	ID          int64
	ResourceURI string

	Created  time.Time
	Modified time.Time
}

// AuthorizedAccount is a user's grant against one external service, bound
// to a credentials record.
type AuthorizedAccount struct {
	ID                int64
	UserReferenceID   int64
	ExternalServiceID int64
	CredentialsID     *int64

	AuthorizedCapabilities addon.Capabilities

	// ExternalAccountID is the provider-side account identifier, resolved
	// after the credentials are first confirmed.
	ExternalAccountID string

	DisplayName string

	// APIBaseURLOverride lets a single account point at a self-hosted
	// deployment of the service.
	APIBaseURLOverride string

	Created  time.Time
	Modified time.Time
}

// APIBaseURL resolves the effective prefix URL for the account.
func (a *AuthorizedAccount) APIBaseURL(service *ExternalService) string {
	if a.APIBaseURLOverride != "" {
		return a.APIBaseURLOverride
	}
	return service.APIBaseURL
}

// Validate enforces that the account's grant stays within what the service
// supports.
func (a *AuthorizedAccount) Validate(service *ExternalService) error {
	if !a.AuthorizedCapabilities.SubsetOf(service.SupportedCapabilities) {
		return gverrors.Newf(gverrors.KindInvalidArguments,
			"authorized capabilities %s exceed service %q support %s",
			a.AuthorizedCapabilities, service.Name, service.SupportedCapabilities)
	}
	return nil
}

// ConfiguredAddon connects an authorized account to a resource, optionally
// rooted at a folder within the account.
type ConfiguredAddon struct {
	ID                  int64
	AuthorizedAccountID int64
	ResourceReferenceID int64

	ConnectedCapabilities addon.Capabilities

	// ConnectedRootID scopes the addon to a folder within the account,
	// empty for the account root.
	ConnectedRootID string

	DisplayName string

	Created  time.Time
	Modified time.Time
}

// Validate enforces that the addon's connection stays within the account's
// grant.
func (c *ConfiguredAddon) Validate(account *AuthorizedAccount) error {
	if !c.ConnectedCapabilities.SubsetOf(account.AuthorizedCapabilities) {
		return gverrors.Newf(gverrors.KindInvalidArguments,
			"connected capabilities %s exceed account authorization %s",
			c.ConnectedCapabilities, account.AuthorizedCapabilities)
	}
	return nil
}

// ExternalCredentials is the persisted, encrypted credentials record. The
// blob is opaque to everything but pkg/credentials; the key parameters ride
// alongside so any current-or-prior secret can decrypt it.
type ExternalCredentials struct {
	ID     int64
	Format credentials.Format

	EncryptedBlob []byte
	KeyParameters credentials.KeyParameters

	// StateToken is set only while an OAuth2 authorization is in flight;
	// the callback resolves the record by it.
	StateToken string

	// OAuth1 handshake scratch space, cleared once permanent tokens land.
	OAuth1RequestToken       string
	OAuth1RequestTokenSecret string

	Created  time.Time
	Modified time.Time
}
