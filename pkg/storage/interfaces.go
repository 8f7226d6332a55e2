// Package storage defines the persistence interfaces for the gateway's
// domain records. The SQLite implementation lives in the sqlite
// subpackage.
package storage

import (
	"context"
	"time"

	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
)

// ServiceStore manages external services and their OAuth client configs.
type ServiceStore interface {
	CreateService(ctx context.Context, service *models.ExternalService) error
	GetService(ctx context.Context, id int64) (*models.ExternalService, error)
	ListServices(ctx context.Context) ([]*models.ExternalService, error)

	CreateOAuth2ClientConfig(ctx context.Context, config *models.OAuth2ClientConfig) error
	GetOAuth2ClientConfig(ctx context.Context, id int64) (*models.OAuth2ClientConfig, error)
	CreateOAuth1ClientConfig(ctx context.Context, config *models.OAuth1ClientConfig) error
	GetOAuth1ClientConfig(ctx context.Context, id int64) (*models.OAuth1ClientConfig, error)
}

// UserStore manages user references, including deactivation and merge.
type UserStore interface {
	// EnsureUser returns the user reference for a URI, creating it if new.
	EnsureUser(ctx context.Context, userURI string) (*models.UserReference, error)
	GetUser(ctx context.Context, id int64) (*models.UserReference, error)
	GetUserByURI(ctx context.Context, userURI string) (*models.UserReference, error)

	// DeactivateUser marks the user inactive; their accounts remain for
	// audit but are refused invocations.
	DeactivateUser(ctx context.Context, id int64) error

	// MergeUsers transfers fromID's accounts to toID and deactivates
	// fromID, atomically.
	MergeUsers(ctx context.Context, fromID, toID int64) error
}

// ResourceStore manages resource references.
type ResourceStore interface {
	EnsureResource(ctx context.Context, resourceURI string) (*models.ResourceReference, error)
	GetResource(ctx context.Context, id int64) (*models.ResourceReference, error)
}

// AccountStore manages authorized accounts and configured addons.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.AuthorizedAccount) error
	GetAccount(ctx context.Context, id int64) (*models.AuthorizedAccount, error)
	UpdateAccount(ctx context.Context, account *models.AuthorizedAccount) error
	DeleteAccount(ctx context.Context, id int64) error

	// ListAccountsForUser returns the user's accounts; activeOnly filters
	// out accounts of deactivated users.
	ListAccountsForUser(ctx context.Context, userID int64, activeOnly bool) ([]*models.AuthorizedAccount, error)

	// GetAccountByCredentialsID walks the credentials FK backwards, used by
	// the OAuth callbacks to find whose handshake just completed.
	GetAccountByCredentialsID(ctx context.Context, credentialsID int64) (*models.AuthorizedAccount, error)

	CreateConfiguredAddon(ctx context.Context, addon *models.ConfiguredAddon) error
	GetConfiguredAddon(ctx context.Context, id int64) (*models.ConfiguredAddon, error)
	DeleteConfiguredAddon(ctx context.Context, id int64) error

	// FindConfiguredAddon resolves the waterbutler addressing pair
	// (resource URI, provider key) to a configured addon.
	FindConfiguredAddon(ctx context.Context, resourceURI, wbProviderKey string) (*models.ConfiguredAddon, error)
}

// CredentialsStore manages encrypted credentials records.
type CredentialsStore interface {
	CreateCredentials(ctx context.Context, creds *models.ExternalCredentials) error
	GetCredentials(ctx context.Context, id int64) (*models.ExternalCredentials, error)

	// GetCredentialsByStateToken resolves a pending OAuth2 authorization.
	// State tokens are unique at the schema level.
	GetCredentialsByStateToken(ctx context.Context, stateToken string) (*models.ExternalCredentials, error)

	// GetCredentialsByOAuth1RequestToken correlates an OAuth1a callback
	// with its pending handshake.
	GetCredentialsByOAuth1RequestToken(ctx context.Context, requestToken string) (*models.ExternalCredentials, error)

	// UpdateCredentials replaces the record's blob, key parameters, and
	// handshake scratch fields, bumping modified.
	UpdateCredentials(ctx context.Context, creds *models.ExternalCredentials) error
	DeleteCredentials(ctx context.Context, id int64) error

	// ListCredentialsModifiedBefore feeds the encryption-rotation sweep:
	// records untouched since the cutoff, oldest first.
	ListCredentialsModifiedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.ExternalCredentials, error)
}

// InvocationStore manages operation invocation records.
type InvocationStore interface {
	CreateInvocation(ctx context.Context, inv *models.OperationInvocation) error
	GetInvocation(ctx context.Context, id string) (*models.OperationInvocation, error)

	// ClaimInvocation is the dibs compare-and-set: STARTING to IN_PROGRESS.
	// ErrStaleStatus means another worker got there first.
	ClaimInvocation(ctx context.Context, id string) error

	// FinalizeInvocation writes the terminal status with its result or
	// error fields.
	FinalizeInvocation(ctx context.Context, inv *models.OperationInvocation) error

	ListInvocationsByOperation(ctx context.Context, operationName string, limit int) ([]*models.OperationInvocation, error)
}

// Store aggregates every persistence concern behind one handle.
type Store interface {
	ServiceStore
	UserStore
	ResourceStore
	AccountStore
	CredentialsStore
	InvocationStore

	Close() error
}
