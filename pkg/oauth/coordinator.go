// Package oauth coordinates the OAuth2 and OAuth1a credential lifecycles:
// handshake initiation, callback exchange, and single-flight token refresh.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	"github.com/CenterForOpenScience/gravyvalet/pkg/dibs"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

const (
	// FreshnessWindow is how close to expiry an access token may get before
	// a refresh is forced.
	FreshnessWindow = 5 * time.Minute

	// DefaultRefreshWait bounds how long a caller waits on another
	// in-flight refresh.
	DefaultRefreshWait = 10 * time.Second

	stateTokenBytes = 24
)

// AccountIDResolver asks the provider for its account identifier once
// credentials are confirmed. Optional; providers without one leave the
// external account id empty.
type AccountIDResolver func(ctx context.Context, account *models.AuthorizedAccount, creds credentials.Credentials) (string, error)

// Coordinator owns the OAuth lifecycles for every credentials record.
type Coordinator struct {
	store           storage.Store
	encryptor       *credentials.Encryptor
	locker          *dibs.Locker
	httpClient      *http.Client
	callbackBaseURL string
	refreshWait     time.Duration

	// ResolveAccountID, when set, runs after a successful handshake.
	ResolveAccountID AccountIDResolver

	group singleflight.Group
}

// NewCoordinator wires a coordinator. httpClient is used for all token
// endpoint calls; callbackBaseURL is this deployment's public base URL.
func NewCoordinator(
	store storage.Store,
	encryptor *credentials.Encryptor,
	locker *dibs.Locker,
	httpClient *http.Client,
	callbackBaseURL string,
	refreshWait time.Duration,
) *Coordinator {
	if refreshWait <= 0 {
		refreshWait = DefaultRefreshWait
	}
	return &Coordinator{
		store:           store,
		encryptor:       encryptor,
		locker:          locker,
		httpClient:      httpClient,
		callbackBaseURL: callbackBaseURL,
		refreshWait:     refreshWait,
	}
}

// generateStateToken returns a fresh URL-safe token with at least 128 bits
// of entropy.
func generateStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// decodeRecord decrypts and decodes a stored credentials record.
func (c *Coordinator) decodeRecord(record *models.ExternalCredentials) (credentials.Credentials, error) {
	plaintext, err := c.encryptor.Decrypt(record.EncryptedBlob, record.KeyParameters)
	if err != nil {
		return nil, gverrors.CredentialError("decrypting stored credentials", err)
	}
	creds, err := credentials.DecodeJSON(record.Format, plaintext)
	if err != nil {
		return nil, gverrors.CredentialError("decoding stored credentials", err)
	}
	return creds, nil
}

// encodeInto encrypts creds into the record, reusing its key parameters.
func (c *Coordinator) encodeInto(record *models.ExternalCredentials, creds credentials.Credentials) error {
	plaintext, err := credentials.EncodeJSON(creds)
	if err != nil {
		return err
	}
	blob, err := c.encryptor.Encrypt(plaintext, record.KeyParameters)
	if err != nil {
		return gverrors.CredentialError("encrypting credentials", err)
	}
	record.Format = creds.Format()
	record.EncryptedBlob = blob
	return nil
}

// newRecord encrypts creds into a fresh record with fresh key parameters.
func (c *Coordinator) newRecord(creds credentials.Credentials) (*models.ExternalCredentials, error) {
	params, err := c.encryptor.FreshParams()
	if err != nil {
		return nil, gverrors.CredentialError("deriving key parameters", err)
	}
	record := &models.ExternalCredentials{KeyParameters: params}
	if err := c.encodeInto(record, creds); err != nil {
		return nil, err
	}
	return record, nil
}

// bindRecord attaches a credentials record to an account, creating or
// replacing as needed, and returns the persisted record.
func (c *Coordinator) bindRecord(ctx context.Context, account *models.AuthorizedAccount, record *models.ExternalCredentials) (*models.ExternalCredentials, error) {
	if account.CredentialsID != nil {
		existing, err := c.store.GetCredentials(ctx, *account.CredentialsID)
		if err != nil {
			return nil, err
		}
		existing.Format = record.Format
		existing.EncryptedBlob = record.EncryptedBlob
		existing.KeyParameters = record.KeyParameters
		existing.StateToken = record.StateToken
		existing.OAuth1RequestToken = record.OAuth1RequestToken
		existing.OAuth1RequestTokenSecret = record.OAuth1RequestTokenSecret
		if err := c.store.UpdateCredentials(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	if err := c.store.CreateCredentials(ctx, record); err != nil {
		return nil, err
	}
	account.CredentialsID = &record.ID
	if err := c.store.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}
	return record, nil
}

// SetCredentials stores non-OAuth credentials (PATs, username/password, key
// pairs) directly on the account.
func (c *Coordinator) SetCredentials(ctx context.Context, account *models.AuthorizedAccount, creds credentials.Credentials) error {
	record, err := c.newRecord(creds)
	if err != nil {
		return err
	}
	if _, err := c.bindRecord(ctx, account, record); err != nil {
		return err
	}
	return c.resolveAccountID(ctx, account, creds)
}

func (c *Coordinator) resolveAccountID(ctx context.Context, account *models.AuthorizedAccount, creds credentials.Credentials) error {
	if c.ResolveAccountID == nil {
		return nil
	}
	externalID, err := c.ResolveAccountID(ctx, account, creds)
	if err != nil {
		return err
	}
	if externalID == "" || externalID == account.ExternalAccountID {
		return nil
	}
	account.ExternalAccountID = externalID
	return c.store.UpdateAccount(ctx, account)
}

// FreshCredentials loads the account's credentials, refreshing OAuth2
// tokens that are inside the freshness window. The returned credentials
// are ready for AuthHeaders.
func (c *Coordinator) FreshCredentials(ctx context.Context, account *models.AuthorizedAccount, service *models.ExternalService) (credentials.Credentials, error) {
	if account.CredentialsID == nil {
		return nil, gverrors.CredentialError("account has no credentials", nil)
	}
	record, err := c.store.GetCredentials(ctx, *account.CredentialsID)
	if err != nil {
		return nil, gverrors.CredentialError("loading credentials", err)
	}
	creds, err := c.decodeRecord(record)
	if err != nil {
		return nil, err
	}

	oauth2Creds, ok := creds.(credentials.OAuth2)
	if !ok || service.Quirks.Has(models.QuirkOnlyAccessToken) {
		return creds, nil
	}
	if oauth2Creds.StateToken != "" {
		return nil, gverrors.CredentialError("authorization still in flight", nil)
	}
	if !oauth2Creds.Expired(FreshnessWindow) {
		return oauth2Creds, nil
	}
	return c.refreshOAuth2(ctx, record.ID, service)
}

// CredentialsSourceFor adapts the coordinator into the constrained
// requestor's credential source: headers are computed at send time, so a
// refresh that lands mid-invocation is picked up by the next request.
func (c *Coordinator) CredentialsSourceFor(account *models.AuthorizedAccount, service *models.ExternalService) network.CredentialsSource {
	return &refreshingSource{coordinator: c, account: account, service: service}
}

type refreshingSource struct {
	coordinator *Coordinator
	account     *models.AuthorizedAccount
	service     *models.ExternalService
}

func (s *refreshingSource) AuthHeaders(ctx context.Context) (http.Header, error) {
	creds, err := s.coordinator.FreshCredentials(ctx, s.account, s.service)
	if err != nil {
		return nil, err
	}
	return creds.AuthHeaders(), nil
}
