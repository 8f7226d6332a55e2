package oauth

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
)

// InitiateOAuth2 starts the authorization-code flow: a fresh state token is
// stored on the account's credentials record and the provider auth URL is
// returned for the user to visit.
func (c *Coordinator) InitiateOAuth2(
	ctx context.Context,
	account *models.AuthorizedAccount,
	clientConfig *models.OAuth2ClientConfig,
) (string, error) {
	state, err := generateStateToken()
	if err != nil {
		return "", err
	}

	record, err := c.newRecord(credentials.OAuth2{StateToken: state})
	if err != nil {
		return "", err
	}
	record.StateToken = state
	if _, err := c.bindRecord(ctx, account, record); err != nil {
		return "", err
	}

	return c.buildAuthURL(clientConfig, state)
}

// buildAuthURL renders the provider authorization URL. Scopes are joined
// with commas; several providers reject the space-separated form.
func (c *Coordinator) buildAuthURL(clientConfig *models.OAuth2ClientConfig, state string) (string, error) {
	authURL, err := url.Parse(clientConfig.AuthURI)
	if err != nil {
		return "", gverrors.New(gverrors.KindInvalidArguments, "parsing auth URI", err)
	}
	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", clientConfig.ClientID)
	query.Set("redirect_uri", c.oauth2RedirectURI())
	query.Set("state", state)
	if len(clientConfig.Scopes) > 0 {
		query.Set("scope", strings.Join(clientConfig.Scopes, ","))
	}
	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

func (c *Coordinator) oauth2RedirectURI() string {
	return strings.TrimSuffix(c.callbackBaseURL, "/") + "/oauth2/callback"
}

func (c *Coordinator) oauth2Config(clientConfig *models.OAuth2ClientConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientConfig.ClientID,
		ClientSecret: clientConfig.ClientSecret,
		RedirectURL:  c.oauth2RedirectURI(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  clientConfig.AuthURI,
			TokenURL: clientConfig.TokenURI,
		},
	}
}

// withHTTPClient routes x/oauth2's token calls through the coordinator's
// client.
func (c *Coordinator) withHTTPClient(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// HandleOAuth2Callback resolves the state token, exchanges the code, and
// atomically replaces the pending state with the granted tokens.
func (c *Coordinator) HandleOAuth2Callback(ctx context.Context, state, code string) (*models.AuthorizedAccount, error) {
	record, err := c.store.GetCredentialsByStateToken(ctx, state)
	if err != nil {
		return nil, gverrors.New(gverrors.KindNotFound, "no pending authorization for state token", err)
	}
	account, err := c.store.GetAccountByCredentialsID(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	service, err := c.store.GetService(ctx, account.ExternalServiceID)
	if err != nil {
		return nil, err
	}
	if service.OAuth2ClientConfigID == nil {
		return nil, gverrors.CredentialError("service has no oauth2 client config", nil)
	}
	clientConfig, err := c.store.GetOAuth2ClientConfig(ctx, *service.OAuth2ClientConfigID)
	if err != nil {
		return nil, err
	}

	token, err := c.oauth2Config(clientConfig).Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, gverrors.CredentialError("exchanging authorization code", err)
	}

	granted, err := grantedCredentials(token, clientConfig.Scopes, service.Quirks)
	if err != nil {
		return nil, err
	}
	if err := c.encodeInto(record, granted); err != nil {
		return nil, err
	}
	record.StateToken = ""
	if err := c.store.UpdateCredentials(ctx, record); err != nil {
		return nil, err
	}

	if err := c.resolveAccountID(ctx, account, granted); err != nil {
		logger.Warnf("resolving external account id for account %d: %v", account.ID, err)
	}
	return account, nil
}

// grantedCredentials shapes a token response into stored credentials.
// Providers with the only-access-token quirk never hand out refresh tokens,
// so their grant degrades to a plain access token.
func grantedCredentials(token *oauth2.Token, scopes []string, quirks models.ServiceQuirks) (credentials.Credentials, error) {
	if quirks.Has(models.QuirkOnlyAccessToken) || token.RefreshToken == "" {
		if quirks.Has(models.QuirkOnlyAccessToken) {
			return credentials.AccessToken{Token: token.AccessToken}, nil
		}
		return nil, gverrors.CredentialError("token response carried no refresh token", nil)
	}
	granted := credentials.OAuth2{
		AccessToken:      token.AccessToken,
		RefreshToken:     token.RefreshToken,
		AuthorizedScopes: scopes,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		granted.AccessTokenExpiresAt = &expiry
	}
	return granted, nil
}

// refreshOAuth2 refreshes one credentials record's tokens. Concurrent
// callers coalesce in-process through singleflight and across processes
// through the dibs lease; whoever holds the lease re-checks freshness first,
// so at most one token call goes out.
func (c *Coordinator) refreshOAuth2(ctx context.Context, recordID int64, service *models.ExternalService) (credentials.OAuth2, error) {
	key := refreshKey(recordID)
	result, err, _ := c.group.Do(key, func() (any, error) {
		lease, err := c.locker.AcquireWait(ctx, key, 2*c.refreshWait, c.refreshWait)
		if err != nil {
			return nil, gverrors.CredentialError("waiting for concurrent refresh", err)
		}
		defer func() {
			if releaseErr := lease.Release(ctx); releaseErr != nil {
				logger.Warnf("releasing refresh dibs for credentials %d: %v", recordID, releaseErr)
			}
		}()
		return c.refreshOAuth2Locked(ctx, recordID, service)
	})
	if err != nil {
		return credentials.OAuth2{}, err
	}
	return result.(credentials.OAuth2), nil
}

func refreshKey(recordID int64) string {
	return "gravyvalet:refresh:" + strconv.FormatInt(recordID, 10)
}

func (c *Coordinator) refreshOAuth2Locked(ctx context.Context, recordID int64, service *models.ExternalService) (credentials.OAuth2, error) {
	// Re-load under the lease: another process may have refreshed while we
	// waited.
	record, err := c.store.GetCredentials(ctx, recordID)
	if err != nil {
		return credentials.OAuth2{}, gverrors.CredentialError("reloading credentials", err)
	}
	decoded, err := c.decodeRecord(record)
	if err != nil {
		return credentials.OAuth2{}, err
	}
	current, ok := decoded.(credentials.OAuth2)
	if !ok {
		return credentials.OAuth2{}, gverrors.CredentialError("credentials changed format mid-refresh", nil)
	}
	if !current.Expired(FreshnessWindow) {
		return current, nil
	}
	if current.RefreshToken == "" {
		return credentials.OAuth2{}, gverrors.CredentialError("no refresh token available", nil)
	}

	if service.OAuth2ClientConfigID == nil {
		return credentials.OAuth2{}, gverrors.CredentialError("service has no oauth2 client config", nil)
	}
	clientConfig, err := c.store.GetOAuth2ClientConfig(ctx, *service.OAuth2ClientConfigID)
	if err != nil {
		return credentials.OAuth2{}, err
	}

	stale := &oauth2.Token{
		AccessToken:  current.AccessToken,
		RefreshToken: current.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}
	refreshed, err := c.oauth2Config(clientConfig).TokenSource(c.withHTTPClient(ctx), stale).Token()
	if err != nil {
		return credentials.OAuth2{}, gverrors.CredentialError("refreshing access token", err)
	}

	next := credentials.OAuth2{
		AccessToken:      refreshed.AccessToken,
		RefreshToken:     refreshed.RefreshToken,
		AuthorizedScopes: current.AuthorizedScopes,
	}
	if next.RefreshToken == "" || service.Quirks.Has(models.QuirkNonRotatingRefreshToken) {
		next.RefreshToken = current.RefreshToken
	}
	if !refreshed.Expiry.IsZero() {
		expiry := refreshed.Expiry
		next.AccessTokenExpiresAt = &expiry
	}

	if err := c.encodeInto(record, next); err != nil {
		return credentials.OAuth2{}, err
	}
	if err := c.store.UpdateCredentials(ctx, record); err != nil {
		return credentials.OAuth2{}, gverrors.CredentialError("persisting refreshed tokens", err)
	}
	return next, nil
}
