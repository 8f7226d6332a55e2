package oauth

import (
	"context"
	"errors"

	"github.com/dghubble/oauth1"

	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

func (c *Coordinator) oauth1Config(clientConfig *models.OAuth1ClientConfig) *oauth1.Config {
	return &oauth1.Config{
		ConsumerKey:    clientConfig.ClientKey,
		ConsumerSecret: clientConfig.ClientSecret,
		CallbackURL:    c.oauth1RedirectURI(),
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: clientConfig.RequestTokenURL,
			AuthorizeURL:    clientConfig.AuthURL,
			AccessTokenURL:  clientConfig.AccessTokenURL,
		},
	}
}

func (c *Coordinator) oauth1RedirectURI() string {
	return trimTrailingSlash(c.callbackBaseURL) + "/oauth1/callback"
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// InitiateOAuth1 runs the first handshake leg: fetch a temporary request
// token, stash it with its secret on the credentials record, and return the
// provider authorization URL.
func (c *Coordinator) InitiateOAuth1(
	ctx context.Context,
	account *models.AuthorizedAccount,
	clientConfig *models.OAuth1ClientConfig,
) (string, error) {
	config := c.oauth1Config(clientConfig)

	requestToken, requestSecret, err := config.RequestToken()
	if err != nil {
		return "", gverrors.CredentialError("fetching oauth1 request token", err)
	}

	record, err := c.newRecord(credentials.OAuth1{Token: requestToken, TokenSecret: requestSecret})
	if err != nil {
		return "", err
	}
	record.OAuth1RequestToken = requestToken
	record.OAuth1RequestTokenSecret = requestSecret
	if _, err := c.bindRecord(ctx, account, record); err != nil {
		return "", err
	}

	authURL, err := config.AuthorizationURL(requestToken)
	if err != nil {
		return "", gverrors.CredentialError("building oauth1 authorization URL", err)
	}
	return authURL.String(), nil
}

// HandleOAuth1Callback exchanges the verified request token for permanent
// credentials and clears the handshake scratch fields.
func (c *Coordinator) HandleOAuth1Callback(ctx context.Context, oauthToken, verifier string) (*models.AuthorizedAccount, error) {
	record, err := c.store.GetCredentialsByOAuth1RequestToken(ctx, oauthToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, gverrors.New(gverrors.KindNotFound, "no pending oauth1 handshake for token", err)
		}
		return nil, err
	}
	account, err := c.store.GetAccountByCredentialsID(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	service, err := c.store.GetService(ctx, account.ExternalServiceID)
	if err != nil {
		return nil, err
	}
	if service.OAuth1ClientConfigID == nil {
		return nil, gverrors.CredentialError("service has no oauth1 client config", nil)
	}
	clientConfig, err := c.store.GetOAuth1ClientConfig(ctx, *service.OAuth1ClientConfigID)
	if err != nil {
		return nil, err
	}

	accessToken, accessSecret, err := c.oauth1Config(clientConfig).AccessToken(
		oauthToken, record.OAuth1RequestTokenSecret, verifier)
	if err != nil {
		return nil, gverrors.CredentialError("exchanging oauth1 verifier", err)
	}

	permanent := credentials.OAuth1{Token: accessToken, TokenSecret: accessSecret}
	if err := c.encodeInto(record, permanent); err != nil {
		return nil, err
	}
	record.OAuth1RequestToken = ""
	record.OAuth1RequestTokenSecret = ""
	if err := c.store.UpdateCredentials(ctx, record); err != nil {
		return nil, err
	}

	if err := c.resolveAccountID(ctx, account, permanent); err != nil {
		logger.Warnf("resolving external account id for account %d: %v", account.ID, err)
	}
	return account, nil
}
