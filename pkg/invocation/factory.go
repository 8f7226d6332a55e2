// Package invocation runs addon operations: per-invocation instance
// construction, the synchronous execution path with its state machine, and
// the deferred queue worker.
package invocation

import (
	"context"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/oauth"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

// Factory builds a fresh implementation instance per invocation. Instances
// carry no state between calls; everything they need rides in the
// Instantiation.
type Factory struct {
	store       storage.Store
	coordinator *oauth.Coordinator
	transport   *network.Transport
}

// NewFactory wires an instance factory.
func NewFactory(store storage.Store, coordinator *oauth.Coordinator, transport *network.Transport) *Factory {
	return &Factory{store: store, coordinator: coordinator, transport: transport}
}

// Instantiate constructs the provider implementation for one invocation.
// configured may be nil for bare-account invocations.
func (f *Factory) Instantiate(
	ctx context.Context,
	provider *addon.Provider,
	account *models.AuthorizedAccount,
	service *models.ExternalService,
	configured *models.ConfiguredAddon,
) (any, error) {
	config := addon.Config{
		ExternalAPIURL:    account.APIBaseURL(service),
		ExternalWebURL:    service.WebBaseURL,
		ExternalAccountID: account.ExternalAccountID,
		MaxUploadMB:       service.MaxUploadMB,
	}
	if configured != nil {
		config.ConnectedRootID = configured.ConnectedRootID
	}

	// Client-requestor providers need the decrypted credentials to build
	// their own client; network-requestor providers get headers injected at
	// send time, so an expired token seen here is refreshed on first use.
	creds, err := f.coordinator.FreshCredentials(ctx, account, service)
	if err != nil {
		return nil, err
	}

	inst := addon.Instantiation{
		Config:      config,
		Credentials: creds,
		Network: network.NewRequestor(
			f.transport,
			config.ExternalAPIURL,
			f.coordinator.CredentialsSourceFor(account, service),
		),
	}

	imp, err := provider.New(inst)
	if err != nil {
		return nil, gverrors.New(gverrors.KindUnexpectedAddonError, "constructing implementation", err)
	}
	return imp, nil
}
