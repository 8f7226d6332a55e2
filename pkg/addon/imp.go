package addon

import (
	"context"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
)

// Config is the connection snapshot handed to every implementation instance.
type Config struct {
	// ExternalAPIURL is the prefix URL all constrained requests resolve under.
	ExternalAPIURL string

	// ExternalWebURL is the provider's browsable base URL, for building
	// user-facing links.
	ExternalWebURL string

	// ConnectedRootID is the configured addon's root folder within the
	// account, empty when unconfigured.
	ConnectedRootID string

	// ExternalAccountID is the provider-side account identifier.
	ExternalAccountID string

	// MaxUploadMB caps upload sizes advertised to the parent platform.
	MaxUploadMB int
}

// Instantiation carries everything a provider constructor may need. Network
// is set for network-requestor providers; Credentials is set for
// client-requestor providers that build their own SDK client.
type Instantiation struct {
	Config      Config
	Network     *network.Requestor
	Credentials credentials.Credentials
}

// Constructor builds a fresh implementation instance for one invocation.
// Instances must not retain state between calls.
type Constructor func(inst Instantiation) (any, error)

// AccountIDResolver is an optional hook: implementations that can ask the
// provider for its account identifier satisfy it, and the OAuth callbacks
// call it once credentials are confirmed.
type AccountIDResolver interface {
	ResolveAccountID(ctx context.Context, net *network.Requestor) (string, error)
}
