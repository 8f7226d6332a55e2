package v1

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/oauth"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

// HMAC authentication headers for the waterbutler surface.
const (
	HMACKeyIDHeader     = "X-Authorization-Key-ID"
	HMACTimestampHeader = "X-Authorization-Timestamp"
	HMACSignatureHeader = "X-Authorization-Signature"
)

// signatureWindow bounds timestamp skew on signed requests, matched to the
// invocation deadline so a signature stays valid for exactly one attempt.
const signatureWindow = 110 * time.Second

// maxSignedBodyBytes caps how much request body the verifier will hash.
const maxSignedBodyBytes = 1 << 20

// WaterbutlerRouter sets up the machine-to-machine endpoint waterbutler
// calls to exchange an addressed configured addon for live credentials and
// connection settings.
func WaterbutlerRouter(store storage.Store, coordinator *oauth.Coordinator, sharedKeys map[string]string) http.Handler {
	routes := &waterbutlerRoutes{store: store, coordinator: coordinator, sharedKeys: sharedKeys}
	r := chi.NewRouter()
	r.Post("/settings", routes.getSettings)
	return r
}

type waterbutlerRoutes struct {
	store       storage.Store
	coordinator *oauth.Coordinator
	sharedKeys  map[string]string
}

type waterbutlerRequest struct {
	// ResourceURI names the parent-platform resource (project) the addon is
	// configured on.
	ResourceURI string `json:"resource_uri"`

	// ProviderKey is the waterbutler provider key, e.g. "box".
	ProviderKey string `json:"provider_key"`
}

type waterbutlerSettings struct {
	ExternalAPIURL    string `json:"external_api_url"`
	ConnectedRoot     string `json:"connected_root"`
	ProviderKey       string `json:"provider_key"`
	ExternalAccountID string `json:"external_account_id"`
	MaxUploadMB       int    `json:"max_upload_mb,omitempty"`
}

type waterbutlerResponse struct {
	Credentials map[string]string   `json:"credentials"`
	Settings    waterbutlerSettings `json:"settings"`
}

// verifySignature checks the request's HMAC-SHA256 signature over the
// method, path, timestamp, and body, and bounds the timestamp skew.
func (h *waterbutlerRoutes) verifySignature(r *http.Request, body []byte) error {
	keyID := r.Header.Get(HMACKeyIDHeader)
	secret, ok := h.sharedKeys[keyID]
	if !ok {
		return gverrors.New(gverrors.KindUnauthorized, "unknown signing key", nil)
	}

	timestamp := r.Header.Get(HMACTimestampHeader)
	signedAt, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return gverrors.New(gverrors.KindUnauthorized, "malformed signature timestamp", err)
	}
	if skew := time.Since(signedAt); skew > signatureWindow || skew < -signatureWindow {
		return gverrors.New(gverrors.KindUnauthorized, "signature timestamp outside accepted window", nil)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(r.Method))
	mac.Write([]byte("\n"))
	mac.Write([]byte(r.URL.Path))
	mac.Write([]byte("\n"))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("\n"))
	mac.Write(body)

	provided, err := hex.DecodeString(r.Header.Get(HMACSignatureHeader))
	if err != nil || !hmac.Equal(provided, mac.Sum(nil)) {
		return gverrors.New(gverrors.KindUnauthorized, "signature mismatch", nil)
	}
	return nil
}

func (h *waterbutlerRoutes) getSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes))
	if err != nil {
		writeError(w, gverrors.InvalidArguments("reading request body", err))
		return
	}
	if err := h.verifySignature(r, body); err != nil {
		writeError(w, err)
		return
	}

	var req waterbutlerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, gverrors.InvalidArguments("malformed request body", err))
		return
	}
	if req.ResourceURI == "" || req.ProviderKey == "" {
		writeError(w, gverrors.Newf(gverrors.KindInvalidArguments,
			"resource_uri and provider_key are required"))
		return
	}

	ctx := r.Context()
	configured, err := h.store.FindConfiguredAddon(ctx, req.ResourceURI, req.ProviderKey)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, gverrors.NotFound("no configured addon for resource and provider"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := h.store.GetAccount(ctx, configured.AuthorizedAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	service, err := h.store.GetService(ctx, account.ExternalServiceID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Refresh-before-return: waterbutler gets a token with a full freshness
	// window, never one about to expire mid-transfer.
	creds, err := h.coordinator.FreshCredentials(ctx, account, service)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, waterbutlerResponse{
		Credentials: waterbutlerCredentials(creds, service),
		Settings: waterbutlerSettings{
			ExternalAPIURL:    account.APIBaseURL(service),
			ConnectedRoot:     configured.ConnectedRootID,
			ProviderKey:       service.WaterbutlerKey(),
			ExternalAccountID: account.ExternalAccountID,
			MaxUploadMB:       service.MaxUploadMB,
		},
	})
}

// waterbutlerCredentials converts typed credentials into the flat shapes
// waterbutler's provider drivers expect.
func waterbutlerCredentials(creds credentials.Credentials, service *models.ExternalService) map[string]string {
	switch c := creds.(type) {
	case credentials.OAuth2:
		return map[string]string{"token": c.AccessToken}
	case credentials.AccessToken:
		return map[string]string{"token": c.Token}
	case credentials.OAuth1:
		return map[string]string{"token": c.Token, "token_secret": c.TokenSecret}
	case credentials.UsernamePassword:
		return map[string]string{
			"username": c.Username,
			"password": c.Password,
			"host":     service.APIBaseURL,
		}
	case credentials.AccessKeySecretKey:
		return map[string]string{"access_key": c.AccessKey, "secret_key": c.SecretKey}
	default:
		return map[string]string{}
	}
}
