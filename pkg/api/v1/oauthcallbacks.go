package v1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
	"github.com/CenterForOpenScience/gravyvalet/pkg/oauth"
)

// OAuth2CallbackRouter sets up the provider-facing OAuth2 redirect
// endpoint. It is hit by the user's browser coming back from the provider,
// so responses are small human-readable pages rather than JSON.
func OAuth2CallbackRouter(coordinator *oauth.Coordinator) http.Handler {
	routes := &oauthRoutes{coordinator: coordinator}
	r := chi.NewRouter()
	r.Get("/callback", routes.oauth2Callback)
	return r
}

// OAuth1CallbackRouter sets up the OAuth1a counterpart of
// OAuth2CallbackRouter.
func OAuth1CallbackRouter(coordinator *oauth.Coordinator) http.Handler {
	routes := &oauthRoutes{coordinator: coordinator}
	r := chi.NewRouter()
	r.Get("/callback", routes.oauth1Callback)
	return r
}

type oauthRoutes struct {
	coordinator *oauth.Coordinator
}

func (h *oauthRoutes) oauth2Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		// The provider reported a denial or failure; no credentials changed.
		callbackPage(w, http.StatusBadRequest,
			fmt.Sprintf("Authorization failed: %s. You can close this window.", errCode))
		return
	}
	state, code := query.Get("state"), query.Get("code")
	if state == "" || code == "" {
		callbackPage(w, http.StatusBadRequest, "Missing state or code parameter.")
		return
	}

	account, err := h.coordinator.HandleOAuth2Callback(r.Context(), state, code)
	if err != nil {
		logger.Warnf("oauth2 callback failed: %v", err)
		callbackPage(w, gverrors.HTTPStatus(err), "Authorization could not be completed.")
		return
	}
	logger.Infof("oauth2 authorization completed for account %d", account.ID)
	callbackPage(w, http.StatusOK, "Authorization complete. You can close this window.")
}

func (h *oauthRoutes) oauth1Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	token, verifier := query.Get("oauth_token"), query.Get("oauth_verifier")
	if token == "" || verifier == "" {
		callbackPage(w, http.StatusBadRequest, "Missing oauth_token or oauth_verifier parameter.")
		return
	}

	account, err := h.coordinator.HandleOAuth1Callback(r.Context(), token, verifier)
	if err != nil {
		logger.Warnf("oauth1 callback failed: %v", err)
		callbackPage(w, gverrors.HTTPStatus(err), "Authorization could not be completed.")
		return
	}
	logger.Infof("oauth1 authorization completed for account %d", account.ID)
	callbackPage(w, http.StatusOK, "Authorization complete. You can close this window.")
}

func callbackPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, message)
}
