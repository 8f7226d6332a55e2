package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/invocation"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

// UserHeader carries the caller's user URI, asserted upstream by the parent
// platform's auth proxy.
const UserHeader = "X-User-URI"

// InvocationRouter sets up the invocation routes.
func InvocationRouter(engine *invocation.Engine, store storage.Store) http.Handler {
	routes := &invocationRoutes{engine: engine, store: store}
	r := chi.NewRouter()
	r.Post("/", routes.createInvocation)
	r.Get("/{invocationID}", routes.getInvocation)
	return r
}

type invocationRoutes struct {
	engine *invocation.Engine
	store  storage.Store
}

type invocationRequest struct {
	OperationName     string          `json:"operation_name"`
	Args              json.RawMessage `json:"args"`
	AccountID         int64           `json:"account_id"`
	ConfiguredAddonID *int64          `json:"configured_addon_id"`
}

type invocationResource struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	OperationName string          `json:"operation_name"`
	Args          json.RawMessage `json:"args,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Created  string `json:"created"`
	Modified string `json:"modified"`
}

func invocationToResource(inv *models.OperationInvocation) invocationResource {
	resource := invocationResource{
		ID:            inv.ID,
		Status:        string(inv.Status),
		OperationName: inv.OperationName,
		Args:          inv.Args,
		Result:        inv.Result,
		Created:       inv.Created.Format(time.RFC3339),
		Modified:      inv.Modified.Format(time.RFC3339),
	}
	if inv.ErrorKind != "" {
		resource.Error = &struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}{Kind: inv.ErrorKind, Message: inv.ErrorMessage}
	}
	return resource
}

func (h *invocationRoutes) caller(r *http.Request) (*models.UserReference, error) {
	userURI := r.Header.Get(UserHeader)
	if userURI == "" {
		return nil, gverrors.New(gverrors.KindUnauthorized, "missing "+UserHeader+" header", nil)
	}
	user, err := h.store.GetUserByURI(r.Context(), userURI)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, gverrors.New(gverrors.KindUnauthorized, "unknown user", nil)
	}
	return user, err
}

func (h *invocationRoutes) createInvocation(w http.ResponseWriter, r *http.Request) {
	user, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req invocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gverrors.InvalidArguments("malformed request body", err))
		return
	}
	if req.OperationName == "" {
		writeError(w, gverrors.Newf(gverrors.KindInvalidArguments, "operation_name is required"))
		return
	}
	if req.AccountID == 0 && req.ConfiguredAddonID == nil {
		writeError(w, gverrors.Newf(gverrors.KindInvalidArguments,
			"one of account_id or configured_addon_id is required"))
		return
	}

	inv, err := h.engine.Invoke(r.Context(), invocation.Request{
		OperationName:     req.OperationName,
		Args:              req.Args,
		UserID:            user.ID,
		AccountID:         req.AccountID,
		ConfiguredAddonID: req.ConfiguredAddonID,
	})
	if err != nil && inv == nil {
		writeError(w, err)
		return
	}
	// Operation failures ride on the invocation record with a 201: the
	// invocation itself was created.
	writeJSON(w, http.StatusCreated, invocationToResource(inv))
}

func (h *invocationRoutes) getInvocation(w http.ResponseWriter, r *http.Request) {
	if _, err := h.caller(r); err != nil {
		writeError(w, err)
		return
	}
	inv, err := h.store.GetInvocation(r.Context(), chi.URLParam(r, "invocationID"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, gverrors.NotFound("no such invocation"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invocationToResource(inv))
}
