package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

// HealthcheckRouter sets up the healthcheck route.
func HealthcheckRouter(store storage.Store) http.Handler {
	routes := &healthcheckRoutes{store: store}
	r := chi.NewRouter()
	r.Get("/", routes.getHealthcheck)
	return r
}

type healthcheckRoutes struct {
	store storage.Store
}

// getHealthcheck reports healthy when the database answers.
func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.ListServices(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
