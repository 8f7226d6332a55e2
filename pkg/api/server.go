// Package api contains the REST API server for gravyvalet.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/CenterForOpenScience/gravyvalet/pkg/api/v1"
	"github.com/CenterForOpenScience/gravyvalet/pkg/invocation"
	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
	"github.com/CenterForOpenScience/gravyvalet/pkg/oauth"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

const (
	// middlewareTimeout must exceed the invocation deadline so slow provider
	// calls fail with an invocation-level timeout, not a dropped connection.
	middlewareTimeout = 120 * time.Second

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Store       storage.Store
	Engine      *invocation.Engine
	Coordinator *oauth.Coordinator

	// HMACSharedKeys authenticates the waterbutler surface, key id to secret.
	HMACSharedKeys map[string]string

	// MetricsGatherer serves /metrics when set.
	MetricsGatherer prometheus.Gatherer
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Router assembles the full route tree.
func Router(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	routers := map[string]http.Handler{
		"/health":         v1.HealthcheckRouter(deps.Store),
		"/v1/invocations": v1.InvocationRouter(deps.Engine, deps.Store),
		"/v1/waterbutler": v1.WaterbutlerRouter(deps.Store, deps.Coordinator, deps.HMACSharedKeys),
		"/oauth2":         v1.OAuth2CallbackRouter(deps.Coordinator),
		"/oauth1":         v1.OAuth1CallbackRouter(deps.Coordinator),
	}
	if deps.MetricsGatherer != nil {
		routers["/metrics"] = promhttp.HandlerFor(deps.MetricsGatherer, promhttp.HandlerOpts{})
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}
	return r
}

// Serve runs the API server until ctx is cancelled. The caller sets up
// signal handling.
func Serve(ctx context.Context, address string, deps Deps) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           Router(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on %s", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("server shutdown: %v", err)
		return err
	}
	logger.Infof("API server stopped")
	return nil
}
