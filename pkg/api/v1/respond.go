// Package v1 contains the HTTP handlers for the gravyvalet API surface:
// operation invocations, OAuth callbacks, and the waterbutler
// compatibility endpoint.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warnf("encoding response: %v", err)
	}
}

// errorBody is the uniform error shape. Causes and stack traces stay out of
// the response.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	var body errorBody
	body.Error.Kind = string(gverrors.KindOf(err))
	body.Error.Message = errorMessage(err)
	writeJSON(w, gverrors.HTTPStatus(err), body)
}

// errorMessage surfaces classified messages verbatim and hides everything
// else behind a generic line.
func errorMessage(err error) string {
	var classified *gverrors.Error
	if errors.As(err, &classified) {
		return classified.Message
	}
	return "internal error"
}
