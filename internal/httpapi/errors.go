package httpapi

import (
	"net/http"

	json "github.com/goccy/go-json"

	"mlserve/internal/estimator"
	"mlserve/internal/manager"
	"mlserve/internal/registry"
	"mlserve/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

type requestError struct {
	msg  string
	code int
}

func (e requestError) Error() string   { return e.msg }
func (e requestError) StatusCode() int { return e.code }

// statusFor maps well-known error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case registry.IsUnknownModelType(err), manager.IsInvalidName(err), estimator.IsInvalidInput(err):
		return http.StatusBadRequest
	case manager.IsModelNotFound(err):
		return http.StatusNotFound
	case manager.IsDuplicateModel(err), estimator.IsNotTrained(err):
		return http.StatusConflict
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response","code":500}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
