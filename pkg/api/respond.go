package api

import (
	"encoding/json"
	"net/http"

	"browtool/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// respondError maps the error taxonomy to HTTP status codes. A completed
// run with ok=false is not an error at this layer; only faults reach here.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeToolNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeToolExists:
		status = http.StatusConflict
	case errors.ErrCodeInvalidInput, errors.ErrCodeMissingArgument:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
