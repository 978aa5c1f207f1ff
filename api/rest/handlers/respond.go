package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"rl-orchestrator/core/faults"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP statuses. Internal faults
// are deliberately flattened to a generic message so invariant details
// never leak to callers.
func writeError(w http.ResponseWriter, err error) {
	var validation *faults.ValidationError
	var quota *faults.QuotaExceededError
	var conflict *faults.StateConflictError
	var internal *faults.InternalError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &quota):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, faults.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, faults.ErrCancelTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: faults.ErrCancelTimeout.Error()})
	case errors.As(err, &internal):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
