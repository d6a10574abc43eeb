package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"chmura-plikow/internal/apperrors"
)

// ErrorResponse is the wire shape of every failure: a stable short error
// plus an optional human-readable detail.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps a typed error to its HTTP status. Untyped errors become
// opaque 500s so internals never leak to callers.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		resp := ErrorResponse{Error: appErr.Message}
		if appErr.Err != nil && apperrors.HTTPStatus(appErr.Kind) >= 500 {
			resp.Message = appErr.Err.Error()
		}
		writeJSON(w, apperrors.HTTPStatus(appErr.Kind), resp)
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func parsePagination(r *http.Request) (limit int, offset int) {
	limit = 100
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
