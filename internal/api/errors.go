package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeForbidden          = "forbidden"
	ErrCodeConflict           = "conflict"
	ErrCodeBusy               = "busy"
	ErrCodeDispatchFailed     = "dispatch_failed"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeInternal           = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeServiceUnavailable writes a 503 error response.
func writeServiceUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeVacuumError maps a coordinator error to a response.
func writeVacuumError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vacuum.ErrBusy):
		writeError(w, http.StatusConflict, ErrCodeBusy, "master is cleaning; start rejected")
	case errors.Is(err, vacuum.ErrUnknownMaster):
		writeNotFound(w, "master not found")
	case errors.Is(err, vacuum.ErrUnknownRoom):
		writeNotFound(w, "room not found")
	case errors.Is(err, vacuum.ErrClosed):
		writeServiceUnavailable(w, "coordinator is shutting down")
	case errors.Is(err, vacuum.ErrDispatchFailed):
		writeError(w, http.StatusBadGateway, ErrCodeDispatchFailed, err.Error())
	default:
		writeInternalError(w, "command failed")
	}
}
