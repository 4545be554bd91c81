package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"
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

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 error response.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// statusForCode maps a command result code to an HTTP status.
func statusForCode(code protocol.Code) int {
	switch code {
	case protocol.CodeOK:
		return http.StatusAccepted
	case protocol.CodeInvalidArgument:
		return http.StatusBadRequest
	case protocol.CodeDeviceNotFound:
		return http.StatusNotFound
	case protocol.CodeDeviceNotSupported, protocol.CodeUnsupported:
		return http.StatusUnprocessableEntity
	case protocol.CodeDeviceDisconnected:
		return http.StatusConflict
	case protocol.CodeNotInitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeConfigError maps a configuration error from the device service.
func writeConfigError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, supervisor.ErrDeviceNotFound), errors.Is(err, device.ErrUnknownProperty):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrInvalidProperty):
		writeBadRequest(w, err.Error())
	case errors.Is(err, supervisor.ErrStopped), errors.Is(err, device.ErrShuttingDown):
		writeUnavailable(w, err.Error())
	default:
		writeInternalError(w, "configuration update failed")
	}
}
