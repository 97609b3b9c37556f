package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes carried in the response envelope. Clients branch on these,
// not on message text.
const (
	codeValidation        = "VALIDATION_ERROR"
	codeEmptyFile         = "EMPTY_FILE"
	codeFileTooLarge      = "FILE_TOO_LARGE"
	codeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	codeDecodeFailed      = "DECODE_FAILED"
	codeAudioTooShort     = "AUDIO_TOO_SHORT"
	codeAudioTooLong      = "AUDIO_TOO_LONG"
	codeSearchTimeout     = "SEARCH_TIMEOUT"
	codeUnavailable       = "SERVICE_UNAVAILABLE"
	codeNotFound          = "NOT_FOUND"
	codeFileNotFound      = "FILE_NOT_FOUND"
	codeForbidden         = "FORBIDDEN"
	codeAuthNotConfigured = "AUTH_NOT_CONFIGURED"
	codeRateLimited       = "RATE_LIMITED"
	codeBadRange          = "RANGE_NOT_SATISFIABLE"
	codeInternal          = "INTERNAL_SERVER_ERROR"
)

// apiError is the body of every non-2xx response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

// writeFieldError is writeError with the offending field named in details.
func writeFieldError(w http.ResponseWriter, status int, code, message, field string) {
	writeJSON(w, status, errorEnvelope{Error: apiError{
		Code:    code,
		Message: message,
		Details: map[string]string{"field": field},
	}})
}
