package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeSessionClosed    = "SESSION_CLOSED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Debug().Err(err).Msg("write response")
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeCollabError maps a session error to an HTTP status.
func writeCollabError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, ErrCodeInternalError
	switch collab.KindOf(err) {
	case collab.KindUnknownAgent:
		status, code = http.StatusNotFound, ErrCodeNotFound
	case collab.KindInvalidInput, collab.KindInvalidSpawnArgs:
		status, code = http.StatusBadRequest, ErrCodeInvalidRequest
	case collab.KindAlreadyTerminal:
		status, code = http.StatusConflict, ErrCodeConflict
	case collab.KindPolicyDenied:
		status, code = http.StatusForbidden, ErrCodePermissionDenied
	case collab.KindTimeout:
		status, code = http.StatusGatewayTimeout, ErrCodeTimeout
	case collab.KindSessionClosed:
		status, code = http.StatusGone, ErrCodeSessionClosed
	}

	var details map[string]any
	var ce *collab.Error
	if errors.As(err, &ce) {
		details = map[string]any{"kind": string(ce.Kind)}
		if ce.AgentID != "" {
			details["agentId"] = ce.AgentID
		}
	}
	writeErrorWithDetails(w, status, code, err.Error(), details)
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
