// ABOUTME: API error types and JSON response helpers
// ABOUTME: Maps domain sentinel errors onto {success:false,error} envelopes with HTTP statuses
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/callhenk/henk-sub004/auth"
	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/conversations"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/salesforce"
	"go.uber.org/zap"
)

// APIError is an error with the status and message the client sees.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAuthError() *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: "Unauthorized"}
}

func NewForbiddenError(message string) *APIError {
	if message == "" {
		message = "Forbidden"
	}
	return &APIError{Status: http.StatusForbidden, Message: message}
}

func NewNotFoundError(resource string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: resource + " not found"}
}

func NewValidationError(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message}
}

func newInternalError(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: message}
}

// causedError shows api to the client and keeps err for the log.
type causedError struct {
	api *APIError
	err error
}

func (e *causedError) Error() string {
	return e.api.Message + ": " + e.err.Error()
}

func (e *causedError) Unwrap() []error {
	return []error{e.api, e.err}
}

func internalError(message string, err error) error {
	return &causedError{api: newInternalError(message), err: err}
}

// toAPIError maps err onto what the client should see. Unknown errors
// become a generic 500.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var validation *campaigns.ValidationError
	if errors.As(err, &validation) {
		return NewValidationError(validation.Message)
	}

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return NewAuthError()
	case errors.Is(err, campaigns.ErrAlreadyActive):
		return NewValidationError("Campaign is already active")
	case errors.Is(err, campaigns.ErrNotActive):
		return NewValidationError("Campaign is not currently active")
	case errors.Is(err, campaigns.ErrCompleted):
		return NewValidationError("Campaign is completed")
	case errors.Is(err, campaigns.ErrNoAgent):
		return NewValidationError("Campaign has no agent assigned")
	case errors.Is(err, campaigns.ErrAgentNotLinked):
		return NewValidationError("Agent is not linked to ElevenLabs")
	case errors.Is(err, campaigns.ErrCampaignNotFound):
		return NewNotFoundError("Campaign")
	case errors.Is(err, campaigns.ErrAgentNotFound):
		return NewNotFoundError("Agent")
	case errors.Is(err, campaigns.ErrNotConfigured):
		return newInternalError("Calling is not configured")
	case errors.Is(err, conversations.ErrNotFound):
		return NewNotFoundError("Conversation")
	case errors.Is(err, salesforce.ErrNotConnected):
		return NewValidationError("Salesforce is not connected")
	case errors.Is(err, salesforce.ErrInvalidState):
		return NewValidationError("Invalid OAuth state")
	case errors.Is(err, db.ErrNotFound):
		return NewNotFoundError("Resource")
	}
	return newInternalError("Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeData sends {success:true, data}.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

// writeError sends the error envelope. 5xx errors are logged with the
// request id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, apiErr.Status, map[string]any{"success": false, "error": apiErr.Message})
}

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return NewValidationError("Invalid JSON body")
	}
	return nil
}
