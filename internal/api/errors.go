package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/minigame-engine/internal/ledger"
	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/session"
)

// EngineError is the structured error body of every failed request.
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string {
	return e.Message
}

// Error types.
const (
	ErrTypeValidation        = "validation_error"
	ErrTypeInvalidSelection  = "invalid_selection"
	ErrTypeWrongPhase        = "wrong_phase"
	ErrTypeConflict          = "conflict"
	ErrTypeGameNotFound      = "game_not_found"
	ErrTypeAttemptNotFound   = "attempt_not_found"
	ErrTypeInsufficientFunds = "insufficient_funds"
	ErrTypeLedgerTimeout     = "ledger_timeout"
	ErrTypeInternal          = "internal_error"
)

// ErrorBuilder helps construct structured errors with context.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder.
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds the request id to the error.
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// Build creates the final EngineError.
func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps a domain error to its HTTP status and error type. Order matters:
// the conflict and phase errors wrap ErrInvalidSelection.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrUnknownGame):
		return http.StatusNotFound, ErrTypeGameNotFound
	case errors.Is(err, session.ErrAttemptNotFound):
		return http.StatusNotFound, ErrTypeAttemptNotFound
	case errors.Is(err, session.ErrWrongPhase):
		return http.StatusConflict, ErrTypeWrongPhase
	case errors.Is(err, session.ErrDuplicateWager),
		errors.Is(err, session.ErrAttemptActive),
		errors.Is(err, outcome.ErrLadderTerminated),
		errors.Is(err, outcome.ErrCashOutAtZero):
		return http.StatusConflict, ErrTypeConflict
	case errors.Is(err, session.ErrInvalidSelection),
		errors.Is(err, outcome.ErrBadColumn),
		errors.Is(err, outcome.ErrInvalidBid),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, ErrTypeInvalidSelection
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, ErrTypeInsufficientFunds
	case errors.Is(err, ledger.ErrLedgerTimeout):
		return http.StatusGatewayTimeout, ErrTypeLedgerTimeout
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// handleError writes err as an EngineError and logs it.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classify(err)
	var engineErr EngineError
	if !errors.As(err, &engineErr) {
		engineErr = NewError(errType, err.Error()).
			WithRequestID(middleware.GetReqID(r.Context())).
			WithContext("path", r.URL.Path).
			WithContext("method", r.Method).
			Build()
	}

	level := "WARN"
	if status >= 500 {
		level = "ERROR"
	}
	s.logger.Printf("level=%s type=%s status=%d method=%s path=%s request_id=%s message=%q",
		level, engineErr.Type, status, r.Method, r.URL.Path, engineErr.RequestID, engineErr.Message)
	s.writeJSON(w, status, engineErr)
}

// handleValidationError rejects a malformed request body or parameter.
func (s *Server) handleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, "Validation failed: "+message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()
	s.logger.Printf("level=WARN type=%s status=%d method=%s path=%s field=%s message=%q",
		engineErr.Type, http.StatusBadRequest, r.Method, r.URL.Path, field, message)
	s.writeJSON(w, http.StatusBadRequest, engineErr)
}

// writeJSON writes a JSON response with the engine headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("level=ERROR type=encode_failed err=%v", err)
	}
}
