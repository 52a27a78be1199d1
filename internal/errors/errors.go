// Package errors maps cloudkit failures onto HTTP error envelopes and CLI
// exit codes.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/3leaps/cloudkit/pkg/match"
	"github.com/3leaps/cloudkit/pkg/storage"
)

// Error codes carried in HTTP error envelopes.
const (
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeNotFound           = "NOT_FOUND"
	CodeContainerNotFound  = "CONTAINER_NOT_FOUND"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeThrottled          = "THROTTLED"
	CodeSignedURLDisabled  = "SIGNED_URL_DISABLED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

// HTTPError is the wire form of a gofulmen error envelope.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON error envelope returned by the gateway.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// ArgumentError reports invalid caller input.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Message
}

// InvalidArgument returns an *ArgumentError.
func InvalidArgument(message string) error {
	return &ArgumentError{Message: message}
}

// Classify returns the envelope code and HTTP status for err.
func Classify(err error) (string, int) {
	var argErr *ArgumentError
	var cfgErr *storage.ConfigError
	switch {
	case errors.As(err, &argErr), errors.As(err, &cfgErr),
		errors.Is(err, match.ErrInvalidFilter), errors.Is(err, match.ErrInvalidPattern),
		errors.Is(err, match.ErrNoIncludes), errors.Is(err, storage.ErrUnknownProvider):
		return CodeInvalidArgument, http.StatusBadRequest
	case storage.IsNotFound(err):
		return CodeNotFound, http.StatusNotFound
	case storage.IsBucketNotFound(err):
		return CodeContainerNotFound, http.StatusNotFound
	case storage.IsAccessDenied(err):
		return CodeAccessDenied, http.StatusForbidden
	case storage.IsInvalidCredentials(err):
		return CodeInvalidCredentials, http.StatusUnauthorized
	case errors.Is(err, storage.ErrSignedURLDisabled):
		return CodeSignedURLDisabled, http.StatusConflict
	case storage.IsThrottled(err):
		return CodeThrottled, http.StatusTooManyRequests
	case storage.IsProviderUnavailable(err):
		return CodeServiceUnavailable, http.StatusBadGateway
	}
	return CodeInternal, http.StatusInternalServerError
}

// NewEnvelope builds the gofulmen envelope for err and returns it with the
// HTTP status it maps to. Storage error fields are attached as context.
func NewEnvelope(err error, requestID string) (*gferrors.ErrorEnvelope, int) {
	code, status := Classify(err)
	env := gferrors.NewErrorEnvelope(code, err.Error())
	if requestID != "" {
		env = env.WithCorrelationID(requestID)
	}

	var se *storage.Error
	if errors.As(err, &se) {
		ctx := map[string]interface{}{"op": se.Op, "provider": string(se.Provider)}
		if se.Container != "" {
			ctx["container"] = se.Container
		}
		if se.File != "" {
			ctx["file"] = se.File
		}
		if se.Status != 0 {
			ctx["status"] = se.Status
		}
		env, _ = env.WithContext(ctx)
	}
	return env, status
}

// RespondWithError writes the envelope for err. The request ID is taken from
// the X-Request-ID request header when present.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := ""
	if r != nil {
		requestID = r.Header.Get("X-Request-ID")
	}
	env, status := NewEnvelope(err, requestID)
	WriteEnvelope(w, status, env)
}

// Response converts env to the gateway's wire envelope. Context and details
// are merged into a single details object, context winning on key clashes.
func Response(env *gferrors.ErrorEnvelope) HTTPErrorResponse {
	body := HTTPError{
		Code:      env.Code,
		Message:   env.Message,
		RequestID: env.CorrelationID,
	}
	if n := len(env.Details) + len(env.Context); n > 0 {
		body.Details = make(map[string]any, n)
		for k, v := range env.Details {
			body.Details[k] = v
		}
		for k, v := range env.Context {
			body.Details[k] = v
		}
	}
	return HTTPErrorResponse{Error: body}
}

// WriteEnvelope writes env with the given status.
func WriteEnvelope(w http.ResponseWriter, status int, env *gferrors.ErrorEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response(env))
}
