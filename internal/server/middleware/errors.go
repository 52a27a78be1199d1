package middleware

import (
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/internal/observability"
)

// ErrorResponse is the JSON error envelope written by the middleware.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts panics into a 500 INTERNAL_ERROR envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := GetRequestID(r.Context())
			observability.ServerLogger.Error("handler panic",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID),
				zap.Stack("stack"),
			)

			envelope := errors.NewErrorEnvelope(apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec))
			if requestID != "" {
				envelope = envelope.WithCorrelationID(requestID)
			}
			writeErrorResponse(w, envelope, http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, statusCode int) {
	apperrors.WriteEnvelope(w, statusCode, envelope)
}
