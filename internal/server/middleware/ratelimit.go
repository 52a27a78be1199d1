package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"
	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
)

// RateLimit rejects requests beyond limiter's budget with 429 RATE_LIMITED.
// A nil limiter disables the check.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				retry := 1
				if l := float64(limiter.Limit()); l > 0 {
					retry = int(math.Ceil(1 / l))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				envelope := errors.NewErrorEnvelope(apperrors.CodeRateLimited, "request rate exceeded").
					WithCorrelationID(GetRequestID(r.Context()))
				writeErrorResponse(w, envelope, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
