package handlers

import (
	"net/http"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
)

// HTTPErrorResponder writes an error response for err.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder replaces the responder used by the handlers. Nil
// restores the default.
func SetHTTPErrorResponder(responder HTTPErrorResponder) {
	if responder == nil {
		ResetHTTPErrorResponder()
		return
	}
	httpErrorResponder = responder
}

// ResetHTTPErrorResponder restores apperrors.RespondWithError.
func ResetHTTPErrorResponder() {
	httpErrorResponder = apperrors.RespondWithError
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
