package httpx

import (
	"errors"
	"net/http"

	"github.com/studioledger/studioledger/internal/shared"
)

// ErrValidation marks request payloads that failed validation.
var ErrValidation = errors.New("validation failed")

// RespondError maps domain errors onto failure envelopes with an
// appropriate status code. Unknown errors keep their message: the closure
// API surfaces storage and verification failures verbatim to the caller.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Failure(w, http.StatusNotFound, err)
	case errors.Is(err, shared.ErrRunInFlight):
		Failure(w, http.StatusConflict, err)
	case errors.Is(err, shared.ErrInvalidPeriodType), errors.Is(err, ErrValidation):
		Failure(w, http.StatusBadRequest, err)
	default:
		// Infrastructure failures are not part of the envelope contract.
		Problem(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
