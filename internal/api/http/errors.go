package httpapi

import (
	"errors"
	"net/http"

	appSignature "github.com/petition-hub/petition-hub/internal/application/signature"
	"github.com/petition-hub/petition-hub/internal/domain/invalidation"
	"github.com/petition-hub/petition-hub/internal/domain/journal"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
)

// respondServiceError maps engine errors onto status codes: conflicts are 409 with the
// actionable message, validation failures 422 and missing records 404.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var fields invalidation.ValidationErrors
	switch {
	case errors.As(err, &fields):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "VALIDATION_FAILED",
			"message": err.Error(),
			"fields":  fields,
		})
	case errors.Is(err, petition.ErrValidation),
		errors.Is(err, signature.ErrValidation),
		errors.Is(err, invalidation.ErrValidation),
		errors.Is(err, petition.ErrUnknownRejection),
		errors.Is(err, journal.ErrUnknownKind):
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, petition.ErrInvalidTransition),
		errors.Is(err, signature.ErrInvalidTransition),
		errors.Is(err, signature.ErrCreatorSignature),
		errors.Is(err, invalidation.ErrInvalidTransition),
		errors.Is(err, appSignature.ErrNotAccepting):
		respondError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, petition.ErrNotFound),
		errors.Is(err, signature.ErrNotFound),
		errors.Is(err, invalidation.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		s.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
