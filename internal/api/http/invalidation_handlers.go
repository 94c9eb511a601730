package httpapi

import (
	"net/http"

	appInvalidation "github.com/petition-hub/petition-hub/internal/application/invalidation"
	"github.com/petition-hub/petition-hub/internal/domain/invalidation"
)

type invalidationRequest struct {
	Summary string              `json:"summary"`
	Details *string             `json:"details"`
	Filter  invalidation.Filter `json:"filter"`
}

func (req invalidationRequest) params() appInvalidation.CreateParams {
	return appInvalidation.CreateParams{Summary: req.Summary, Details: req.Details, Filter: req.Filter}
}

func (s *Server) createInvalidation(w http.ResponseWriter, r *http.Request) {
	var req invalidationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	inv, err := s.invalidationSvc.Create(contextFromRequest(r), req.params(), actorFromRequest(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

func (s *Server) listInvalidations(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	list, err := s.invalidationSvc.List(contextFromRequest(r), limit, offset)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": list, "limit": limit, "offset": offset})
}

// invalidationAction parses the invalidation id and responds with what fn returns.
func (s *Server) invalidationAction(w http.ResponseWriter, r *http.Request, fn func(id int64, actor string) (*invalidation.Invalidation, error)) {
	id, err := parseIDParam(r, "invalidationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid invalidationId")
		return
	}
	inv, err := fn(id, actorFromRequest(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (s *Server) getInvalidation(w http.ResponseWriter, r *http.Request) {
	s.invalidationAction(w, r, func(id int64, _ string) (*invalidation.Invalidation, error) {
		return s.invalidationSvc.Get(contextFromRequest(r), id)
	})
}

func (s *Server) updateInvalidation(w http.ResponseWriter, r *http.Request) {
	var req invalidationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.invalidationAction(w, r, func(id int64, actor string) (*invalidation.Invalidation, error) {
		return s.invalidationSvc.Update(contextFromRequest(r), id, req.params(), actor)
	})
}

func (s *Server) countInvalidation(w http.ResponseWriter, r *http.Request) {
	s.invalidationAction(w, r, func(id int64, _ string) (*invalidation.Invalidation, error) {
		return s.invalidationSvc.Count(contextFromRequest(r), id)
	})
}

func (s *Server) startInvalidation(w http.ResponseWriter, r *http.Request) {
	s.invalidationAction(w, r, func(id int64, actor string) (*invalidation.Invalidation, error) {
		return s.invalidationSvc.Start(contextFromRequest(r), id, actor)
	})
}

func (s *Server) cancelInvalidation(w http.ResponseWriter, r *http.Request) {
	s.invalidationAction(w, r, func(id int64, actor string) (*invalidation.Invalidation, error) {
		return s.invalidationSvc.Cancel(contextFromRequest(r), id, actor)
	})
}

func (s *Server) destroyInvalidation(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "invalidationId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid invalidationId")
		return
	}
	if err := s.invalidationSvc.Destroy(contextFromRequest(r), id, actorFromRequest(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
