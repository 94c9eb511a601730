package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appPetition "github.com/petition-hub/petition-hub/internal/application/petition"
	"github.com/petition-hub/petition-hub/internal/domain/journal"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
)

type createPetitionRequest struct {
	Translations map[string]petition.Text `json:"translations"`
	Creator      struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		Postcode      string `json:"postcode"`
		LocationCode  string `json:"location_code"`
		NotifyByEmail bool   `json:"notify_by_email"`
	} `json:"creator"`
}

type rejectPetitionRequest struct {
	Code    string  `json:"code"`
	Details *string `json:"details"`
}

type scheduleDebateRequest struct {
	On string `json:"on"`
}

type debateOutcomeRequest struct {
	Debated bool `json:"debated"`
}

func (s *Server) createPetition(w http.ResponseWriter, r *http.Request) {
	var req createPetitionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	p, sig, err := s.petitionSvc.Create(contextFromRequest(r), req.Translations, appPetition.Creator{
		Name:          req.Creator.Name,
		Email:         req.Creator.Email,
		Postcode:      req.Creator.Postcode,
		LocationCode:  req.Creator.LocationCode,
		IPAddress:     clientIP(r),
		NotifyByEmail: req.Creator.NotifyByEmail,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"petition": p, "creator_signature": sig})
}

func (s *Server) listPetitions(w http.ResponseWriter, r *http.Request) {
	var filter petition.Filter
	if v := r.URL.Query().Get("state"); v != "" {
		state := petition.State(v)
		filter.State = &state
	}
	if v := r.URL.Query().Get("archived"); v != "" {
		archived, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid archived")
			return
		}
		filter.Archived = &archived
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	list, err := s.petitionSvc.List(contextFromRequest(r), filter, limit, offset)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": list, "limit": limit, "offset": offset})
}

// petitionAction parses the petition id and runs fn, responding with the petition it
// returns.
func (s *Server) petitionAction(w http.ResponseWriter, r *http.Request, fn func(id int64, actor string) (*petition.Petition, error)) {
	id, err := parseIDParam(r, "petitionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid petitionId")
		return
	}
	p, err := fn(id, actorFromRequest(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) getPetition(w http.ResponseWriter, r *http.Request) {
	s.petitionAction(w, r, func(id int64, _ string) (*petition.Petition, error) {
		return s.petitionSvc.Get(contextFromRequest(r), id)
	})
}

func (s *Server) flagPetition(w http.ResponseWriter, r *http.Request) {
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		return s.petitionSvc.Flag(contextFromRequest(r), id, actor)
	})
}

func (s *Server) unflagPetition(w http.ResponseWriter, r *http.Request) {
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		return s.petitionSvc.Unflag(contextFromRequest(r), id, actor)
	})
}

func (s *Server) publishPetition(w http.ResponseWriter, r *http.Request) {
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		return s.petitionSvc.Publish(contextFromRequest(r), id, actor)
	})
}

func (s *Server) rejectPetition(w http.ResponseWriter, r *http.Request) {
	var req rejectPetitionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		return s.petitionSvc.Reject(contextFromRequest(r), id, req.Code, req.Details, actor)
	})
}

func (s *Server) closePetition(w http.ResponseWriter, r *http.Request) {
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		p, _, err := s.petitionSvc.Close(contextFromRequest(r), id, actor)
		return p, err
	})
}

func (s *Server) completePetition(w http.ResponseWriter, r *http.Request) {
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		return s.petitionSvc.Complete(contextFromRequest(r), id, actor)
	})
}

func (s *Server) archivePetition(w http.ResponseWriter, r *http.Request) {
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		return s.petitionSvc.Archive(contextFromRequest(r), id, actor)
	})
}

func (s *Server) scheduleDebate(w http.ResponseWriter, r *http.Request) {
	var req scheduleDebateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	on, err := time.Parse(time.DateOnly, req.On)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "on must be a YYYY-MM-DD date")
		return
	}
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		return s.petitionSvc.ScheduleDebate(contextFromRequest(r), id, on, actor)
	})
}

func (s *Server) recordDebateOutcome(w http.ResponseWriter, r *http.Request) {
	var req debateOutcomeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.petitionAction(w, r, func(id int64, actor string) (*petition.Petition, error) {
		return s.petitionSvc.RecordDebateOutcome(contextFromRequest(r), id, req.Debated, actor)
	})
}

func (s *Server) anonymizePetition(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "petitionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid petitionId")
		return
	}
	n, err := s.signatureSvc.AnonymizePetition(contextFromRequest(r), id, actorFromRequest(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"petition_id": id, "anonymized": n})
}

func (s *Server) resetSignatureCount(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "petitionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid petitionId")
		return
	}
	u, err := s.counterEngine.ResetSignatureCount(contextFromRequest(r), id, actorFromRequest(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"petition_id":     u.PetitionID,
		"signature_count": u.SignatureCount,
		"delta":           u.Delta,
	})
}

func (s *Server) listJournals(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "petitionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid petitionId")
		return
	}
	kind, err := journal.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	list, err := s.counterEngine.Journals(contextFromRequest(r), kind, id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": list})
}

func (s *Server) resetJournals(w http.ResponseWriter, r *http.Request) {
	kind, err := journal.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	rows, err := s.counterEngine.ResetJournals(contextFromRequest(r), kind, actorFromRequest(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"kind": kind, "rows": rows})
}
