package httpapi

import (
	"net"
	"net/http"

	appSignature "github.com/petition-hub/petition-hub/internal/application/signature"
)

type createSignatureRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Postcode      string `json:"postcode"`
	LocationCode  string `json:"location_code"`
	NotifyByEmail bool   `json:"notify_by_email"`
}

func (s *Server) createSignature(w http.ResponseWriter, r *http.Request) {
	petitionID, err := parseIDParam(r, "petitionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid petitionId")
		return
	}
	var req createSignatureRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	sig, err := s.signatureSvc.Create(contextFromRequest(r), appSignature.CreateParams{
		PetitionID:    petitionID,
		Name:          req.Name,
		Email:         req.Email,
		Postcode:      req.Postcode,
		LocationCode:  req.LocationCode,
		IPAddress:     clientIP(r),
		NotifyByEmail: req.NotifyByEmail,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sig)
}

func (s *Server) getSignature(w http.ResponseWriter, r *http.Request) {
	id, ok := signatureID(w, r)
	if !ok {
		return
	}
	sig, err := s.signatureSvc.Get(contextFromRequest(r), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sig)
}

func (s *Server) validateSignature(w http.ResponseWriter, r *http.Request) {
	id, ok := signatureID(w, r)
	if !ok {
		return
	}
	sig, err := s.signatureSvc.Validate(contextFromRequest(r), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sig)
}

func (s *Server) invalidateSignature(w http.ResponseWriter, r *http.Request) {
	id, ok := signatureID(w, r)
	if !ok {
		return
	}
	if err := s.signatureSvc.Invalidate(contextFromRequest(r), id, actorFromRequest(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.getSignature(w, r)
}

func (s *Server) fraudulentSignature(w http.ResponseWriter, r *http.Request) {
	id, ok := signatureID(w, r)
	if !ok {
		return
	}
	if err := s.signatureSvc.Fraudulent(contextFromRequest(r), id); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.getSignature(w, r)
}

func (s *Server) resolveConstituency(w http.ResponseWriter, r *http.Request) {
	id, ok := signatureID(w, r)
	if !ok {
		return
	}
	constituency, err := s.signatureSvc.ResolveConstituency(contextFromRequest(r), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"signature_id": id, "constituency_id": constituency})
}

func (s *Server) destroySignature(w http.ResponseWriter, r *http.Request) {
	id, ok := signatureID(w, r)
	if !ok {
		return
	}
	if err := s.signatureSvc.Destroy(contextFromRequest(r), id, actorFromRequest(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func signatureID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseIDParam(r, "signatureId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid signatureId")
		return 0, false
	}
	return id, true
}

// clientIP strips the port RealIP leaves on direct connections.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
