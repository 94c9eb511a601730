package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/petition-hub/petition-hub/internal/domain/audit"
	"github.com/petition-hub/petition-hub/internal/infrastructure/sse"
)

func auditEntity(w http.ResponseWriter, r *http.Request) (audit.EntityType, string, bool) {
	entityType := audit.EntityType(strings.ToUpper(chi.URLParam(r, "entityType")))
	switch entityType {
	case audit.EntityTypePetition, audit.EntityTypeSignature, audit.EntityTypeInvalidation, audit.EntityTypeJournal:
	default:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "unknown entityType")
		return "", "", false
	}
	return entityType, chi.URLParam(r, "entityId"), true
}

func (s *Server) auditHistory(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := auditEntity(w, r)
	if !ok {
		return
	}
	limit, _ := parseLimitOffset(r, 50, 1000)
	logs, err := s.auditSvc.History(contextFromRequest(r), entityType, entityID, limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": logs})
}

func (s *Server) verifyAudit(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := auditEntity(w, r)
	if !ok {
		return
	}
	results, err := s.auditSvc.Verify(contextFromRequest(r), entityType, entityID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": results})
}

// events streams petition and invalidation events. petition_id narrows the stream to a
// single petition.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}
	var petitionID *int64
	if v := r.URL.Query().Get("petition_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid petition_id")
			return
		}
		petitionID = &id
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	client := sse.NewClient(clientID, petitionID)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg, open := <-client.Messages:
			if !open {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: " + msg.Event + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
