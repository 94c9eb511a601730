package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	appAudit "github.com/petition-hub/petition-hub/internal/application/audit"
	"github.com/petition-hub/petition-hub/internal/application/counter"
	appInvalidation "github.com/petition-hub/petition-hub/internal/application/invalidation"
	appPetition "github.com/petition-hub/petition-hub/internal/application/petition"
	appSignature "github.com/petition-hub/petition-hub/internal/application/signature"
	"github.com/petition-hub/petition-hub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	petitionSvc     *appPetition.Service
	signatureSvc    *appSignature.Service
	counterEngine   *counter.Engine
	invalidationSvc *appInvalidation.Service
	auditSvc        *appAudit.Service
	sseHub          *sse.Hub
	auth            *authenticator
	logger          zerolog.Logger
}

func NewServer(
	petitionSvc *appPetition.Service,
	signatureSvc *appSignature.Service,
	counterEngine *counter.Engine,
	invalidationSvc *appInvalidation.Service,
	auditSvc *appAudit.Service,
	sseHub *sse.Hub,
	operators []Operator,
	logger zerolog.Logger,
) *Server {
	return &Server{
		petitionSvc:     petitionSvc,
		signatureSvc:    signatureSvc,
		counterEngine:   counterEngine,
		invalidationSvc: invalidationSvc,
		auditSvc:        auditSvc,
		sseHub:          sseHub,
		auth:            newAuthenticator(operators),
		logger:          logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router. metrics, when non-nil, is mounted at /metrics.
func (s *Server) Router(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// The event stream is long-lived and must not be cut by the request timeout.
		r.With(s.requireAuth).Get("/admin/events", s.events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(s.requireAuth)

			r.Route("/petitions", func(r chi.Router) {
				r.Post("/", s.createPetition)
				r.Get("/", s.listPetitions)
				r.Get("/{petitionId}", s.getPetition)
				r.Post("/{petitionId}/flag", s.flagPetition)
				r.Post("/{petitionId}/unflag", s.unflagPetition)
				r.Post("/{petitionId}/publish", s.publishPetition)
				r.Post("/{petitionId}/reject", s.rejectPetition)
				r.Post("/{petitionId}/close", s.closePetition)
				r.Post("/{petitionId}/complete", s.completePetition)
				r.Post("/{petitionId}/archive", s.archivePetition)
				r.Post("/{petitionId}/anonymize", s.anonymizePetition)
				r.Post("/{petitionId}/reset-count", s.resetSignatureCount)
				r.Post("/{petitionId}/debate", s.scheduleDebate)
				r.Post("/{petitionId}/debate/outcome", s.recordDebateOutcome)
				r.Get("/{petitionId}/journals/{kind}", s.listJournals)
				r.Post("/{petitionId}/signatures", s.createSignature)
			})

			r.Route("/signatures", func(r chi.Router) {
				r.Get("/{signatureId}", s.getSignature)
				r.Post("/{signatureId}/validate", s.validateSignature)
				r.Post("/{signatureId}/invalidate", s.invalidateSignature)
				r.Post("/{signatureId}/fraudulent", s.fraudulentSignature)
				r.Post("/{signatureId}/constituency", s.resolveConstituency)
				r.Delete("/{signatureId}", s.destroySignature)
			})

			r.Route("/invalidations", func(r chi.Router) {
				r.Post("/", s.createInvalidation)
				r.Get("/", s.listInvalidations)
				r.Get("/{invalidationId}", s.getInvalidation)
				r.Patch("/{invalidationId}", s.updateInvalidation)
				r.Post("/{invalidationId}/count", s.countInvalidation)
				r.Post("/{invalidationId}/start", s.startInvalidation)
				r.Post("/{invalidationId}/cancel", s.cancelInvalidation)
				r.Delete("/{invalidationId}", s.destroyInvalidation)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/journals/{kind}/reset", s.resetJournals)
				r.Get("/audit/{entityType}/{entityId}", s.auditHistory)
				r.Get("/audit/{entityType}/{entityId}/verify", s.verifyAudit)
			})
		})
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseIDParam(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func contextFromRequest(r *http.Request) context.Context {
	return r.Context()
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
