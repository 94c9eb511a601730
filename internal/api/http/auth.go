package httpapi

import (
	"context"
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Operator is an administrator allowed to call the API. TokenHash is a bcrypt hash of
// the operator's bearer token.
type Operator struct {
	Name      string `yaml:"name"`
	TokenHash string `yaml:"tokenHash"`
}

type authContextKey string

const actorKey authContextKey = "actor"

type authenticator struct {
	operators []Operator
	mu        sync.RWMutex
	verified  map[[sha256.Size]byte]string
}

func newAuthenticator(operators []Operator) *authenticator {
	return &authenticator{
		operators: operators,
		verified:  make(map[[sha256.Size]byte]string),
	}
}

// enabled reports whether any operator is configured. Without operators the API is open.
func (a *authenticator) enabled() bool {
	return len(a.operators) > 0
}

// authenticate returns the operator name owning token. Verified tokens are cached by
// digest so bcrypt runs once per token.
func (a *authenticator) authenticate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	digest := sha256.Sum256([]byte(token))
	a.mu.RLock()
	name, ok := a.verified[digest]
	a.mu.RUnlock()
	if ok {
		return name, true
	}
	for _, op := range a.operators {
		if bcrypt.CompareHashAndPassword([]byte(op.TokenHash), []byte(token)) == nil {
			a.mu.Lock()
			a.verified[digest] = op.Name
			a.mu.Unlock()
			return op.Name, true
		}
	}
	return "", false
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.enabled() {
			next.ServeHTTP(w, r)
			return
		}
		name, ok := s.auth.authenticate(extractToken(r))
		if !ok {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing token")
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, "operator:"+name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}

// actorFromRequest names who made the request for audit entries.
func actorFromRequest(r *http.Request) string {
	if actor, ok := r.Context().Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
