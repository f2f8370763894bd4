package compliancehttp

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/gobd-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

const (
	// HeaderActorID names the user on whose behalf an operator acts.
	HeaderActorID = "X-Actor-ID"
	// HeaderSessionID correlates audit entries of one client session.
	HeaderSessionID = "X-Session-ID"

	defaultActor = "admin"
)

// TokenAuth checks bearer tokens against one bcrypt hash. The last accepted
// token is remembered so repeated requests skip the bcrypt cost.
type TokenAuth struct {
	hash []byte

	mu       sync.RWMutex
	accepted []byte
}

// NewTokenAuth builds a TokenAuth from a bcrypt hash.
func NewTokenAuth(hash string) *TokenAuth {
	return &TokenAuth{hash: []byte(strings.TrimSpace(hash))}
}

func (a *TokenAuth) verify(token string) bool {
	if a == nil || len(a.hash) == 0 || token == "" {
		return false
	}
	candidate := []byte(token)
	a.mu.RLock()
	cached := a.accepted
	a.mu.RUnlock()
	if cached != nil && subtle.ConstantTimeCompare(cached, candidate) == 1 {
		return true
	}
	if bcrypt.CompareHashAndPassword(a.hash, candidate) != nil {
		return false
	}
	a.mu.Lock()
	a.accepted = candidate
	a.mu.Unlock()
	return true
}

// Middleware rejects requests without a valid bearer token and stores the
// acting user in the request context.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || !a.verify(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="compliance"`)
			httpx.RespondError(w, r, httpx.ErrUnauthorized)
			return
		}
		actor := shared.Actor{
			UserID:    strings.TrimSpace(r.Header.Get(HeaderActorID)),
			SessionID: strings.TrimSpace(r.Header.Get(HeaderSessionID)),
		}
		if actor.UserID == "" {
			actor.UserID = defaultActor
		}
		if actor.SessionID == "" {
			actor.SessionID = uuid.NewString()
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
