package compliancehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

const (
	defaultRateLimit = 120
	rateWindow       = time.Minute
)

// MountRoutes registers the compliance API. Every route requires the admin
// bearer token and is rate limited per actor.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limit := h.rateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	limiter := httprate.Limit(limit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(h.auth.Middleware)
		gr.Use(limiter)

		gr.Get("/audit", h.handleSearchAudit)
		gr.Get("/audit/{entityType}/{entityID}", h.handleAuditTrail)

		gr.Get("/periods/locks", h.handleListLocks)
		gr.Post("/periods/locks", h.handleLockPeriod)
		gr.Get("/periods/locks/{periodKey}", h.handleIsLocked)
		gr.Post("/periods/locks/{periodKey}/unlock", h.handleUnlockPeriod)
		gr.Get("/periods/check", h.handleCheckDate)

		gr.Post("/sequences/{documentType}/{year}/next", h.handleNextSequence)
		gr.Get("/sequences/{documentType}/{year}/gaps", h.handleSequenceGaps)
		gr.Post("/sequences/backfill", h.handleBackfill)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor.UserID != "" {
		return "actor:" + actor.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
