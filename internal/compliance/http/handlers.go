package compliancehttp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
	"github.com/odyssey-erp/gobd-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/gobd-ledger/internal/sequence"
	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Service is the compliance API consumed by the handlers.
type Service interface {
	GetAuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Entry, error)
	SearchAuditLog(ctx context.Context, filters audit.SearchFilters) (audit.SearchResult, error)
	LockPeriod(ctx context.Context, in periodlock.LockInput, actx audit.Context) (periodlock.Lock, error)
	UnlockPeriod(ctx context.Context, periodKey, reason string, actx audit.Context) (periodlock.Lock, error)
	CheckPeriodLock(ctx context.Context, date time.Time) (*periodlock.Lock, error)
	IsPeriodLocked(ctx context.Context, periodKey string) (bool, error)
	GetPeriodLocks(ctx context.Context, filter periodlock.ListFilter) ([]periodlock.Lock, error)
	GetNextSequenceNumber(ctx context.Context, documentType string, year int) (string, error)
	SequenceGaps(ctx context.Context, documentType string, year int) (sequence.GapReport, error)
	BackfillReferenceNumbers(ctx context.Context, actx audit.Context) (compliance.BackfillResult, error)
}

// Config carries the access settings of the API.
type Config struct {
	// AdminTokenHash is the bcrypt hash of the accepted bearer token.
	AdminTokenHash string
	// RateLimit is the number of requests per minute and actor.
	RateLimit int
}

// Handler serves the compliance API.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
	auth      *TokenAuth
	rateLimit int
	lockList  singleflight.Group
}

// NewHandler constructs the compliance handler.
func NewHandler(logger *slog.Logger, service Service, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		auth:      NewTokenAuth(cfg.AdminTokenHash),
		rateLimit: cfg.RateLimit,
	}
}

type lockRequest struct {
	PeriodType string `json:"period_type" validate:"omitempty,oneof=month quarter year"`
	PeriodKey  string `json:"period_key" validate:"required,max=7"`
	Reason     string `json:"reason" validate:"required,max=500"`
}

type unlockRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type lockStatusResponse struct {
	PeriodKey string `json:"period_key"`
	Locked    bool   `json:"locked"`
}

type checkResponse struct {
	Date   string           `json:"date"`
	Locked bool             `json:"locked"`
	Lock   *periodlock.Lock `json:"lock,omitempty"`
}

type sequenceResponse struct {
	ReferenceNumber string `json:"reference_number"`
}

func (h *Handler) handleSearchAudit(w http.ResponseWriter, r *http.Request) {
	filters, err := parseSearchFilters(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	result, err := h.service.SearchAuditLog(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if wantsCSV(r) {
		h.writeCSV(w, "audit-log.csv", result.Entries)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")
	entries, err := h.service.GetAuditTrail(r.Context(), entityType, entityID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if wantsCSV(r) {
		h.writeCSV(w, fmt.Sprintf("audit-%s-%s.csv", entityType, entityID), entries)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleListLocks(w http.ResponseWriter, r *http.Request) {
	filter := periodlock.ListFilter{
		PeriodType: periodlock.PeriodType(strings.TrimSpace(r.URL.Query().Get("period_type"))),
	}
	if filter.PeriodType != "" && !filter.PeriodType.Valid() {
		httpx.RespondError(w, r, fmt.Errorf("%w: unknown period_type %q", shared.ErrValidation, filter.PeriodType))
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, r, fmt.Errorf("%w: active must be a boolean", shared.ErrValidation))
			return
		}
		filter.ActiveOnly = active
	}

	key := fmt.Sprintf("%s|%t", filter.PeriodType, filter.ActiveOnly)
	ch := h.lockList.DoChan(key, func() (any, error) {
		return h.service.GetPeriodLocks(context.WithoutCancel(r.Context()), filter)
	})
	select {
	case <-r.Context().Done():
		return
	case res := <-ch:
		if res.Err != nil {
			httpx.RespondError(w, r, res.Err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"locks": res.Val})
	}
}

func (h *Handler) handleLockPeriod(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	lock, err := h.service.LockPeriod(r.Context(), periodlock.LockInput{
		PeriodType: periodlock.PeriodType(req.PeriodType),
		PeriodKey:  req.PeriodKey,
		Reason:     req.Reason,
	}, actorContext(r))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lock)
}

func (h *Handler) handleIsLocked(w http.ResponseWriter, r *http.Request) {
	periodKey := chi.URLParam(r, "periodKey")
	locked, err := h.service.IsPeriodLocked(r.Context(), periodKey)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lockStatusResponse{PeriodKey: periodKey, Locked: locked})
}

func (h *Handler) handleUnlockPeriod(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	lock, err := h.service.UnlockPeriod(r.Context(), chi.URLParam(r, "periodKey"), req.Reason, actorContext(r))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lock)
}

func (h *Handler) handleCheckDate(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		httpx.RespondError(w, r, fmt.Errorf("%w: date must be YYYY-MM-DD", shared.ErrValidation))
		return
	}
	lock, err := h.service.CheckPeriodLock(r.Context(), date)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Date: date.Format(dateLayout), Locked: lock != nil, Lock: lock})
}

func (h *Handler) handleNextSequence(w http.ResponseWriter, r *http.Request) {
	documentType, year, err := sequenceParams(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	ref, err := h.service.GetNextSequenceNumber(r.Context(), documentType, year)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	h.logger.InfoContext(r.Context(), "reference number issued", slog.String("reference_number", ref), slog.String("user_id", actor.UserID))
	httpx.JSON(w, http.StatusCreated, sequenceResponse{ReferenceNumber: ref})
}

func (h *Handler) handleSequenceGaps(w http.ResponseWriter, r *http.Request) {
	documentType, year, err := sequenceParams(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	report, err := h.service.SequenceGaps(r.Context(), documentType, year)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleBackfill(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.BackfillReferenceNumbers(r.Context(), actorContext(r))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed JSON body", shared.ErrValidation)
	}
	if err := h.validator.Struct(target); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fieldErr.Field(), fieldErr.Tag()))
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, entries []audit.Entry) {
	err := httpx.CSV(w, filename, func(out io.Writer) error {
		return audit.WriteCSV(out, entries)
	})
	if err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func actorContext(r *http.Request) audit.Context {
	return audit.ContextFromActor(shared.ActorFromContext(r.Context()))
}

func wantsCSV(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "csv")
}

func sequenceParams(r *http.Request) (string, int, error) {
	documentType := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "documentType")))
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return "", 0, fmt.Errorf("%w: year must be numeric", shared.ErrValidation)
	}
	return documentType, year, nil
}

func parseSearchFilters(r *http.Request) (audit.SearchFilters, error) {
	q := r.URL.Query()
	filters := audit.SearchFilters{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     audit.Action(strings.ToLower(strings.TrimSpace(q.Get("action")))),
		UserID:     q.Get("user_id"),
	}
	var err error
	if filters.From, err = parseTime(q.Get("from"), false); err != nil {
		return audit.SearchFilters{}, fmt.Errorf("%w: from: %v", shared.ErrValidation, err)
	}
	if filters.To, err = parseTime(q.Get("to"), true); err != nil {
		return audit.SearchFilters{}, fmt.Errorf("%w: to: %v", shared.ErrValidation, err)
	}
	if filters.Limit, err = parseInt(q.Get("limit")); err != nil {
		return audit.SearchFilters{}, fmt.Errorf("%w: limit: %v", shared.ErrValidation, err)
	}
	if filters.Offset, err = parseInt(q.Get("offset")); err != nil {
		return audit.SearchFilters{}, fmt.Errorf("%w: offset: %v", shared.ErrValidation, err)
	}
	return filters, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates. A plain upper bound
// covers the whole day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
