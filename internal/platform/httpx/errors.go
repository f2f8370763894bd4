// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807. Period lock
// violations are rendered in the language negotiated from Accept-Language.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	if locked, ok := periodlock.IsPeriodLockedError(err); ok {
		lang := periodlock.MatchLanguage(r.Header.Get("Accept-Language"))
		Problem(w, http.StatusLocked, "Period Locked", locked.Localize(lang))
		return
	}
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrPeriodLocked):
		Problem(w, http.StatusLocked, "Period Locked", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrStorageIntegrity):
		slog.ErrorContext(r.Context(), "storage integrity violation", slog.String("path", r.URL.Path), slog.Any("error", err))
		Problem(w, http.StatusInternalServerError, "Storage Integrity Violation", "")
	default:
		slog.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
