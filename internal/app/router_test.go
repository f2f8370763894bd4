package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	compliancehttp "github.com/odyssey-erp/gobd-ledger/internal/compliance/http"
	"github.com/odyssey-erp/gobd-ledger/internal/observability"
	"github.com/odyssey-erp/gobd-ledger/internal/store/memory"
)

func TestRouterHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Config: &Config{}, Metrics: metrics})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `gobd_http_requests_total{code="200",route="/healthz"} 1`), rr.Body.String())
}

func TestRouterReadiness(t *testing.T) {
	var fail bool
	router := NewRouter(RouterParams{Ready: func(ctx context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	fail = true
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterMountsCompliance(t *testing.T) {
	svc := compliance.NewService(memory.New())
	handler := compliancehttp.NewHandler(nil, svc, compliancehttp.Config{AdminTokenHash: "$2a$10$invalidinvalidinvalidinv"})
	router := NewRouter(RouterParams{ComplianceHandler: handler})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/compliance/periods/locks", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
