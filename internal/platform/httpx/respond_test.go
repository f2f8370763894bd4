package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockBody struct {
	PeriodKey string `json:"period_key"`
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string) (lockBody, error) {
		var out lockBody
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return out, DecodeJSON(req, &out)
	}

	got, err := decode(`{"period_key":"2025-01"}`)
	require.NoError(t, err)
	assert.Equal(t, "2025-01", got.PeriodKey)

	for name, body := range map[string]string{
		"unknown field": `{"period_key":"2025-01","locked_by":"x"}`,
		"trailing data": `{"period_key":"2025-01"}{"period_key":"2025-02"}`,
		"truncated":     `{"period_key":`,
		"oversized":     `{"period_key":"` + strings.Repeat("x", MaxBodyBytes) + `"}`,
	} {
		_, err := decode(body)
		assert.ErrorIs(t, err, ErrMalformedBody, name)
	}
}

func TestProblemUsesProblemJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusConflict, "Conflict", "period already locked")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"type":"about:blank","title":"Conflict","status":409,"detail":"period already locked"}`, rec.Body.String())
}

func TestCSVSetsAttachmentHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	err := CSV(rec, "audit-log.csv", func(w io.Writer) error {
		_, err := io.WriteString(w, "id\n1\n")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="audit-log.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "id\n1\n", rec.Body.String())
}
