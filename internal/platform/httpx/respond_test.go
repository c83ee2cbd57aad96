package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemCarriesRequestID(t *testing.T) {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Problem(w, r, http.StatusConflict, "Duplicate Request", "in progress")
	})
	h = middleware.RequestID(h)

	req := httptest.NewRequest(http.MethodPost, "/invoices/7/payments", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, ProblemDetail{
		Title:     "Duplicate Request",
		Status:    http.StatusConflict,
		Detail:    "in progress",
		Instance:  "/invoices/7/payments",
		RequestID: "req-42",
	}, p)
}

func TestRawWritesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Raw(rec, http.StatusOK, []byte(`{"id":1}`))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":1}`, rec.Body.String())
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	var out struct{ A int }
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"A":1}`))
	require.NoError(t, DecodeJSON(req, &out))
	assert.Equal(t, 1, out.A)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"A":1}{"A":2}`))
	assert.Error(t, DecodeJSON(req, &out))
}
