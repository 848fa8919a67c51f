package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/models"
	"lender-match-workers/internal/recommendation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticCatalog struct {
	snap *models.CatalogSnapshot
	err  error
}

func (s *staticCatalog) Products(ctx context.Context) (*models.CatalogSnapshot, error) {
	return s.snap, s.err
}

func testCatalog() *models.CatalogSnapshot {
	return &models.CatalogSnapshot{
		Source:    "staff_api",
		FetchedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Products: []models.LenderProduct{
			{ID: "ca-loc", Name: "Flex Line", Category: "line_of_credit", Country: "CA", MinAmount: 5000, MaxAmount: models.Float64(150000), Active: true},
			{ID: "us-term", Name: "Term 36", Category: "term_loan", Country: "US", MinAmount: 25000, Active: true},
			{ID: "both-equip", Name: "Equipment Lease", Category: "equipment_financing", Country: "Both", Active: true},
		},
	}
}

func newTestServer(t *testing.T, cat *staticCatalog, cfg Config, checks map[string]ReadinessCheck) *Server {
	t.Helper()
	svc := recommendation.NewService(cat, recommendation.Options{}, nil, logger.NewNoOpLogger())
	return NewServer(cfg, svc, checks, logger.NewTestLogger(t))
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRecommend(t *testing.T) {
	s := newTestServer(t, &staticCatalog{snap: testCatalog()}, Config{}, nil)

	w := do(t, s, http.MethodPost, "/api/v1/recommendations",
		`{"formData":{"headquarters":"canada","fundingAmount":40000,"lookingFor":"capital"},"monthlyRevenue":9000,"explain":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	var resp struct {
		Recommendations []models.ScoredProduct          `json:"recommendations"`
		EligibleCount   int                             `json:"eligibleCount"`
		TotalEvaluated  int                             `json:"totalEvaluated"`
		Decisions       []recommendation.FilterDecision `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalEvaluated)
	assert.Equal(t, 1, resp.EligibleCount)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "ca-loc", resp.Recommendations[0].ID)
	assert.Len(t, resp.Decisions, 3)
}

type rotatingCatalog struct {
	snaps []*models.CatalogSnapshot
	calls int
}

func (r *rotatingCatalog) Products(ctx context.Context) (*models.CatalogSnapshot, error) {
	snap := r.snaps[r.calls%len(r.snaps)]
	r.calls++
	return snap, nil
}

func TestRecommend_ExplainUsesRankedSnapshot(t *testing.T) {
	refreshed := &models.CatalogSnapshot{
		Source: "postgres",
		Products: []models.LenderProduct{
			{ID: "new-loc", Name: "New Line", Category: "line_of_credit", Country: "CA", Active: true},
		},
	}
	cat := &rotatingCatalog{snaps: []*models.CatalogSnapshot{testCatalog(), refreshed}}
	svc := recommendation.NewService(cat, recommendation.Options{}, nil, logger.NewNoOpLogger())
	s := NewServer(Config{}, svc, nil, logger.NewTestLogger(t))

	w := do(t, s, http.MethodPost, "/api/v1/recommendations",
		`{"formData":{"headquarters":"CA","fundingAmount":40000,"lookingFor":"capital"},"monthlyRevenue":9000,"explain":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, cat.calls)

	var resp struct {
		CatalogSource string                          `json:"catalogSource"`
		Decisions     []recommendation.FilterDecision `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "staff_api", resp.CatalogSource)
	require.Len(t, resp.Decisions, 3)
	ids := make([]string, len(resp.Decisions))
	for i, d := range resp.Decisions {
		ids[i] = d.ProductID
	}
	assert.Equal(t, []string{"ca-loc", "us-term", "both-equip"}, ids)
}

func TestRecommend_NoEligibleIsNotAnError(t *testing.T) {
	s := newTestServer(t, &staticCatalog{snap: testCatalog()}, Config{}, nil)

	w := do(t, s, http.MethodPost, "/api/v1/recommendations",
		`{"formData":{"headquarters":"CA","fundingAmount":9000000,"lookingFor":"capital"},"monthlyRevenue":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["noEligibleProducts"])
	assert.Equal(t, recommendation.EmptyReasonNoMatch, body["emptyReason"])
}

func TestRecommend_BadRequests(t *testing.T) {
	s := newTestServer(t, &staticCatalog{snap: testCatalog()}, Config{MaxBodyBytes: 256}, nil)

	tests := map[string]struct {
		body   string
		status int
	}{
		"not json":       {`{"formData":`, http.StatusBadRequest},
		"missing form":   {`{"monthlyRevenue":1}`, http.StatusBadRequest},
		"negative":       {`{"formData":{"headquarters":"CA","fundingAmount":-1}}`, http.StatusBadRequest},
		"body too large": {`{"formData":{"headquarters":"` + strings.Repeat("x", 500) + `","fundingAmount":1}}`, http.StatusRequestEntityTooLarge},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/v1/recommendations", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := do(t, s, http.MethodPost, "/api/v1/recommendations", `{"formData":{"headquarters":"CA","fundingAmount":-1}}`)
	body := decode(t, w)
	assert.Equal(t, string(errors.ErrCodeInvalidInput), body["error"])
	assert.NotEmpty(t, body["errors"])
}

func TestRecommend_CatalogUnavailable(t *testing.T) {
	s := newTestServer(t, &staticCatalog{err: stderrors.New("all sources down")}, Config{}, nil)

	w := do(t, s, http.MethodPost, "/api/v1/recommendations", `{"formData":{"headquarters":"CA","fundingAmount":1}}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, string(errors.ErrCodeCatalogUnavailable), decode(t, w)["error"])
}

func TestListProducts(t *testing.T) {
	s := newTestServer(t, &staticCatalog{snap: testCatalog()}, Config{}, nil)

	var resp ProductsResponse
	w := do(t, s, http.MethodGet, "/api/v1/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, "staff_api", resp.Source)

	w = do(t, s, http.MethodGet, "/api/v1/products?country=US", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	w = do(t, s, http.MethodGet, "/api/v1/products?country=CA&category=line", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "ca-loc", resp.Products[0].ID)

	w = do(t, s, http.MethodGet, "/api/v1/products?category=equipment%20financing", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestListCategories(t *testing.T) {
	s := newTestServer(t, &staticCatalog{snap: testCatalog()}, Config{}, nil)

	var resp CategoriesResponse
	w := do(t, s, http.MethodGet, "/api/v1/products/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Categories, 3)
}

func TestHealthAndReady(t *testing.T) {
	checks := map[string]ReadinessCheck{
		"redis":    func(ctx context.Context) error { return nil },
		"postgres": func(ctx context.Context) error { return stderrors.New("dial tcp: refused") },
	}
	s := newTestServer(t, &staticCatalog{snap: testCatalog()}, Config{}, checks)

	w := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, "ok", body["checks"].(map[string]interface{})["redis"])
	assert.Equal(t, "dial tcp: refused", body["checks"].(map[string]interface{})["postgres"])

	w = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &staticCatalog{snap: testCatalog()}, Config{RateLimit: 0.001, RateBurst: 2}, nil)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/products", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/products", "").Code)
	w := do(t, s, http.MethodGet, "/api/v1/products", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// health endpoints are not rate limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, &staticCatalog{snap: testCatalog()}, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "5f0c6f0e-4b61-4a8e-9d2b-3b0b8cfa7d11")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "5f0c6f0e-4b61-4a8e-9d2b-3b0b8cfa7d11", w.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(HeaderRequestID))
}

func TestClientLimiter_IsPerClient(t *testing.T) {
	cl := NewClientLimiter(0.001, 1, 0)
	assert.True(t, cl.Allow("10.0.0.1"))
	assert.False(t, cl.Allow("10.0.0.1"))
	assert.True(t, cl.Allow("10.0.0.2"))
}
