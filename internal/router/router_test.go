package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/middleware"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

const testSecret = "test-secret"

// Embedded nil interfaces: only the methods a test calls are implemented.
type stubPricing struct {
	service.PricingService
	gotDays  int
	gotActor *uint
}

func (s *stubPricing) History(_ context.Context, productID uint, days int) (*dto.PriceHistoryResponse, error) {
	s.gotDays = days
	if productID == 404 {
		return nil, apierror.NotFound("product")
	}
	return &dto.PriceHistoryResponse{ProductID: productID, Days: days, History: []dto.PriceHistoryItem{}}, nil
}

func (s *stubPricing) ApproveAdjustment(_ context.Context, id uint, actor *uint) (*dto.AdjustmentItem, error) {
	s.gotActor = actor
	return nil, apierror.Conflict("adjustment %d is not pending", id)
}

type stubSuppliers struct {
	service.SupplierSyncService
	err error
}

func (s *stubSuppliers) Sync(_ context.Context, id uint) (*dto.SupplierSyncResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SupplierSyncResult{SupplierID: id, Status: dto.SyncSuccess}, nil
}

type stubBulk struct {
	service.BulkService
	called bool
}

func (s *stubBulk) Update(_ context.Context, req dto.BulkUpdateRequest, _ *uint) (*dto.BulkUpdateResponse, error) {
	s.called = true
	return &dto.BulkUpdateResponse{PreviewOnly: true}, nil
}

type stubMargin struct {
	service.MarginService
}

func (stubMargin) Report(context.Context, string, *uint) ([]byte, error) {
	return []byte("%PDF-1.3 test"), nil
}

type fixture struct {
	engine    *gin.Engine
	pricing   *stubPricing
	suppliers *stubSuppliers
	bulk      *stubBulk
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{pricing: &stubPricing{}, suppliers: &stubSuppliers{}, bulk: &stubBulk{}}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	registerPricing(r.Group("/v1/pricing", middleware.JWTAuth(testSecret)), &service.Services{
		Pricing:   f.pricing,
		Suppliers: f.suppliers,
		Bulk:      f.bulk,
		Margin:    stubMargin{},
	})
	f.engine = r
	return f
}

func token(t *testing.T, userID uint, role string) string {
	t.Helper()
	claims := middleware.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, 7, role))
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e apierror.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e.Detail
}

func TestPricingRoutes_RequireToken(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodGet, "/v1/pricing/history/1", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPricingRoutes_ViewerCannotWrite(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/v1/pricing/bulk-update", middleware.RolePricingViewer,
		`{"scope":"all","adjustment_type":"percentage","adjustment_value":10,"reason":"spring"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, f.bulk.called)

	w = f.do(t, http.MethodPost, "/v1/pricing/bulk-update", middleware.RolePricingManager,
		`{"scope":"all","adjustment_type":"percentage","adjustment_value":10,"reason":"spring"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.bulk.called)
}

func TestPricingRoutes_HistoryDaysAndNotFound(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodGet, "/v1/pricing/history/3", middleware.RolePricingViewer, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, f.pricing.gotDays)

	w = f.do(t, http.MethodGet, "/v1/pricing/history/3?days=7", middleware.RolePricingViewer, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, f.pricing.gotDays)

	w = f.do(t, http.MethodGet, "/v1/pricing/history/404", middleware.RolePricingViewer, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "product not found", detail(t, w))

	w = f.do(t, http.MethodGet, "/v1/pricing/history/abc", middleware.RolePricingViewer, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPricingRoutes_ErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"feed down", apierror.External(errors.New("dial tcp: refused"), "supplier feed unreachable"), http.StatusBadGateway, "supplier feed unreachable"},
		{"lease held", apierror.Conflict("sync already running"), http.StatusConflict, "sync already running"},
		{"db failure", apierror.Internal(errors.New("pq: connection reset"), "load links"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.suppliers.err = tc.err
			w := f.do(t, http.MethodPost, "/v1/pricing/suppliers/5/sync", middleware.RoleAdmin, "")
			assert.Equal(t, tc.status, w.Code)
			if tc.detail != "" {
				assert.Equal(t, tc.detail, detail(t, w))
			}
		})
	}
}

func TestPricingRoutes_ApprovePassesActor(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/v1/pricing/adjustments/9/approve", middleware.RolePricingManager, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, f.pricing.gotActor)
	assert.Equal(t, uint(7), *f.pricing.gotActor)
}

func TestPricingRoutes_BulkValidation(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/v1/pricing/bulk-update", middleware.RolePricingManager,
		`{"scope":"everything","adjustment_type":"percentage","adjustment_value":10,"reason":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body apierror.ValidationError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "oneof", body.Fields["scope"])
	assert.Equal(t, "min", body.Fields["reason"])
	assert.False(t, f.bulk.called)
}

func TestPricingRoutes_MarginPDF(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodGet, "/v1/pricing/margin-analysis.pdf", middleware.RolePricingViewer, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "margin-analysis-all.pdf")
}
