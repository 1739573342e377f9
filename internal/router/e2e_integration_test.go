//go:build integration

package router

// e2e_integration_test.go
// End-to-end tests against real Postgres + Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/config"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/infra"
	"github.com/jlongo78/joe-ritchey-machining/internal/middleware"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
	"github.com/jlongo78/joe-ritchey-machining/internal/worker"
)

type e2eEnv struct {
	server *httptest.Server
	db     *gorm.DB
	store  repository.Store
	disp   *worker.Dispatcher
	token  string
}

func setupE2E(t *testing.T) *e2eEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("pricing_test"),
		tcPostgres.WithUsername("shop"),
		tcPostgres.WithPassword("shop"),
		tcPostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pgC)
	require.NoError(t, err)
	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, rdC)
	require.NoError(t, err)
	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:                  "test",
		JWTSecret:            testSecret,
		DatabaseURL:          pgURL,
		RedisURL:             rdURL,
		DefaultMinMarginPct:  15,
		DefaultMaxMarginPct:  40,
		DefaultRounding:      "nearest_99",
		FeedTimeoutSeconds:   5,
		FeedDefaultRateLimit: 60,
		CORSAllowedOrigins:   "*",
	}

	// NewDatabase runs migrations
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	store := repository.NewStore(db)
	feeds := infra.NewFeedGateway(infra.NewHTTPFeedClient(), infra.NewXMLRPCFeedClient(), infra.DefaultCBConfig())
	svcs := service.NewServices(store, feeds, infra.NewMarginReportPDF(""), service.SettingsFromConfig(cfg))

	srv := httptest.NewServer(New(cfg, db, rdb, feeds, svcs))
	t.Cleanup(srv.Close)

	return &e2eEnv{
		server: srv,
		db:     db,
		store:  store,
		disp:   worker.NewDispatcher(rdb, time.Minute),
		token:  token(t, 1, middleware.RoleAdmin),
	}
}

func (e *e2eEnv) call(t *testing.T, method, path string, body any, dest any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dest != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
	}
	return resp.StatusCode
}

func seedCatalog(t *testing.T, db *gorm.DB, feedURL string) (model.Product, model.Supplier) {
	t.Helper()
	p := model.Product{
		SKU: "BRK-100", Name: "Brake pad set",
		Cost: decimal.RequireFromString("45"), RetailPrice: decimal.RequireFromString("59.99"),
		CompetitorMatchEnabled: true, StockQuantity: 12, IsActive: true,
	}
	require.NoError(t, db.Create(&p).Error)

	s := model.Supplier{Code: "ACME", Name: "Acme Parts", IsActive: true}
	require.NoError(t, db.Create(&s).Error)
	require.NoError(t, db.Create(&model.SupplierAPIConfig{
		SupplierID: s.ID, APIType: "rest", BaseURL: feedURL, PriceEndpoint: "/prices",
		RequestMethod: "GET", AuthType: "none", FeedFormat: "json",
		RateLimitPerMinute: 60, TimeoutSeconds: 5, SyncIntervalHours: 24, IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&model.ProductSupplier{
		ProductID: p.ID, SupplierID: s.ID, SupplierSKU: "ACME-BRK-100",
		CostPrice: decimal.RequireFromString("45"), IsActive: true,
	}).Error)
	return p, s
}

func TestE2E_SupplierCostChangeReprices(t *testing.T) {
	env := setupE2E(t)

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[{"sku":"ACME-BRK-100","price":50.00},{"sku":"UNKNOWN","price":"x"}]}`)
	}))
	defer feed.Close()
	product, supplier := seedCatalog(t, env.db, feed.URL)

	var rule dto.RuleResponse
	status := env.call(t, http.MethodPost, "/v1/pricing/rules", map[string]any{
		"name": "default markup", "rule_type": "margin_based", "priority": 10,
		"applies_to": "all", "action_type": "markup_percent", "action_value": 30,
	}, &rule)
	require.Equal(t, http.StatusCreated, status)

	var res dto.SupplierSyncResult
	status = env.call(t, http.MethodPost, "/v1/pricing/suppliers/"+itoa(supplier.ID)+"/sync", nil, &res)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, res.ProductsUpdated)
	assert.Equal(t, 1, res.ProductsRepriced)
	assert.Len(t, res.ParseErrors, 1)

	var got model.Product
	require.NoError(t, env.db.First(&got, product.ID).Error)
	assert.Equal(t, "50.00", got.Cost.StringFixed(2))
	assert.Equal(t, "64.99", got.RetailPrice.StringFixed(2))

	var hist dto.PriceHistoryResponse
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/v1/pricing/history/"+itoa(product.ID), nil, &hist))
	retailRows := 0
	for _, h := range hist.History {
		if h.RetailPrice != nil {
			retailRows++
			assert.Equal(t, "64.99", h.RetailPrice.StringFixed(2))
			assert.Equal(t, "supplier_api", h.Source)
		}
	}
	assert.Equal(t, 1, retailRows)

	var adj dto.AdjustmentListResponse
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/v1/pricing/adjustments?product_id="+itoa(product.ID), nil, &adj))
	require.Len(t, adj.Data, 1)
	assert.Equal(t, "applied", adj.Data[0].Status)
	assert.Equal(t, "default markup", adj.Data[0].RuleName)

	// same feed again: cost unchanged, nothing new is written
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/v1/pricing/suppliers/"+itoa(supplier.ID)+"/sync", nil, &res))
	assert.Equal(t, 0, res.ProductsUpdated)
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/v1/pricing/adjustments?product_id="+itoa(product.ID), nil, &adj))
	assert.Len(t, adj.Data, 1)
}

func TestE2E_PriceWritesAreCompareAndSwap(t *testing.T) {
	env := setupE2E(t)
	product, _ := seedCatalog(t, env.db, "http://127.0.0.1:1")

	var wg sync.WaitGroup
	wins := make([]bool, 2)
	for i := range wins {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := env.store.Products().UpdatePrices(context.Background(), product.ID, product.PriceVersion,
				decimal.RequireFromString("45"), decimal.NewFromInt(int64(60+i)))
			assert.NoError(t, err)
			wins[i] = ok
		}(i)
	}
	wg.Wait()
	assert.NotEqual(t, wins[0], wins[1], "exactly one writer wins")
}

func TestE2E_SupplierLeaseIsSingleFlight(t *testing.T) {
	env := setupE2E(t)
	_, supplier := seedCatalog(t, env.db, "http://127.0.0.1:1")
	ctx := context.Background()

	cfg, err := env.store.Suppliers().FindConfig(ctx, supplier.ID)
	require.NoError(t, err)
	now := time.Now()
	ok, err := env.store.Suppliers().AcquireLease(ctx, cfg.ID, "a", now, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.store.Suppliers().AcquireLease(ctx, cfg.ID, "b", now, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	var body map[string]string
	status := env.call(t, http.MethodPost, "/v1/pricing/suppliers/"+itoa(supplier.ID)+"/sync", nil, &body)
	assert.Equal(t, http.StatusConflict, status)

	// an expired lease can be taken over
	ok, err = env.store.Suppliers().AcquireLease(ctx, cfg.ID, "b", now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestE2E_DispatcherQueuesTargetOnce(t *testing.T) {
	env := setupE2E(t)
	ctx := context.Background()

	ok, err := env.disp.EnqueueSupplierSync(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.disp.EnqueueSupplierSync(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = env.disp.EnqueueCompetitorSync(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
