package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/config"
	"github.com/jlongo78/joe-ritchey-machining/internal/handler"
	"github.com/jlongo78/joe-ritchey-machining/internal/middleware"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

// New wires the HTTP surface over already-built services and returns a
// configured Gin engine.
// Dependency graph: Handler ← Service ← Store ← DB; feeds ← FeedGateway
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, feeds handler.BreakerReporter, svcs *service.Services) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(rateLimit(cfg), time.Minute))
	r.Use(middleware.Metrics())

	// ── Public ───────────────────────────────────────────────────────────────
	r.GET("/health", handler.Health(db, rdb, feeds))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger UI, only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerPricing(r.Group("/v1/pricing", middleware.JWTAuth(cfg.JWTSecret)), svcs)
	return r
}

// registerPricing declares every /v1/pricing route with its roles. Split out
// so handler tests can mount the same table without DB or Redis.
func registerPricing(v1 *gin.RouterGroup, svcs *service.Services) {
	rulesH := handler.NewRulesHandler(svcs.Rules, svcs.Pricing)
	suppliersH := handler.NewSuppliersHandler(svcs.Suppliers)
	competitorsH := handler.NewCompetitorsHandler(svcs.Competitors)
	bulkH := handler.NewBulkHandler(svcs.Bulk)
	pricesH := handler.NewPricesHandler(svcs.Pricing)
	marginH := handler.NewMarginHandler(svcs.Margin)

	// Roles: pricing_viewer reads, pricing_manager writes, admin does both
	read := middleware.RequireRole(middleware.RolePricingViewer, middleware.RolePricingManager, middleware.RoleAdmin)
	write := middleware.RequireRole(middleware.RolePricingManager, middleware.RoleAdmin)

	sup := v1.Group("/suppliers")
	{
		sup.GET("/due-for-sync", read, suppliersH.DueForSync)
		sup.POST("/:id/sync", write, suppliersH.Sync)
		sup.POST("/:id/fetch", write, suppliersH.FetchPreview)
		sup.POST("/:id/schedule", write, suppliersH.Schedule)
	}

	comp := v1.Group("/competitors")
	{
		comp.GET("/due-for-sync", read, competitorsH.DueForSync)
		comp.POST("/:id/fetch", write, competitorsH.Fetch)
		comp.POST("/:id/observations", write, competitorsH.RecordObservations)
	}

	rules := v1.Group("/rules")
	{
		rules.GET("", read, rulesH.List)
		rules.GET("/:id", read, rulesH.Get)
		rules.POST("", write, rulesH.Create)
		rules.PUT("/:id", write, rulesH.Update)
		rules.DELETE("/:id", write, rulesH.Delete)
		rules.POST("/:id/apply/:product_id", write, rulesH.Apply)
	}

	v1.POST("/bulk-update", write, bulkH.Update)
	v1.GET("/history/:product_id", read, pricesH.History)
	v1.PUT("/products/:id/price", write, pricesH.UpdatePrice)

	adj := v1.Group("/adjustments")
	{
		adj.GET("", read, pricesH.ListAdjustments)
		adj.POST("/:id/approve", write, pricesH.Approve)
		adj.POST("/:id/reject", write, pricesH.Reject)
	}

	v1.GET("/margin-analysis", read, marginH.Analyze)
	v1.GET("/margin-analysis.pdf", read, marginH.ReportPDF)
}

func rateLimit(cfg *config.Config) int {
	if cfg.HTTPRateLimitPerMin <= 0 {
		return 600
	}
	return cfg.HTTPRateLimitPerMin
}
