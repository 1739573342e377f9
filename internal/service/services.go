package service

import (
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

// Services bundles every pricing service over one store, so the HTTP router
// and the worker pool share the same instances (and singleflight groups).
type Services struct {
	Rules       RuleService
	Pricing     PricingService
	Suppliers   SupplierSyncService
	Competitors CompetitorService
	Bulk        BulkService
	Margin      MarginService
}

func NewServices(store repository.Store, feeds pricing.FeedSource, renderer MarginReportRenderer, settings Settings) *Services {
	return &Services{
		Rules:       NewRuleService(store),
		Pricing:     NewPricingService(store, settings),
		Suppliers:   NewSupplierSyncService(store, feeds, settings),
		Competitors: NewCompetitorService(store, feeds, settings),
		Bulk:        NewBulkService(store, settings),
		Margin:      NewMarginService(store, renderer, settings),
	}
}
