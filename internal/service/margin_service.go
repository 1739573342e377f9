package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

// MarginReportRenderer turns an analysis into a downloadable document.
type MarginReportRenderer interface {
	RenderMarginReport(report *dto.MarginAnalysisResponse) ([]byte, error)
}

type MarginService interface {
	Analyze(ctx context.Context, scope string, scopeID *uint) (*dto.MarginAnalysisResponse, error)
	Report(ctx context.Context, scope string, scopeID *uint) ([]byte, error)
}

type marginService struct {
	store    repository.Store
	renderer MarginReportRenderer
	settings Settings
	now      func() time.Time
}

func NewMarginService(store repository.Store, renderer MarginReportRenderer, settings Settings) MarginService {
	return &marginService{store: store, renderer: renderer, settings: settings, now: time.Now}
}

// Analyze is read-only: it reports margins against each product's effective
// bounds without proposing or writing any price.
func (s *marginService) Analyze(ctx context.Context, scope string, scopeID *uint) (*dto.MarginAnalysisResponse, error) {
	sc := pricing.Scope(scope)
	if scope == "" {
		sc = pricing.ScopeAll
	}
	if !sc.Valid() {
		return nil, apierror.Validation("scope must be one of product, category, brand, all")
	}
	var ids []uint
	if sc != pricing.ScopeAll {
		if scopeID == nil {
			return nil, apierror.Validation("scope_id is required for scope %q", sc)
		}
		ids = []uint{*scopeID}
		missing, err := s.store.Products().MissingScopeIDs(ctx, sc, ids)
		if err != nil {
			return nil, apierror.Internal(err, "check scope")
		}
		if len(missing) > 0 {
			return nil, apierror.NotFound(string(sc))
		}
	}

	productIDs, err := s.store.Products().ListIDsByScope(ctx, sc, ids)
	if err != nil {
		return nil, apierror.Internal(err, "list products in scope")
	}
	resp := &dto.MarginAnalysisResponse{
		Scope:       string(sc),
		ScopeID:     scopeID,
		BelowMin:    []dto.MarginItem{},
		AboveMax:    []dto.MarginItem{},
		Products:    []dto.MarginItem{},
		GeneratedAt: s.now(),
	}

	sum := decimal.Zero
	chunk := positiveOr(s.settings.BulkChunkSize, 200)
	for start := 0; start < len(productIDs); start += chunk {
		end := min(start+chunk, len(productIDs))
		products, err := s.store.Products().FindByIDs(ctx, productIDs[start:end])
		if err != nil {
			return nil, apierror.Internal(err, "load products")
		}
		for i := range products {
			p := &products[i]
			if !p.RetailPrice.IsPositive() {
				continue
			}
			policy := pricing.EffectivePolicy(s.settings.Defaults, p.MinMarginPercent, p.MaxMarginPercent, p.PriceRounding)
			item := dto.MarginItem{
				ProductID:     p.ID,
				SKU:           p.SKU,
				Name:          p.Name,
				Cost:          p.Cost,
				RetailPrice:   p.RetailPrice,
				MarginPercent: pricing.Margin(p.RetailPrice, p.Cost).Round(2),
				MarginAmount:  pricing.MarginAmount(p.RetailPrice, p.Cost),
				MinMargin:     policy.MinMargin,
				MaxMargin:     policy.MaxMargin,
			}
			if resp.ProductCount == 0 || item.MarginPercent.LessThan(resp.MinMargin) {
				resp.MinMargin = item.MarginPercent
			}
			if resp.ProductCount == 0 || item.MarginPercent.GreaterThan(resp.MaxMargin) {
				resp.MaxMargin = item.MarginPercent
			}
			resp.ProductCount++
			sum = sum.Add(item.MarginPercent)

			resp.Products = append(resp.Products, item)
			switch {
			case item.MarginPercent.LessThan(policy.MinMargin):
				resp.BelowMin = append(resp.BelowMin, item)
			case item.MarginPercent.GreaterThan(policy.MaxMargin):
				resp.AboveMax = append(resp.AboveMax, item)
			}
		}
	}
	if resp.ProductCount > 0 {
		resp.AverageMargin = sum.Div(decimal.NewFromInt(int64(resp.ProductCount))).Round(2)
	}
	byMargin(resp.Products)
	byMargin(resp.BelowMin)
	byMargin(resp.AboveMax)
	return resp, nil
}

func (s *marginService) Report(ctx context.Context, scope string, scopeID *uint) ([]byte, error) {
	report, err := s.Analyze(ctx, scope, scopeID)
	if err != nil {
		return nil, err
	}
	pdf, err := s.renderer.RenderMarginReport(report)
	if err != nil {
		return nil, apierror.Internal(err, "render margin report")
	}
	return pdf, nil
}

func byMargin(items []dto.MarginItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].MarginPercent.LessThan(items[j].MarginPercent)
	})
}
