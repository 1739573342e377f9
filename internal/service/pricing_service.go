package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

// PricingService covers the on-demand pipeline entry points, manual price
// edits, the price ledger queries and the adjustment approval flow.
type PricingService interface {
	ApplyRule(ctx context.Context, ruleID, productID uint, baseCost *decimal.Decimal, actor *uint) (*dto.RepriceResponse, error)
	UpdateProductPrice(ctx context.Context, productID uint, req dto.ManualPriceRequest, actor *uint) (*dto.ManualPriceResponse, error)
	History(ctx context.Context, productID uint, days int) (*dto.PriceHistoryResponse, error)
	ListAdjustments(ctx context.Context, filter dto.AdjustmentFilter) (*dto.AdjustmentListResponse, error)
	ApproveAdjustment(ctx context.Context, id uint, actor *uint) (*dto.AdjustmentItem, error)
	RejectAdjustment(ctx context.Context, id uint, actor *uint) (*dto.AdjustmentItem, error)
}

type pricingService struct {
	store    repository.Store
	pipeline *pipeline
	now      func() time.Time
}

func NewPricingService(store repository.Store, settings Settings) PricingService {
	return newPricingService(store, settings, time.Now)
}

func newPricingService(store repository.Store, settings Settings, now func() time.Time) *pricingService {
	return &pricingService{store: store, pipeline: newPipeline(settings, now), now: now}
}

// ── ApplyRule ────────────────────────────────────────────────────────────────
// Runs a specific rule against a product regardless of scope resolution. The
// margin window and approval policy still apply.

func (s *pricingService) ApplyRule(ctx context.Context, ruleID, productID uint, baseCost *decimal.Decimal, actor *uint) (*dto.RepriceResponse, error) {
	if baseCost != nil && !baseCost.IsPositive() {
		return nil, apierror.Validation("base_cost must be > 0")
	}
	row, err := s.store.Rules().FindByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	rule := toRule(row)

	var out *repriceOutcome
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		var err error
		out, err = s.pipeline.run(ctx, tx, repriceRequest{
			ProductID: productID,
			Cost:      baseCost,
			Rule:      &rule,
			Source:    pricing.SourceAutomatic,
			Actor:     actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Uint("rule_id", ruleID).Uint("product_id", productID).
		Str("status", out.Response.Status).
		Str("new_price", out.Response.NewPrice.String()).
		Msg("rule applied on demand")
	return &out.Response, nil
}

// ── UpdateProductPrice ───────────────────────────────────────────────────────
// A new retail price is written as given. A new cost alone goes through the
// rule pipeline exactly like a supplier cost change.

func (s *pricingService) UpdateProductPrice(ctx context.Context, productID uint, req dto.ManualPriceRequest, actor *uint) (*dto.ManualPriceResponse, error) {
	if req.NewCost == nil && req.NewRetailPrice == nil {
		return nil, apierror.Validation("new_cost or new_retail_price is required")
	}
	if req.NewCost != nil && !req.NewCost.IsPositive() {
		return nil, apierror.Validation("new_cost must be > 0")
	}
	if req.NewRetailPrice != nil && !req.NewRetailPrice.IsPositive() {
		return nil, apierror.Validation("new_retail_price must be > 0")
	}

	resp := &dto.ManualPriceResponse{ProductID: productID}
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		if req.NewRetailPrice == nil {
			rules, err := tx.Rules().ListActive(ctx)
			if err != nil {
				return apierror.Internal(err, "load rules")
			}
			out, err := s.pipeline.run(ctx, tx, repriceRequest{
				ProductID: productID,
				Cost:      req.NewCost,
				Rules:     toRules(rules),
				Source:    pricing.SourceManual,
				Actor:     actor,
				Notes:     "manual cost edit: " + req.Reason,
			})
			if err != nil {
				return err
			}
			resp.Cost = out.Response.Cost
			resp.RetailPrice = out.Response.NewPrice
			if out.Response.Status == string(pricing.StatusPendingApproval) {
				resp.RetailPrice = out.Response.OldPrice
			}
			resp.Changed = out.CostChanged || out.PriceChanged
			resp.Reprice = &out.Response
			return nil
		}
		return s.writeManualPrice(ctx, tx, productID, req, actor, resp)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *pricingService) writeManualPrice(ctx context.Context, tx repository.Store, productID uint, req dto.ManualPriceRequest, actor *uint, resp *dto.ManualPriceResponse) error {
	for attempt := 0; attempt < 2; attempt++ {
		p, err := tx.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		cost := p.Cost
		if req.NewCost != nil {
			cost = *req.NewCost
		}
		price := req.NewRetailPrice.Round(2)
		resp.Cost, resp.RetailPrice = cost, price

		priceChanged := !pricing.IsNoOp(p.RetailPrice, price)
		costChanged := !cost.Equal(p.Cost)
		if !priceChanged && !costChanged {
			resp.RetailPrice = p.RetailPrice
			return nil
		}
		if !priceChanged {
			price = p.RetailPrice
			resp.RetailPrice = price
		}
		won, err := tx.Products().UpdatePrices(ctx, productID, p.PriceVersion, cost, price)
		if err != nil {
			return apierror.Internal(err, "update product price")
		}
		if !won {
			continue
		}
		h := &model.PriceHistory{
			ProductID:  productID,
			CostPrice:  decimal.NewNullDecimal(cost),
			Source:     string(pricing.SourceManual),
			Notes:      strPtr("manual edit: " + req.Reason),
			ChangedBy:  actor,
			RecordedAt: s.now(),
		}
		if priceChanged {
			h.RetailPrice = decimal.NewNullDecimal(price)
		}
		if err := tx.Ledger().AppendHistory(ctx, h); err != nil {
			return apierror.Internal(err, "append price history")
		}
		resp.Changed = true
		log.Info().Uint("product_id", productID).Str("retail_price", price.String()).Msg("manual price edit")
		return nil
	}
	return apierror.Conflict("product %d was modified concurrently, try again", productID)
}

// ── Ledger queries ───────────────────────────────────────────────────────────

func (s *pricingService) History(ctx context.Context, productID uint, days int) (*dto.PriceHistoryResponse, error) {
	if days == 0 {
		days = 30
	}
	if days < 1 || days > 365 {
		return nil, apierror.Validation("days must be between 1 and 365")
	}
	if _, err := s.store.Products().FindByID(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := s.store.Ledger().HistorySince(ctx, productID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, apierror.Internal(err, "load price history")
	}
	items := make([]dto.PriceHistoryItem, 0, len(rows))
	for i := range rows {
		items = append(items, historyToDTO(&rows[i]))
	}
	return &dto.PriceHistoryResponse{ProductID: productID, Days: days, History: items, Count: len(items)}, nil
}

func (s *pricingService) ListAdjustments(ctx context.Context, filter dto.AdjustmentFilter) (*dto.AdjustmentListResponse, error) {
	if filter.Status != "" && !pricing.AdjustmentStatus(filter.Status).Valid() {
		return nil, apierror.Validation("unknown status %q", filter.Status)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}
	rows, total, err := s.store.Ledger().ListAdjustments(ctx, filter)
	if err != nil {
		return nil, apierror.Internal(err, "list adjustments")
	}
	data := make([]dto.AdjustmentItem, 0, len(rows))
	for i := range rows {
		data = append(data, adjustmentToDTO(&rows[i]))
	}
	return &dto.AdjustmentListResponse{Data: data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// ── Approval flow ────────────────────────────────────────────────────────────
// pending_approval → applied writes the proposed price with the same CAS and
// history pairing as the pipeline. pending_approval → rejected only flips the
// status. Either transition happens at most once.

func (s *pricingService) ApproveAdjustment(ctx context.Context, id uint, actor *uint) (*dto.AdjustmentItem, error) {
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		entry, err := tx.Ledger().FindAdjustment(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status != string(pricing.StatusPendingApproval) {
			return apierror.Conflict("adjustment %d is already %s", id, entry.Status)
		}

		for attempt := 0; ; attempt++ {
			p, err := tx.Products().FindByID(ctx, entry.ProductID)
			if err != nil {
				return err
			}
			if entry.NewCost.Valid && !entry.NewCost.Decimal.Equal(p.Cost) {
				return apierror.Conflict("product cost changed since adjustment %d was proposed", id)
			}
			won, err := tx.Products().UpdatePrices(ctx, p.ID, p.PriceVersion, p.Cost, entry.NewPrice)
			if err != nil {
				return apierror.Internal(err, "update product price")
			}
			if won {
				if !pricing.IsNoOp(p.RetailPrice, entry.NewPrice) {
					notes := "approved adjustment"
					if err := tx.Ledger().AppendHistory(ctx, &model.PriceHistory{
						ProductID:   p.ID,
						CostPrice:   decimal.NewNullDecimal(p.Cost),
						RetailPrice: decimal.NewNullDecimal(entry.NewPrice),
						Source:      string(pricing.SourceAutomatic),
						Notes:       &notes,
						ChangedBy:   actor,
						RecordedAt:  s.now(),
					}); err != nil {
						return apierror.Internal(err, "append price history")
					}
				}
				break
			}
			if attempt >= 1 {
				return apierror.Conflict("product %d was modified concurrently, try again", p.ID)
			}
		}
		return s.transition(ctx, tx, id, pricing.StatusApplied, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.findAdjustment(ctx, id)
}

func (s *pricingService) RejectAdjustment(ctx context.Context, id uint, actor *uint) (*dto.AdjustmentItem, error) {
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		if _, err := tx.Ledger().FindAdjustment(ctx, id); err != nil {
			return err
		}
		return s.transition(ctx, tx, id, pricing.StatusRejected, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.findAdjustment(ctx, id)
}

func (s *pricingService) transition(ctx context.Context, tx repository.Store, id uint, to pricing.AdjustmentStatus, actor *uint) error {
	ok, err := tx.Ledger().TransitionAdjustment(ctx, id, pricing.StatusPendingApproval, to, actor, s.now())
	if err != nil {
		return apierror.Internal(err, "update adjustment status")
	}
	if !ok {
		return apierror.Conflict("adjustment %d is no longer pending approval", id)
	}
	log.Info().Uint("adjustment_id", id).Str("status", string(to)).Msg("adjustment reviewed")
	return nil
}

func (s *pricingService) findAdjustment(ctx context.Context, id uint) (*dto.AdjustmentItem, error) {
	entry, err := s.store.Ledger().FindAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	item := adjustmentToDTO(entry)
	return &item, nil
}
