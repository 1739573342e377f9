package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/metrics"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

// BulkService applies an operator adjustment to every product in a scope.
// Rules and margin bounds are bypassed on purpose; the operator owns the
// outcome, and preview shows it before anything is written.
type BulkService interface {
	Update(ctx context.Context, req dto.BulkUpdateRequest, actor *uint) (*dto.BulkUpdateResponse, error)
}

type bulkService struct {
	store    repository.Store
	settings Settings
	now      func() time.Time
}

func NewBulkService(store repository.Store, settings Settings) BulkService {
	return newBulkService(store, settings, time.Now)
}

func newBulkService(store repository.Store, settings Settings, now func() time.Time) *bulkService {
	return &bulkService{store: store, settings: settings, now: now}
}

func (s *bulkService) Update(ctx context.Context, req dto.BulkUpdateRequest, actor *uint) (*dto.BulkUpdateResponse, error) {
	scope, err := bulkScope(req)
	if err != nil {
		return nil, err
	}
	if !pricing.ValidBulkType(req.AdjustmentType) {
		return nil, apierror.Validation("unknown adjustment_type %q", req.AdjustmentType)
	}
	if len(req.Reason) < 3 {
		return nil, apierror.Validation("reason is required")
	}
	adj := pricing.BulkAdjustment{Type: req.AdjustmentType, Value: req.AdjustmentValue, ApplyRounding: req.ApplyRounding}
	preview := req.PreviewOnly == nil || *req.PreviewOnly

	ids, err := s.store.Products().ListIDsByScope(ctx, scope, req.ScopeIDs)
	if err != nil {
		return nil, apierror.Internal(err, "list products in scope")
	}

	resp := &dto.BulkUpdateResponse{
		PreviewOnly: preview,
		Items:       []dto.BulkPreviewItem{},
		Errors:      []dto.ItemError{},
	}
	if scope == pricing.ScopeProduct {
		for _, id := range missingIDs(req.ScopeIDs, ids) {
			resp.Errors = append(resp.Errors, dto.ItemError{ProductID: id, Error: "product not found"})
		}
	}

	chunk := positiveOr(s.settings.BulkChunkSize, 200)
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		if preview {
			err = s.previewChunk(ctx, ids[start:end], adj, resp)
		} else {
			err = s.applyChunk(ctx, ids[start:end], adj, req.Reason, actor, resp)
		}
		if err != nil {
			return nil, err
		}
	}

	mode := "apply"
	if preview {
		mode = "preview"
	}
	metrics.RecordBulkUpdate(mode)
	log.Info().
		Str("mode", mode).
		Str("scope", req.Scope).
		Str("adjustment_type", req.AdjustmentType).
		Str("adjustment_value", req.AdjustmentValue.String()).
		Int("processed", resp.ProductsProcessed).
		Int("updated", resp.ProductsUpdated).
		Int("errors", len(resp.Errors)).
		Msg("bulk price update")
	return resp, nil
}

func (s *bulkService) previewChunk(ctx context.Context, ids []uint, adj pricing.BulkAdjustment, resp *dto.BulkUpdateResponse) error {
	products, err := s.store.Products().FindByIDs(ctx, ids)
	if err != nil {
		return apierror.Internal(err, "load products")
	}
	for i := range products {
		p := &products[i]
		resp.ProductsProcessed++
		item, changed, err := s.compute(p, adj)
		if err != nil {
			resp.Errors = append(resp.Errors, dto.ItemError{ProductID: p.ID, SKU: p.SKU, Error: apierror.PublicMessage(err)})
			continue
		}
		if !changed {
			resp.ProductsUnchanged++
			continue
		}
		resp.Items = append(resp.Items, item)
	}
	return nil
}

// applyChunk writes one chunk in a single transaction. Item failures stay in
// the error list; a storage failure rolls back the chunk and reports every
// product of it.
func (s *bulkService) applyChunk(ctx context.Context, ids []uint, adj pricing.BulkAdjustment, reason string, actor *uint, resp *dto.BulkUpdateResponse) error {
	var local dto.BulkUpdateResponse
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		local = dto.BulkUpdateResponse{}
		for _, id := range ids {
			local.ProductsProcessed++
			item, changed, err := s.applyOne(ctx, tx, id, adj, reason, actor)
			switch {
			case err != nil && apierror.KindOf(err) == apierror.KindInternal:
				return err
			case err != nil:
				local.Errors = append(local.Errors, dto.ItemError{ProductID: id, Error: apierror.PublicMessage(err)})
			case !changed:
				local.ProductsUnchanged++
			default:
				local.ProductsUpdated++
				local.Items = append(local.Items, item)
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("products", len(ids)).Msg("bulk: chunk rolled back")
		resp.ProductsProcessed += len(ids)
		for _, id := range ids {
			resp.Errors = append(resp.Errors, dto.ItemError{ProductID: id, Error: "update failed, nothing written"})
		}
		return nil
	}
	resp.ProductsProcessed += local.ProductsProcessed
	resp.ProductsUpdated += local.ProductsUpdated
	resp.ProductsUnchanged += local.ProductsUnchanged
	resp.Items = append(resp.Items, local.Items...)
	resp.Errors = append(resp.Errors, local.Errors...)
	return nil
}

func (s *bulkService) applyOne(ctx context.Context, tx repository.Store, id uint, adj pricing.BulkAdjustment, reason string, actor *uint) (dto.BulkPreviewItem, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		p, err := tx.Products().FindByID(ctx, id)
		if err != nil {
			return dto.BulkPreviewItem{}, false, err
		}
		item, changed, err := s.compute(p, adj)
		if err != nil || !changed {
			return item, false, err
		}
		won, err := tx.Products().UpdatePrices(ctx, id, p.PriceVersion, p.Cost, item.NewPrice)
		if err != nil {
			return item, false, apierror.Internal(err, "update product price")
		}
		if !won {
			metrics.RecordConflict()
			continue
		}
		notes := fmt.Sprintf("bulk %s %s: %s", adj.Type, adj.Value, reason)
		if err := tx.Ledger().AppendHistory(ctx, &model.PriceHistory{
			ProductID:   id,
			CostPrice:   decimal.NewNullDecimal(p.Cost),
			RetailPrice: decimal.NewNullDecimal(item.NewPrice),
			Source:      string(pricing.SourceManual),
			Notes:       &notes,
			ChangedBy:   actor,
			RecordedAt:  s.now(),
		}); err != nil {
			return item, false, apierror.Internal(err, "append price history")
		}
		return item, true, nil
	}
	return dto.BulkPreviewItem{}, false, apierror.Conflict("product %d was modified concurrently", id)
}

// compute is the single source of the numbers shown in preview and written
// by apply.
func (s *bulkService) compute(p *model.Product, adj pricing.BulkAdjustment) (dto.BulkPreviewItem, bool, error) {
	state := toState(p, s.settings.Defaults)
	price, err := pricing.ComputeBulkPrice(state, adj)
	if err != nil {
		return dto.BulkPreviewItem{}, false, err
	}
	item := dto.BulkPreviewItem{
		ProductID:     p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Cost:          p.Cost,
		CurrentPrice:  p.RetailPrice,
		NewPrice:      price,
		Change:        price.Sub(p.RetailPrice),
		ChangePercent: pricing.ChangePercent(p.RetailPrice, price),
		NewMargin:     pricing.Margin(price, p.Cost).Round(2),
	}
	return item, !pricing.IsNoOp(p.RetailPrice, price), nil
}

func bulkScope(req dto.BulkUpdateRequest) (pricing.Scope, error) {
	switch req.Scope {
	case "all":
		return pricing.ScopeAll, nil
	case "category", "brand", "product_ids":
		if len(req.ScopeIDs) == 0 {
			return "", apierror.Validation("scope_ids is required for scope %q", req.Scope)
		}
		if req.Scope == "product_ids" {
			return pricing.ScopeProduct, nil
		}
		return pricing.Scope(req.Scope), nil
	}
	return "", apierror.Validation("unknown scope %q", req.Scope)
}

func missingIDs(requested, found []uint) []uint {
	have := make(map[uint]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var out []uint
	for _, id := range requested {
		if !have[id] {
			have[id] = true
			out = append(out, id)
		}
	}
	return out
}
