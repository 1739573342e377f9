package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/metrics"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

// Outcome statuses of one pipeline run, besides the adjustment statuses.
const (
	RepriceUnchanged         = "unchanged"
	RepriceNoRule            = "no_rule"
	RepriceNoCompetitorPrice = "no_competitor_price"
)

// repriceRequest describes one Resolver → Calculator → Ledger run.
type repriceRequest struct {
	ProductID uint
	// Cost is the triggering cost; nil re-prices against the stored cost.
	Cost *decimal.Decimal
	// Rule forces a specific rule; nil resolves one from Rules.
	Rule  *pricing.Rule
	Rules []pricing.Rule

	Source     pricing.Source
	SupplierID *uint
	Actor      *uint
	Notes      string
	// Observed records the trigger cost in the ledger even when the product
	// cost already equals it (a supplier link whose own cost moved).
	Observed bool
}

type repriceOutcome struct {
	Response     dto.RepriceResponse
	CostChanged  bool
	PriceChanged bool
}

// pipeline is the shared compute-then-persist path used by supplier sync,
// manual cost edits and on-demand rule application. It always runs inside a
// caller-provided transaction.
type pipeline struct {
	settings Settings
	resolver *pricing.Resolver
	now      func() time.Time
}

func newPipeline(settings Settings, now func() time.Time) *pipeline {
	return &pipeline{
		settings: settings,
		resolver: &pricing.Resolver{Now: now},
		now:      now,
	}
}

// run re-reads the product and retries once when the optimistic write loses.
func (p *pipeline) run(ctx context.Context, tx repository.Store, req repriceRequest) (*repriceOutcome, error) {
	for attempt := 0; ; attempt++ {
		out, won, err := p.attempt(ctx, tx, req)
		if err != nil {
			return nil, err
		}
		if won {
			metrics.RecordReprice(out.Response.Status)
			return out, nil
		}
		metrics.RecordConflict()
		if attempt >= 1 {
			return nil, apierror.Conflict("product %d was modified concurrently, try again", req.ProductID)
		}
		log.Debug().Uint("product_id", req.ProductID).Msg("pipeline: price write conflict, retrying")
	}
}

func (p *pipeline) attempt(ctx context.Context, tx repository.Store, req repriceRequest) (*repriceOutcome, bool, error) {
	product, err := tx.Products().FindByID(ctx, req.ProductID)
	if err != nil {
		return nil, false, err
	}
	state := toState(product, p.settings.Defaults)

	cost := state.Cost
	if req.Cost != nil {
		cost = *req.Cost
	}
	out := &repriceOutcome{
		CostChanged: !cost.Equal(state.Cost),
		Response: dto.RepriceResponse{
			ProductID:     state.ID,
			Cost:          cost,
			OldPrice:      state.RetailPrice,
			NewPrice:      state.RetailPrice,
			Margin:        pricing.Margin(state.RetailPrice, cost).Round(2),
			ChangePercent: decimal.Zero,
		},
	}

	rule := req.Rule
	if rule == nil {
		rule = p.resolver.Resolve(state, cost, req.Rules)
	}
	if rule == nil {
		out.Response.Status = RepriceNoRule
		won, err := p.persistCost(ctx, tx, state, cost, req)
		return out, won, err
	}
	out.Response.RuleID = &rule.ID

	var competitor decimal.NullDecimal
	if rule.Action.Type == pricing.ActionMatchCompetitor {
		competitor, err = tx.Ledger().LowestCompetitorPrice(ctx, state.ID, p.now().Add(-p.settings.CompetitorMaxAge))
		if err != nil {
			return nil, false, apierror.Internal(err, "load competitor prices")
		}
	}

	quote, err := pricing.Calculate(state, cost, rule.Action, competitor)
	if errors.Is(err, pricing.ErrNoCompetitorPrice) {
		out.Response.Status = RepriceNoCompetitorPrice
		won, err := p.persistCost(ctx, tx, state, cost, req)
		return out, won, err
	}
	if err != nil {
		return nil, false, err
	}

	out.Response.NewPrice = quote.Price
	out.Response.Margin = quote.Margin
	out.Response.ChangePercent = quote.ChangePercent
	out.Response.Clamped = string(quote.Clamp)

	if quote.NoOp {
		out.Response.NewPrice = state.RetailPrice
		out.Response.Status = RepriceUnchanged
		won, err := p.persistCost(ctx, tx, state, cost, req)
		return out, won, err
	}

	if p.needsApproval(rule, quote) {
		won, err := p.persistCost(ctx, tx, state, cost, req)
		if err != nil || !won {
			return nil, won, err
		}
		entry := p.adjustmentLog(state, rule, quote, pricing.StatusPendingApproval)
		if err := tx.Ledger().AppendAdjustment(ctx, entry); err != nil {
			return nil, false, apierror.Internal(err, "append adjustment log")
		}
		out.Response.Status = string(pricing.StatusPendingApproval)
		out.Response.AdjustmentID = &entry.ID
		return out, true, nil
	}

	won, err := tx.Products().UpdatePrices(ctx, state.ID, state.Version, cost, quote.Price)
	if err != nil {
		return nil, false, apierror.Internal(err, "update product price")
	}
	if !won {
		return nil, false, nil
	}
	notes := req.Notes
	if notes == "" {
		notes = fmt.Sprintf("rule %q (%s)", rule.Name, rule.Action.Type)
	}
	if err := tx.Ledger().AppendHistory(ctx, &model.PriceHistory{
		ProductID:   state.ID,
		SupplierID:  req.SupplierID,
		CostPrice:   decimal.NewNullDecimal(cost),
		RetailPrice: decimal.NewNullDecimal(quote.Price),
		Source:      string(req.Source),
		Notes:       &notes,
		ChangedBy:   req.Actor,
		RecordedAt:  p.now(),
	}); err != nil {
		return nil, false, apierror.Internal(err, "append price history")
	}
	entry := p.adjustmentLog(state, rule, quote, pricing.StatusApplied)
	if err := tx.Ledger().AppendAdjustment(ctx, entry); err != nil {
		return nil, false, apierror.Internal(err, "append adjustment log")
	}

	out.PriceChanged = true
	out.Response.Status = string(pricing.StatusApplied)
	out.Response.AdjustmentID = &entry.ID
	return out, true, nil
}

// persistCost writes a changed cost with the retail price untouched, paired
// with a cost-only history row. An unchanged cost writes nothing unless the
// request is an observation.
func (p *pipeline) persistCost(ctx context.Context, tx repository.Store, state pricing.ProductState, cost decimal.Decimal, req repriceRequest) (bool, error) {
	if cost.Equal(state.Cost) {
		if !req.Observed {
			return true, nil
		}
		return true, p.appendCostRow(ctx, tx, state.ID, cost, req)
	}
	won, err := tx.Products().UpdatePrices(ctx, state.ID, state.Version, cost, state.RetailPrice)
	if err != nil {
		return false, apierror.Internal(err, "update product cost")
	}
	if !won {
		return false, nil
	}
	return true, p.appendCostRow(ctx, tx, state.ID, cost, req)
}

func (p *pipeline) appendCostRow(ctx context.Context, tx repository.Store, productID uint, cost decimal.Decimal, req repriceRequest) error {
	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}
	err := tx.Ledger().AppendHistory(ctx, &model.PriceHistory{
		ProductID:  productID,
		SupplierID: req.SupplierID,
		CostPrice:  decimal.NewNullDecimal(cost),
		Source:     string(req.Source),
		Notes:      notes,
		ChangedBy:  req.Actor,
		RecordedAt: p.now(),
	})
	if err != nil {
		return apierror.Internal(err, "append price history")
	}
	return nil
}

// needsApproval holds back changes flagged by the rule or larger than the
// configured threshold. A zero threshold disables the size check.
func (p *pipeline) needsApproval(rule *pricing.Rule, q pricing.Quote) bool {
	if rule.RequiresApproval {
		return true
	}
	t := p.settings.ApprovalThresholdPct
	return t.IsPositive() && q.ChangePercent.Abs().GreaterThan(t)
}

func (p *pipeline) adjustmentLog(state pricing.ProductState, rule *pricing.Rule, q pricing.Quote, status pricing.AdjustmentStatus) *model.PriceAdjustmentLog {
	details := map[string]any{
		"rule_type":   rule.RuleType,
		"action_type": rule.Action.Type,
		"action":      rule.Action.Value.String(),
		"candidate":   q.Candidate.String(),
		"rounding":    state.Policy.Rounding,
		"min_margin":  state.Policy.MinMargin.String(),
		"max_margin":  state.Policy.MaxMargin.String(),
	}
	if q.Clamped() {
		details["clamped"] = string(q.Clamp)
	}
	ruleID := rule.ID
	return &model.PriceAdjustmentLog{
		ProductID:          state.ID,
		RuleID:             &ruleID,
		OldPrice:           state.RetailPrice,
		NewPrice:           q.Price,
		OldCost:            decimal.NewNullDecimal(state.Cost),
		NewCost:            decimal.NewNullDecimal(q.Cost),
		MarginAchieved:     q.Margin,
		PriceChangePercent: q.ChangePercent,
		Reason:             fmt.Sprintf("rule %q: %s %s", rule.Name, rule.Action.Type, rule.Action.Value),
		Details:            datatypes.JSON(mustJSON(details)),
		Status:             string(status),
		CreatedAt:          p.now(),
	}
}
