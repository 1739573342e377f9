package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/metrics"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

type SupplierSyncService interface {
	Sync(ctx context.Context, supplierID uint) (*dto.SupplierSyncResult, error)
	FetchPreview(ctx context.Context, supplierID uint) (*dto.FetchPreviewResponse, error)
	Schedule(ctx context.Context, supplierID uint, intervalHours int) (*dto.ScheduleResponse, error)
	DueForSync(ctx context.Context) ([]dto.DueTarget, error)
}

type supplierSyncService struct {
	store    repository.Store
	feeds    pricing.FeedSource
	settings Settings
	pipeline *pipeline
	group    singleflight.Group
	now      func() time.Time
}

func NewSupplierSyncService(store repository.Store, feeds pricing.FeedSource, settings Settings) SupplierSyncService {
	return newSupplierSyncService(store, feeds, settings, time.Now)
}

func newSupplierSyncService(store repository.Store, feeds pricing.FeedSource, settings Settings, now func() time.Time) *supplierSyncService {
	return &supplierSyncService{
		store:    store,
		feeds:    feeds,
		settings: settings,
		pipeline: newPipeline(settings, now),
		now:      now,
	}
}

// ── Sync ─────────────────────────────────────────────────────────────────────
// One cycle per supplier:
//   1. single-flight: in-process group + DB lease on the API config row
//   2. fetch (timeout, rate limit, circuit breaker) and normalize the feed
//   3. per changed product, one tx: history row, link update, Resolver→Calculator
//   4. record last_sync_* and next_sync_at
// Item failures land in the result; only NotFound / Validation / fetch
// failures are returned as errors.

func (s *supplierSyncService) Sync(ctx context.Context, supplierID uint) (*dto.SupplierSyncResult, error) {
	v, err, _ := s.group.Do("supplier:"+strconv.FormatUint(uint64(supplierID), 10), func() (any, error) {
		return s.sync(ctx, supplierID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*dto.SupplierSyncResult), nil
}

func (s *supplierSyncService) sync(ctx context.Context, supplierID uint) (*dto.SupplierSyncResult, error) {
	cfg, err := s.activeConfig(ctx, supplierID)
	if err != nil {
		return nil, err
	}

	started := s.now()
	token := uuid.NewString()
	ok, err := s.store.Suppliers().AcquireLease(ctx, cfg.ID, token, started, s.settings.LeaseTTL)
	if err != nil {
		return nil, apierror.Internal(err, "acquire sync lease")
	}
	if !ok {
		return nil, apierror.Conflict("a sync for supplier %d is already running", supplierID)
	}
	defer func() {
		if err := s.store.Suppliers().ReleaseLease(context.WithoutCancel(ctx), cfg.ID, token); err != nil {
			log.Error().Err(err).Uint("supplier_id", supplierID).Msg("sync: release lease failed")
		}
	}()

	result := &dto.SupplierSyncResult{
		SupplierID:   supplierID,
		SupplierName: cfg.Supplier.Name,
		Errors:       []dto.ItemError{},
		ParseErrors:  []dto.ItemError{},
		StartedAt:    started,
	}

	body, err := fetchFeed(ctx, s.feeds, s.feedRequest(cfg))
	if err != nil {
		s.finish(ctx, cfg, result, err)
		return nil, err
	}

	feed := pricing.ParseFeed(s.feedFormat(cfg), body)
	result.FeedShape = string(feed.Shape)
	result.ParseErrors = append(result.ParseErrors, itemErrors(feed.ItemErrors)...)
	if feed.Err != nil {
		result.ParseErrors = append(result.ParseErrors, dto.ItemError{Error: feed.Err.Error()})
		s.finish(ctx, cfg, result, feed.Err)
		return result, nil
	}

	if err := s.applyPrices(ctx, cfg, feed.Prices(), result); err != nil {
		s.finish(ctx, cfg, result, err)
		return nil, err
	}
	s.finish(ctx, cfg, result, nil)
	return result, nil
}

func (s *supplierSyncService) applyPrices(ctx context.Context, cfg *model.SupplierAPIConfig, prices map[string]decimal.Decimal, result *dto.SupplierSyncResult) error {
	ruleRows, err := s.store.Rules().ListActive(ctx)
	if err != nil {
		return apierror.Internal(err, "load rules")
	}
	rules := toRules(ruleRows)
	supplierID := cfg.SupplierID
	notes := fmt.Sprintf("supplier %s feed sync", cfg.Supplier.Code)

	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, dto.ItemError{Error: "sync interrupted: " + err.Error()})
			return nil
		}
		links, err := s.store.Suppliers().ListLinks(ctx, supplierID, afterID, s.settings.SyncBatchSize)
		if err != nil {
			return apierror.Internal(err, "list product links")
		}
		if len(links) == 0 {
			return nil
		}
		afterID = links[len(links)-1].ID

		now := s.now()
		var untouched []uint
		for i := range links {
			link := links[i]
			cost, ok := prices[link.SupplierSKU]
			if !ok {
				continue
			}
			result.ProductsChecked++
			if link.LastCostPrice.Valid && link.LastCostPrice.Decimal.Equal(cost) {
				untouched = append(untouched, link.ID)
				continue
			}

			var out *repriceOutcome
			err := s.store.Atomic(ctx, func(tx repository.Store) error {
				link.CostPrice = cost
				link.LastCostPrice = decimal.NewNullDecimal(cost)
				link.LastCheckedAt = &now
				link.LastPriceChangeAt = &now
				if err := tx.Suppliers().SaveLink(ctx, &link); err != nil {
					return apierror.Internal(err, "update product supplier")
				}
				var err error
				out, err = s.pipeline.run(ctx, tx, repriceRequest{
					ProductID:  link.ProductID,
					Cost:       &cost,
					Rules:      rules,
					Source:     pricing.SourceSupplierAPI,
					SupplierID: &supplierID,
					Notes:      notes,
					Observed:   true,
				})
				return err
			})
			if err != nil {
				log.Warn().Err(err).Uint("supplier_id", supplierID).Uint("product_id", link.ProductID).
					Str("sku", link.SupplierSKU).Msg("sync: product skipped")
				result.Errors = append(result.Errors, dto.ItemError{
					ProductID: link.ProductID,
					SKU:       link.SupplierSKU,
					Error:     apierror.PublicMessage(err),
				})
				continue
			}
			result.ProductsUpdated++
			switch out.Response.Status {
			case string(pricing.StatusApplied):
				result.ProductsRepriced++
			case string(pricing.StatusPendingApproval):
				result.ProductsPendingApproval++
			}
		}
		if err := s.store.Suppliers().TouchLinks(ctx, untouched, now); err != nil {
			log.Warn().Err(err).Uint("supplier_id", supplierID).Msg("sync: touch last_checked_at failed")
		}
		if len(links) < s.settings.SyncBatchSize {
			return nil
		}
	}
}

// finish stamps the outcome on the API config row; it never fails the sync.
func (s *supplierSyncService) finish(ctx context.Context, cfg *model.SupplierAPIConfig, result *dto.SupplierSyncResult, cause error) {
	result.FinishedAt = s.now()
	switch {
	case cause != nil:
		result.Status = dto.SyncError
	case len(result.Errors) > 0 || len(result.ParseErrors) > 0:
		result.Status = dto.SyncPartial
	default:
		result.Status = dto.SyncSuccess
	}

	var msg *string
	if cause != nil {
		msg = strPtr(cause.Error())
	} else if n := len(result.Errors) + len(result.ParseErrors); n > 0 {
		msg = strPtr(fmt.Sprintf("%d item errors", n))
	}
	interval := time.Duration(positiveOr(cfg.SyncIntervalHours, 24)) * time.Hour
	out := repository.SyncOutcome{
		Status: result.Status,
		Error:  msg,
		At:     result.FinishedAt,
		NextAt: result.FinishedAt.Add(interval),
	}
	if err := s.store.Suppliers().RecordSync(context.WithoutCancel(ctx), cfg.ID, out); err != nil {
		log.Error().Err(err).Uint("supplier_id", cfg.SupplierID).Msg("sync: record outcome failed")
	}

	metrics.RecordSync("supplier", result.Status, result.FinishedAt.Sub(result.StartedAt))
	log.Info().
		Uint("supplier_id", cfg.SupplierID).
		Str("status", result.Status).
		Int("checked", result.ProductsChecked).
		Int("updated", result.ProductsUpdated).
		Int("repriced", result.ProductsRepriced).
		Int("pending_approval", result.ProductsPendingApproval).
		Int("errors", len(result.Errors)).
		Int("parse_errors", len(result.ParseErrors)).
		Msg("supplier sync finished")
}

// ── FetchPreview ─────────────────────────────────────────────────────────────

func (s *supplierSyncService) FetchPreview(ctx context.Context, supplierID uint) (*dto.FetchPreviewResponse, error) {
	cfg, err := s.activeConfig(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	body, err := fetchFeed(ctx, s.feeds, s.feedRequest(cfg))
	if err != nil {
		return nil, err
	}
	feed := pricing.ParseFeed(s.feedFormat(cfg), body)
	resp := &dto.FetchPreviewResponse{
		SupplierID:  supplierID,
		FeedShape:   string(feed.Shape),
		Prices:      feed.Prices(),
		Changes:     []dto.CostChangePreview{},
		ParseErrors: itemErrors(feed.ItemErrors),
		FetchedAt:   s.now(),
	}
	if feed.Err != nil {
		resp.ParseErrors = append(resp.ParseErrors, dto.ItemError{Error: feed.Err.Error()})
		return resp, nil
	}
	resp.ItemCount = len(resp.Prices)

	var afterID uint
	for {
		links, err := s.store.Suppliers().ListLinks(ctx, supplierID, afterID, s.settings.SyncBatchSize)
		if err != nil {
			return nil, apierror.Internal(err, "list product links")
		}
		for _, l := range links {
			cost, ok := resp.Prices[l.SupplierSKU]
			if !ok || cost.Equal(l.CostPrice) {
				continue
			}
			resp.Changes = append(resp.Changes, dto.CostChangePreview{
				ProductID:   l.ProductID,
				SupplierSKU: l.SupplierSKU,
				CurrentCost: l.CostPrice,
				NewCost:     cost,
			})
		}
		if len(links) < s.settings.SyncBatchSize {
			return resp, nil
		}
		afterID = links[len(links)-1].ID
	}
}

// ── Scheduling ───────────────────────────────────────────────────────────────

func (s *supplierSyncService) Schedule(ctx context.Context, supplierID uint, intervalHours int) (*dto.ScheduleResponse, error) {
	if intervalHours < 1 || intervalHours > 168 {
		return nil, apierror.Validation("interval_hours must be between 1 and 168")
	}
	cfg, err := s.store.Suppliers().FindConfig(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	next := s.now().Add(time.Duration(intervalHours) * time.Hour)
	if err := s.store.Suppliers().SetSchedule(ctx, cfg.ID, intervalHours, next); err != nil {
		return nil, apierror.Internal(err, "update sync schedule")
	}
	log.Info().Uint("supplier_id", supplierID).Int("interval_hours", intervalHours).Time("next_sync_at", next).Msg("supplier sync scheduled")
	return &dto.ScheduleResponse{SupplierID: supplierID, IntervalHours: intervalHours, NextSyncAt: next}, nil
}

func (s *supplierSyncService) DueForSync(ctx context.Context) ([]dto.DueTarget, error) {
	rows, err := s.store.Suppliers().ListDue(ctx, s.now())
	if err != nil {
		return nil, apierror.Internal(err, "list due suppliers")
	}
	out := make([]dto.DueTarget, 0, len(rows))
	for _, c := range rows {
		name := ""
		if c.Supplier != nil {
			name = c.Supplier.Name
		}
		out = append(out, dto.DueTarget{
			ID:         c.SupplierID,
			Name:       name,
			NextSyncAt: c.NextSyncAt,
			LastSyncAt: c.LastSyncAt,
			LastStatus: c.LastSyncStatus,
		})
	}
	return out, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *supplierSyncService) activeConfig(ctx context.Context, supplierID uint) (*model.SupplierAPIConfig, error) {
	cfg, err := s.store.Suppliers().FindConfig(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	if cfg.Supplier == nil {
		return nil, apierror.NotFound("supplier")
	}
	if !cfg.IsActive || !cfg.Supplier.IsActive {
		return nil, apierror.Validation("supplier %d API sync is not active", supplierID)
	}
	return cfg, nil
}

func (s *supplierSyncService) feedRequest(cfg *model.SupplierAPIConfig) pricing.FeedRequest {
	req := pricing.FeedRequest{
		Target:             "supplier:" + strconv.FormatUint(uint64(cfg.SupplierID), 10),
		APIType:            cfg.APIType,
		URL:                joinURL(cfg.BaseURL, cfg.PriceEndpoint),
		Method:             strings.ToUpper(cfg.RequestMethod),
		Headers:            map[string]string{},
		Timeout:            timeoutOr(cfg.TimeoutSeconds, s.settings.FeedTimeout),
		RateLimitPerMinute: positiveOr(cfg.RateLimitPerMinute, s.settings.DefaultRateLimit),
	}
	if req.APIType == "" {
		req.APIType = pricing.APITypeREST
	}
	if req.Method == "" {
		req.Method = "GET"
	}
	switch cfg.AuthType {
	case "api_key":
		header := "X-API-Key"
		if cfg.APIKeyHeader != nil && *cfg.APIKeyHeader != "" {
			header = *cfg.APIKeyHeader
		}
		if cfg.APIKey != nil {
			req.Headers[header] = *cfg.APIKey
		}
	case "bearer":
		if cfg.AuthToken != nil {
			req.Headers["Authorization"] = "Bearer " + *cfg.AuthToken
		}
	}
	if req.APIType == pricing.APITypeXMLRPC {
		req.URL = cfg.BaseURL
		if cfg.XMLRPCMethod != nil {
			req.XMLRPCMethod = *cfg.XMLRPCMethod
		}
		if cfg.APIKey != nil {
			req.XMLRPCArgs = []any{*cfg.APIKey}
		}
	}
	return req
}

// feedFormat is the document format after fetching; XML-RPC responses are
// re-encoded as JSON by the source.
func (s *supplierSyncService) feedFormat(cfg *model.SupplierAPIConfig) pricing.FeedFormat {
	if cfg.APIType == pricing.APITypeXMLRPC {
		return pricing.FormatJSON
	}
	return pricing.FeedFormat(cfg.FeedFormat)
}
