package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/metrics"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

// Competitor monitor types.
const (
	MonitorAPI     = "api"
	MonitorScraper = "scraper"
	MonitorManual  = "manual"
)

// CompetitorService records competitor price observations. It never touches
// retail prices; match_competitor rules read the observations later.
type CompetitorService interface {
	Fetch(ctx context.Context, competitorID uint) (*dto.CompetitorFetchResult, error)
	RecordObservations(ctx context.Context, competitorID uint, req dto.RecordObservationsRequest, actor *uint) (*dto.CompetitorFetchResult, error)
	DueForSync(ctx context.Context) ([]dto.DueTarget, error)
}

type competitorService struct {
	store    repository.Store
	feeds    pricing.FeedSource
	settings Settings
	now      func() time.Time
}

func NewCompetitorService(store repository.Store, feeds pricing.FeedSource, settings Settings) CompetitorService {
	return newCompetitorService(store, feeds, settings, time.Now)
}

func newCompetitorService(store repository.Store, feeds pricing.FeedSource, settings Settings, now func() time.Time) *competitorService {
	return &competitorService{store: store, feeds: feeds, settings: settings, now: now}
}

// observation is one matched competitor price ready to be appended.
type observation struct {
	productID uint
	price     decimal.Decimal
	at        time.Time
}

// ── Fetch ────────────────────────────────────────────────────────────────────

func (s *competitorService) Fetch(ctx context.Context, competitorID uint) (*dto.CompetitorFetchResult, error) {
	cfg, err := s.store.Competitors().FindByID(ctx, competitorID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, apierror.Validation("competitor %d is not active", competitorID)
	}
	if cfg.MonitorType == MonitorManual {
		return nil, apierror.Validation("competitor %d is monitored manually, post observations instead", competitorID)
	}
	started := s.now()
	req, err := s.feedRequest(cfg)
	if err != nil {
		// Still advance next_sync_at so a misconfigured target is not
		// re-enqueued on every scheduler tick.
		s.finish(ctx, cfg, newCompetitorResult(cfg, started), err)
		return nil, err
	}

	token := uuid.NewString()
	ok, err := s.store.Competitors().AcquireLease(ctx, cfg.ID, token, started, s.settings.LeaseTTL)
	if err != nil {
		return nil, apierror.Internal(err, "acquire competitor lease")
	}
	if !ok {
		return nil, apierror.Conflict("a check for competitor %d is already running", competitorID)
	}
	defer func() {
		if err := s.store.Competitors().ReleaseLease(context.WithoutCancel(ctx), cfg.ID, token); err != nil {
			log.Error().Err(err).Uint("competitor_id", competitorID).Msg("competitor: release lease failed")
		}
	}()

	result := newCompetitorResult(cfg, started)
	body, err := fetchFeed(ctx, s.feeds, req)
	if err != nil {
		s.finish(ctx, cfg, result, err)
		return nil, err
	}
	feed := pricing.ParseFeed(pricing.FeedFormat(cfg.FeedFormat), body)
	result.ParseErrors = append(result.ParseErrors, itemErrors(feed.ItemErrors)...)
	if feed.Err != nil {
		result.ParseErrors = append(result.ParseErrors, dto.ItemError{Error: feed.Err.Error()})
		s.finish(ctx, cfg, result, feed.Err)
		return result, nil
	}
	result.ItemsReceived = len(feed.Items)

	prices := make(map[string]decimal.Decimal, len(feed.Items))
	for _, it := range feed.Items {
		if k := it.Key(cfg.MatchBy); k != "" {
			prices[strings.ToLower(strings.TrimSpace(k))] = it.Price
		}
	}
	matched, unmatched, err := s.match(ctx, cfg.MatchBy, prices, started)
	if err != nil {
		s.finish(ctx, cfg, result, err)
		return nil, err
	}
	obs := make([]observation, 0, len(matched))
	for _, m := range matched {
		obs = append(obs, m.observation)
	}
	result.Unmatched = unmatched
	s.record(ctx, cfg, obs, nil, result)
	s.finish(ctx, cfg, result, nil)
	return result, nil
}

// ── Manual observations ──────────────────────────────────────────────────────
// Operators may post observations for any competitor, not only manual ones.

func (s *competitorService) RecordObservations(ctx context.Context, competitorID uint, req dto.RecordObservationsRequest, actor *uint) (*dto.CompetitorFetchResult, error) {
	cfg, err := s.store.Competitors().FindByID(ctx, competitorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	result := newCompetitorResult(cfg, now)
	result.ItemsReceived = len(req.Observations)

	var obs []observation
	keyed := map[string]decimal.Decimal{}
	keyedAt := map[string]time.Time{}
	var ids []uint
	for _, in := range req.Observations {
		if !in.Price.IsPositive() {
			result.Errors = append(result.Errors, dto.ItemError{SKU: in.Key, Error: "price must be > 0"})
			continue
		}
		at := now
		if in.ObservedAt != nil {
			if in.ObservedAt.After(now) {
				result.Errors = append(result.Errors, dto.ItemError{SKU: in.Key, Error: "observed_at is in the future"})
				continue
			}
			at = *in.ObservedAt
		}
		if in.ProductID != nil {
			ids = append(ids, *in.ProductID)
			obs = append(obs, observation{productID: *in.ProductID, price: in.Price, at: at})
			continue
		}
		k := strings.ToLower(strings.TrimSpace(in.Key))
		keyed[k] = in.Price
		keyedAt[k] = at
	}

	if len(ids) > 0 {
		found, err := s.store.Products().FindByIDs(ctx, ids)
		if err != nil {
			return nil, apierror.Internal(err, "load products")
		}
		exists := make(map[uint]bool, len(found))
		for _, p := range found {
			exists[p.ID] = true
		}
		kept := obs[:0]
		for _, o := range obs {
			if !exists[o.productID] {
				result.Errors = append(result.Errors, dto.ItemError{ProductID: o.productID, Error: "product not found"})
				continue
			}
			kept = append(kept, o)
		}
		obs = kept
	}

	matched, unmatched, err := s.match(ctx, cfg.MatchBy, keyed, now)
	if err != nil {
		return nil, err
	}
	for _, m := range matched {
		m.at = keyedAt[m.key]
		obs = append(obs, m.observation)
	}
	result.Unmatched = unmatched
	s.record(ctx, cfg, obs, actor, result)

	result.Status = dto.SyncSuccess
	if len(result.Errors) > 0 {
		result.Status = dto.SyncPartial
	}
	log.Info().Uint("competitor_id", cfg.ID).Int("recorded", result.ObservationsRecorded).
		Int("unmatched", len(unmatched)).Msg("competitor observations recorded")
	return result, nil
}

func (s *competitorService) DueForSync(ctx context.Context) ([]dto.DueTarget, error) {
	rows, err := s.store.Competitors().ListDue(ctx, s.now())
	if err != nil {
		return nil, apierror.Internal(err, "list due competitors")
	}
	out := make([]dto.DueTarget, 0, len(rows))
	for _, c := range rows {
		out = append(out, dto.DueTarget{
			ID:         c.ID,
			Name:       c.Name,
			NextSyncAt: c.NextSyncAt,
			LastSyncAt: c.LastSyncAt,
			LastStatus: c.LastCheckStatus,
		})
	}
	return out, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

type keyedObservation struct {
	observation
	key string
}

// match resolves lower-cased feed keys to products. Keys that match no active
// product are returned sorted in the unmatched list.
func (s *competitorService) match(ctx context.Context, matchBy string, prices map[string]decimal.Decimal, at time.Time) ([]keyedObservation, []string, error) {
	if len(prices) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, 0, len(prices))
	for k := range prices {
		keys = append(keys, k)
	}
	products, err := s.store.Products().FindByMatchKeys(ctx, matchBy, keys)
	if err != nil {
		return nil, nil, apierror.Internal(err, "match competitor items")
	}

	var out []keyedObservation
	hit := make(map[string]bool, len(products))
	for _, p := range products {
		k := strings.ToLower(strings.TrimSpace(productKey(&p, matchBy)))
		price, ok := prices[k]
		if !ok {
			continue
		}
		hit[k] = true
		out = append(out, keyedObservation{observation: observation{productID: p.ID, price: price, at: at}, key: k})
	}
	var unmatched []string
	for _, k := range keys {
		if !hit[k] {
			unmatched = append(unmatched, k)
		}
	}
	sort.Strings(unmatched)
	return out, unmatched, nil
}

// record appends one competitor history row per observation. A failed append
// is reported for that product only.
func (s *competitorService) record(ctx context.Context, cfg *model.CompetitorConfig, obs []observation, actor *uint, result *dto.CompetitorFetchResult) {
	competitorID := cfg.ID
	notes := fmt.Sprintf("competitor %s", cfg.Name)
	seen := map[uint]bool{}
	for _, o := range obs {
		if !seen[o.productID] {
			seen[o.productID] = true
			result.ProductsMatched++
		}
		err := s.store.Ledger().AppendHistory(ctx, &model.PriceHistory{
			ProductID:       o.productID,
			CompetitorID:    &competitorID,
			CompetitorPrice: decimal.NewNullDecimal(o.price),
			Source:          string(pricing.SourceCompetitor),
			Notes:           &notes,
			ChangedBy:       actor,
			RecordedAt:      o.at,
		})
		if err != nil {
			log.Warn().Err(err).Uint("competitor_id", competitorID).Uint("product_id", o.productID).Msg("competitor: observation not recorded")
			result.Errors = append(result.Errors, dto.ItemError{ProductID: o.productID, Error: "could not record observation"})
			continue
		}
		result.ObservationsRecorded++
	}
	metrics.RecordCompetitorObservations(result.ObservationsRecorded)
}

func (s *competitorService) finish(ctx context.Context, cfg *model.CompetitorConfig, result *dto.CompetitorFetchResult, cause error) {
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
	}
	now := s.now()
	out := repository.SyncOutcome{
		Status: result.Status,
		Error:  msg,
		At:     now,
		NextAt: now.Add(time.Duration(positiveOr(cfg.SyncFrequencyHours, 24)) * time.Hour),
	}
	if err := s.store.Competitors().RecordCheck(context.WithoutCancel(ctx), cfg.ID, out); err != nil {
		log.Error().Err(err).Uint("competitor_id", cfg.ID).Msg("competitor: record outcome failed")
	}
	metrics.RecordSync("competitor", result.Status, now.Sub(result.FetchedAt))
	log.Info().
		Uint("competitor_id", cfg.ID).
		Str("status", result.Status).
		Int("items", result.ItemsReceived).
		Int("matched", result.ProductsMatched).
		Int("recorded", result.ObservationsRecorded).
		Msg("competitor check finished")
}

func (s *competitorService) feedRequest(cfg *model.CompetitorConfig) (pricing.FeedRequest, error) {
	var endpoint *string
	switch cfg.MonitorType {
	case MonitorAPI:
		endpoint = cfg.APIEndpoint
	case MonitorScraper:
		endpoint = cfg.ScraperEndpoint
	}
	if endpoint == nil || *endpoint == "" {
		return pricing.FeedRequest{}, apierror.Validation("competitor %d has no %s endpoint configured", cfg.ID, cfg.MonitorType)
	}
	req := pricing.FeedRequest{
		Target:             "competitor:" + strconv.FormatUint(uint64(cfg.ID), 10),
		APIType:            pricing.APITypeREST,
		URL:                *endpoint,
		Method:             "GET",
		Headers:            map[string]string{},
		Timeout:            s.settings.FeedTimeout,
		RateLimitPerMinute: s.settings.DefaultRateLimit,
	}
	if cfg.APIKey != nil && *cfg.APIKey != "" {
		req.Headers["X-API-Key"] = *cfg.APIKey
	}
	return req, nil
}

func newCompetitorResult(cfg *model.CompetitorConfig, at time.Time) *dto.CompetitorFetchResult {
	return &dto.CompetitorFetchResult{
		CompetitorID:   cfg.ID,
		CompetitorName: cfg.Name,
		Errors:         []dto.ItemError{},
		ParseErrors:    []dto.ItemError{},
		FetchedAt:      at,
	}
}

func productKey(p *model.Product, matchBy string) string {
	switch matchBy {
	case "upc":
		if p.UPC != nil {
			return *p.UPC
		}
		return ""
	case "name":
		return p.Name
	}
	return p.SKU
}
