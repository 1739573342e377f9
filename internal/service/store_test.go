package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

// ── In-memory Store ──────────────────────────────────────────────────────────
// One memStore implements every repository. Atomic snapshots the data and
// restores it when fn fails, which is enough to observe rollbacks.

type memData struct {
	products    map[uint]model.Product
	rules       map[uint]model.PriceAdjustmentRule
	history     []model.PriceHistory
	adjustments []model.PriceAdjustmentLog
	suppliers   map[uint]model.Supplier
	configs     map[uint]model.SupplierAPIConfig // keyed by supplier id
	links       []model.ProductSupplier
	competitors map[uint]model.CompetitorConfig
	nextID      uint
}

type memStore struct {
	mu   sync.Mutex
	data memData

	// beforeUpdate runs inside UpdatePrices before the version check; tests
	// use it to simulate a concurrent writer.
	beforeUpdate func(s *memStore, productID uint)
	updateCalls  int
	failHistory  bool
}

func newMemStore() *memStore {
	return &memStore{data: memData{
		products:    map[uint]model.Product{},
		rules:       map[uint]model.PriceAdjustmentRule{},
		suppliers:   map[uint]model.Supplier{},
		configs:     map[uint]model.SupplierAPIConfig{},
		competitors: map[uint]model.CompetitorConfig{},
		nextID:      1000,
	}}
}

func (s *memStore) id() uint {
	s.data.nextID++
	return s.data.nextID
}

func (s *memStore) Products() repository.ProductRepository       { return memProducts{s} }
func (s *memStore) Rules() repository.RuleRepository             { return memRules{s} }
func (s *memStore) Ledger() repository.LedgerRepository          { return memLedger{s} }
func (s *memStore) Suppliers() repository.SupplierRepository     { return memSuppliers{s} }
func (s *memStore) Competitors() repository.CompetitorRepository { return memCompetitors{s} }

func (s *memStore) Atomic(_ context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	snap := s.data.clone()
	s.mu.Unlock()
	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

func (d memData) clone() memData {
	out := d
	out.products = make(map[uint]model.Product, len(d.products))
	for k, v := range d.products {
		out.products[k] = v
	}
	out.rules = make(map[uint]model.PriceAdjustmentRule, len(d.rules))
	for k, v := range d.rules {
		out.rules[k] = v
	}
	out.suppliers = make(map[uint]model.Supplier, len(d.suppliers))
	for k, v := range d.suppliers {
		out.suppliers[k] = v
	}
	out.configs = make(map[uint]model.SupplierAPIConfig, len(d.configs))
	for k, v := range d.configs {
		out.configs[k] = v
	}
	out.competitors = make(map[uint]model.CompetitorConfig, len(d.competitors))
	for k, v := range d.competitors {
		out.competitors[k] = v
	}
	out.history = append([]model.PriceHistory(nil), d.history...)
	out.adjustments = append([]model.PriceAdjustmentLog(nil), d.adjustments...)
	out.links = append([]model.ProductSupplier(nil), d.links...)
	return out
}

// ── seeding helpers ──────────────────────────────────────────────────────────

func (s *memStore) addProduct(p model.Product) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	p.IsActive = true
	s.data.products[p.ID] = p
	return p
}

func (s *memStore) addRule(r model.PriceAdjustmentRule) model.PriceAdjustmentRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	s.data.rules[r.ID] = r
	return r
}

func (s *memStore) product(id uint) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.products[id]
}

func (s *memStore) historyFor(productID uint) []model.PriceHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PriceHistory
	for _, h := range s.data.history {
		if h.ProductID == productID {
			out = append(out, h)
		}
	}
	return out
}

func (s *memStore) adjustmentsFor(productID uint) []model.PriceAdjustmentLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PriceAdjustmentLog
	for _, a := range s.data.adjustments {
		if a.ProductID == productID {
			out = append(out, a)
		}
	}
	return out
}

// ── products ─────────────────────────────────────────────────────────────────

type memProducts struct{ s *memStore }

func (r memProducts) FindByID(_ context.Context, id uint) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.products[id]
	if !ok {
		return nil, apierror.NotFound("product")
	}
	return &p, nil
}

func (r memProducts) FindByIDs(_ context.Context, ids []uint) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Product
	for _, id := range ids {
		if p, ok := r.s.data.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProducts) ListIDsByScope(_ context.Context, scope pricing.Scope, ids []uint) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	in := func(v uint) bool {
		for _, id := range ids {
			if id == v {
				return true
			}
		}
		return false
	}
	var out []uint
	for _, p := range r.s.data.products {
		if !p.IsActive {
			continue
		}
		match := false
		switch scope {
		case pricing.ScopeAll:
			match = true
		case pricing.ScopeProduct:
			match = in(p.ID)
		case pricing.ScopeBrand:
			match = p.BrandID != nil && in(*p.BrandID)
		case pricing.ScopeCategory:
			for _, c := range p.Categories {
				match = match || in(c.ID)
			}
		}
		if match {
			out = append(out, p.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r memProducts) FindByMatchKeys(_ context.Context, matchBy string, keys []string) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := map[string]bool{}
	for _, k := range keys {
		want[strings.ToLower(strings.TrimSpace(k))] = true
	}
	var out []model.Product
	for _, p := range r.s.data.products {
		if p.IsActive && want[strings.ToLower(productKey(&p, matchBy))] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProducts) MissingScopeIDs(_ context.Context, scope pricing.Scope, ids []uint) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	known := map[uint]bool{}
	for _, p := range r.s.data.products {
		switch scope {
		case pricing.ScopeProduct:
			known[p.ID] = true
		case pricing.ScopeBrand:
			if p.BrandID != nil {
				known[*p.BrandID] = true
			}
		case pricing.ScopeCategory:
			for _, c := range p.Categories {
				known[c.ID] = true
			}
		}
	}
	var missing []uint
	for _, id := range ids {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r memProducts) UpdatePrices(_ context.Context, id uint, expectedVersion int64, cost, retail decimal.Decimal) (bool, error) {
	if hook := r.s.beforeUpdate; hook != nil {
		hook(r.s, id)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.updateCalls++
	p, ok := r.s.data.products[id]
	if !ok || p.PriceVersion != expectedVersion {
		return false, nil
	}
	p.Cost, p.RetailPrice = cost, retail
	p.PriceVersion++
	r.s.data.products[id] = p
	return true, nil
}

// bumpVersion simulates another writer committing a price change.
func (s *memStore) bumpVersion(id uint, retail decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.data.products[id]
	p.RetailPrice = retail
	p.PriceVersion++
	s.data.products[id] = p
}

// ── rules ────────────────────────────────────────────────────────────────────

type memRules struct{ s *memStore }

func (r memRules) Create(_ context.Context, rule *model.PriceAdjustmentRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule.ID = r.s.id()
	r.s.data.rules[rule.ID] = *rule
	return nil
}

func (r memRules) FindByID(_ context.Context, id uint) (*model.PriceAdjustmentRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.data.rules[id]
	if !ok {
		return nil, apierror.NotFound("rule")
	}
	return &rule, nil
}

func (r memRules) List(_ context.Context, filter dto.RuleFilter) ([]model.PriceAdjustmentRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.PriceAdjustmentRule
	for _, rule := range r.s.data.rules {
		if filter.IsActive != nil && rule.IsActive != *filter.IsActive {
			continue
		}
		if filter.RuleType != "" && rule.RuleType != filter.RuleType {
			continue
		}
		if filter.AppliesTo != "" && rule.AppliesTo != filter.AppliesTo {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memRules) ListActive(ctx context.Context) ([]model.PriceAdjustmentRule, error) {
	active := true
	return r.List(ctx, dto.RuleFilter{IsActive: &active})
}

func (r memRules) Update(_ context.Context, rule *model.PriceAdjustmentRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.rules[rule.ID] = *rule
	return nil
}

func (r memRules) Delete(_ context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.rules[id]; !ok {
		return apierror.NotFound("rule")
	}
	delete(r.s.data.rules, id)
	return nil
}

// ── ledger ───────────────────────────────────────────────────────────────────

type memLedger struct{ s *memStore }

func (r memLedger) AppendHistory(_ context.Context, h *model.PriceHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failHistory {
		return errors.New("history table unavailable")
	}
	h.ID = r.s.id()
	r.s.data.history = append(r.s.data.history, *h)
	return nil
}

func (r memLedger) AppendAdjustment(_ context.Context, l *model.PriceAdjustmentLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l.ID = r.s.id()
	r.s.data.adjustments = append(r.s.data.adjustments, *l)
	return nil
}

func (r memLedger) HistorySince(_ context.Context, productID uint, since time.Time) ([]model.PriceHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.PriceHistory
	for _, h := range r.s.data.history {
		if h.ProductID == productID && !h.RecordedAt.Before(since) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r memLedger) LowestCompetitorPrice(_ context.Context, productID uint, since time.Time) (decimal.NullDecimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	latest := map[uint]model.PriceHistory{}
	for _, h := range r.s.data.history {
		if h.ProductID != productID || h.CompetitorID == nil || !h.CompetitorPrice.Valid || h.RecordedAt.Before(since) {
			continue
		}
		if cur, ok := latest[*h.CompetitorID]; !ok || h.RecordedAt.After(cur.RecordedAt) {
			latest[*h.CompetitorID] = h
		}
	}
	var out decimal.NullDecimal
	for _, h := range latest {
		if !out.Valid || h.CompetitorPrice.Decimal.LessThan(out.Decimal) {
			out = h.CompetitorPrice
		}
	}
	return out, nil
}

func (r memLedger) FindAdjustment(_ context.Context, id uint) (*model.PriceAdjustmentLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.data.adjustments {
		if a.ID == id {
			r.s.withRule(&a)
			return &a, nil
		}
	}
	return nil, apierror.NotFound("adjustment")
}

func (r memLedger) ListAdjustments(_ context.Context, filter dto.AdjustmentFilter) ([]model.PriceAdjustmentLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.PriceAdjustmentLog
	for _, a := range r.s.data.adjustments {
		if filter.ProductID != nil && a.ProductID != *filter.ProductID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		r.s.withRule(&a)
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

// withRule mirrors Preload("Rule"); callers hold s.mu.
func (s *memStore) withRule(a *model.PriceAdjustmentLog) {
	if a.RuleID == nil {
		return
	}
	if rule, ok := s.data.rules[*a.RuleID]; ok {
		a.Rule = &rule
	}
}

func (r memLedger) TransitionAdjustment(_ context.Context, id uint, from, to pricing.AdjustmentStatus, by *uint, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.data.adjustments {
		a := &r.s.data.adjustments[i]
		if a.ID != id || a.Status != string(from) {
			continue
		}
		a.Status = string(to)
		a.ApprovedBy = by
		a.ApprovedAt = &at
		return true, nil
	}
	return false, nil
}

// ── suppliers ────────────────────────────────────────────────────────────────

type memSuppliers struct{ s *memStore }

func (r memSuppliers) FindByID(_ context.Context, id uint) (*model.Supplier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sup, ok := r.s.data.suppliers[id]
	if !ok {
		return nil, apierror.NotFound("supplier")
	}
	return &sup, nil
}

func (r memSuppliers) FindConfig(_ context.Context, supplierID uint) (*model.SupplierAPIConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cfg, ok := r.s.data.configs[supplierID]
	if !ok {
		return nil, apierror.NotFound("supplier API config")
	}
	if sup, ok := r.s.data.suppliers[supplierID]; ok {
		cfg.Supplier = &sup
	}
	return &cfg, nil
}

func (r memSuppliers) ListDue(_ context.Context, now time.Time) ([]model.SupplierAPIConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.SupplierAPIConfig
	for sid, cfg := range r.s.data.configs {
		sup := r.s.data.suppliers[sid]
		if !cfg.IsActive || !sup.IsActive {
			continue
		}
		if cfg.NextSyncAt == nil || !cfg.NextSyncAt.After(now) {
			cfg.Supplier = &sup
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memSuppliers) config(configID uint) (uint, *model.SupplierAPIConfig) {
	for sid, cfg := range r.s.data.configs {
		if cfg.ID == configID {
			c := cfg
			return sid, &c
		}
	}
	return 0, nil
}

func (r memSuppliers) AcquireLease(_ context.Context, configID uint, token string, now time.Time, ttl time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sid, cfg := r.config(configID)
	if cfg == nil {
		return false, nil
	}
	if cfg.LeaseToken != nil && cfg.LeaseExpiresAt != nil && !cfg.LeaseExpiresAt.Before(now) {
		return false, nil
	}
	exp := now.Add(ttl)
	cfg.LeaseToken, cfg.LeaseExpiresAt = &token, &exp
	r.s.data.configs[sid] = *cfg
	return true, nil
}

func (r memSuppliers) ReleaseLease(_ context.Context, configID uint, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sid, cfg := r.config(configID)
	if cfg != nil && cfg.LeaseToken != nil && *cfg.LeaseToken == token {
		cfg.LeaseToken, cfg.LeaseExpiresAt = nil, nil
		r.s.data.configs[sid] = *cfg
	}
	return nil
}

func (r memSuppliers) RecordSync(_ context.Context, configID uint, out repository.SyncOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sid, cfg := r.config(configID)
	if cfg == nil {
		return nil
	}
	status := out.Status
	cfg.LastSyncStatus, cfg.LastSyncError = &status, out.Error
	at, next := out.At, out.NextAt
	cfg.LastSyncAt, cfg.NextSyncAt = &at, &next
	r.s.data.configs[sid] = *cfg
	return nil
}

func (r memSuppliers) SetSchedule(_ context.Context, configID uint, intervalHours int, nextAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sid, cfg := r.config(configID)
	if cfg == nil {
		return nil
	}
	cfg.SyncIntervalHours, cfg.NextSyncAt = intervalHours, &nextAt
	r.s.data.configs[sid] = *cfg
	return nil
}

func (r memSuppliers) ListLinks(_ context.Context, supplierID uint, afterID uint, limit int) ([]model.ProductSupplier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ProductSupplier
	for _, l := range r.s.data.links {
		if l.SupplierID == supplierID && l.IsActive && l.ID > afterID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memSuppliers) SaveLink(_ context.Context, link *model.ProductSupplier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.data.links {
		if r.s.data.links[i].ID == link.ID {
			r.s.data.links[i] = *link
			return nil
		}
	}
	r.s.data.links = append(r.s.data.links, *link)
	return nil
}

func (r memSuppliers) TouchLinks(_ context.Context, ids []uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.data.links {
		for _, id := range ids {
			if r.s.data.links[i].ID == id {
				t := at
				r.s.data.links[i].LastCheckedAt = &t
			}
		}
	}
	return nil
}

// ── competitors ──────────────────────────────────────────────────────────────

type memCompetitors struct{ s *memStore }

func (r memCompetitors) FindByID(_ context.Context, id uint) (*model.CompetitorConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.competitors[id]
	if !ok {
		return nil, apierror.NotFound("competitor")
	}
	return &c, nil
}

func (r memCompetitors) ListDue(_ context.Context, now time.Time) ([]model.CompetitorConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.CompetitorConfig
	for _, c := range r.s.data.competitors {
		if c.IsActive && c.MonitorType != MonitorManual && (c.NextSyncAt == nil || !c.NextSyncAt.After(now)) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCompetitors) AcquireLease(_ context.Context, id uint, token string, now time.Time, ttl time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.competitors[id]
	if !ok || (c.LeaseToken != nil && c.LeaseExpiresAt != nil && !c.LeaseExpiresAt.Before(now)) {
		return false, nil
	}
	exp := now.Add(ttl)
	c.LeaseToken, c.LeaseExpiresAt = &token, &exp
	r.s.data.competitors[id] = c
	return true, nil
}

func (r memCompetitors) ReleaseLease(_ context.Context, id uint, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.data.competitors[id]
	if c.LeaseToken != nil && *c.LeaseToken == token {
		c.LeaseToken, c.LeaseExpiresAt = nil, nil
		r.s.data.competitors[id] = c
	}
	return nil
}

func (r memCompetitors) RecordCheck(_ context.Context, id uint, out repository.SyncOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.competitors[id]
	if !ok {
		return nil
	}
	status := out.Status
	at, next := out.At, out.NextAt
	c.LastCheckStatus, c.LastCheckError = &status, out.Error
	c.LastSyncAt, c.NextSyncAt = &at, &next
	r.s.data.competitors[id] = c
	return nil
}

// ── feed stub ────────────────────────────────────────────────────────────────

type stubFeed struct {
	body  []byte
	err   error
	calls int
	last  pricing.FeedRequest
}

func (f *stubFeed) Fetch(_ context.Context, req pricing.FeedRequest) ([]byte, error) {
	f.calls++
	f.last = req
	return f.body, f.err
}
