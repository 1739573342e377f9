package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

// LedgerRepository is the append-only store of price observations and
// rule-triggered adjustments.
type LedgerRepository interface {
	AppendHistory(ctx context.Context, h *model.PriceHistory) error
	AppendAdjustment(ctx context.Context, l *model.PriceAdjustmentLog) error

	// HistorySince returns a product's history recorded at or after since,
	// newest first.
	HistorySince(ctx context.Context, productID uint, since time.Time) ([]model.PriceHistory, error)
	// LowestCompetitorPrice takes the latest observation of each competitor
	// recorded at or after since and returns the lowest of them.
	LowestCompetitorPrice(ctx context.Context, productID uint, since time.Time) (decimal.NullDecimal, error)

	FindAdjustment(ctx context.Context, id uint) (*model.PriceAdjustmentLog, error)
	ListAdjustments(ctx context.Context, filter dto.AdjustmentFilter) ([]model.PriceAdjustmentLog, int64, error)
	// TransitionAdjustment moves a log row from one status to another. It
	// reports false if the row was no longer in status from.
	TransitionAdjustment(ctx context.Context, id uint, from, to pricing.AdjustmentStatus, by *uint, at time.Time) (bool, error)
}

type ledgerRepo struct{ db *gorm.DB }

func NewLedgerRepository(db *gorm.DB) LedgerRepository { return &ledgerRepo{db: db} }

func (r *ledgerRepo) AppendHistory(ctx context.Context, h *model.PriceHistory) error {
	if h.RecordedAt.IsZero() {
		h.RecordedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *ledgerRepo) AppendAdjustment(ctx context.Context, l *model.PriceAdjustmentLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// HistorySince is ordered newest-first (append-only table, so recorded_at
// then id reflects insert order).
func (r *ledgerRepo) HistorySince(ctx context.Context, productID uint, since time.Time) ([]model.PriceHistory, error) {
	var rows []model.PriceHistory
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND recorded_at >= ?", productID, since).
		Order("recorded_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *ledgerRepo) LowestCompetitorPrice(ctx context.Context, productID uint, since time.Time) (decimal.NullDecimal, error) {
	latest := r.db.WithContext(ctx).Model(&model.PriceHistory{}).
		Select("DISTINCT ON (competitor_id) competitor_price").
		Where("product_id = ? AND source = ? AND competitor_price IS NOT NULL AND recorded_at >= ?",
			productID, pricing.SourceCompetitor, since).
		Order("competitor_id, recorded_at DESC, id DESC")

	var out decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Table("(?) AS latest", latest).
		Select("MIN(competitor_price)").
		Row().
		Scan(&out)
	return out, err
}

func (r *ledgerRepo) FindAdjustment(ctx context.Context, id uint) (*model.PriceAdjustmentLog, error) {
	var l model.PriceAdjustmentLog
	if err := r.db.WithContext(ctx).Preload("Rule").First(&l, id).Error; err != nil {
		return nil, notFound(err, "adjustment")
	}
	return &l, nil
}

func (r *ledgerRepo) ListAdjustments(ctx context.Context, filter dto.AdjustmentFilter) ([]model.PriceAdjustmentLog, int64, error) {
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.PriceAdjustmentLog{})
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []model.PriceAdjustmentLog
	err := q.Preload("Rule").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *ledgerRepo) TransitionAdjustment(ctx context.Context, id uint, from, to pricing.AdjustmentStatus, by *uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.PriceAdjustmentLog{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":      to,
			"approved_by": by,
			"approved_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
