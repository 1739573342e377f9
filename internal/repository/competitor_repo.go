package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/model"
)

type CompetitorRepository interface {
	FindByID(ctx context.Context, id uint) (*model.CompetitorConfig, error)
	// ListDue returns active, non-manual configs whose next_sync_at is unset or <= now.
	ListDue(ctx context.Context, now time.Time) ([]model.CompetitorConfig, error)
	AcquireLease(ctx context.Context, id uint, token string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, id uint, token string) error
	RecordCheck(ctx context.Context, id uint, out SyncOutcome) error
}

type competitorRepo struct{ db *gorm.DB }

func NewCompetitorRepository(db *gorm.DB) CompetitorRepository { return &competitorRepo{db: db} }

func (r *competitorRepo) FindByID(ctx context.Context, id uint) (*model.CompetitorConfig, error) {
	var c model.CompetitorConfig
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, "competitor configuration")
	}
	return &c, nil
}

func (r *competitorRepo) ListDue(ctx context.Context, now time.Time) ([]model.CompetitorConfig, error) {
	var rows []model.CompetitorConfig
	err := r.db.WithContext(ctx).
		Where("is_active = true AND monitor_type <> ?", "manual").
		Where("(next_sync_at IS NULL OR next_sync_at <= ?)", now).
		Order("next_sync_at ASC NULLS FIRST").
		Find(&rows).Error
	return rows, err
}

func (r *competitorRepo) AcquireLease(ctx context.Context, id uint, token string, now time.Time, ttl time.Duration) (bool, error) {
	return acquireLease(ctx, r.db, &model.CompetitorConfig{}, id, token, now, ttl)
}

func (r *competitorRepo) ReleaseLease(ctx context.Context, id uint, token string) error {
	return releaseLease(ctx, r.db, &model.CompetitorConfig{}, id, token)
}

func (r *competitorRepo) RecordCheck(ctx context.Context, id uint, out SyncOutcome) error {
	return r.db.WithContext(ctx).Model(&model.CompetitorConfig{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_sync_at":      out.At,
			"last_check_status": out.Status,
			"last_check_error":  out.Error,
			"next_sync_at":      out.NextAt,
		}).Error
}
