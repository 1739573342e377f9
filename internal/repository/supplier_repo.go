package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/model"
)

// SyncOutcome is written back to a scheduling row when a cycle ends.
type SyncOutcome struct {
	Status string // success | partial | error
	Error  *string
	At     time.Time
	NextAt time.Time
}

type SupplierRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Supplier, error)
	// FindConfig returns the API config of a supplier, with the supplier preloaded.
	FindConfig(ctx context.Context, supplierID uint) (*model.SupplierAPIConfig, error)
	// ListDue returns active configs whose next_sync_at is unset or <= now.
	ListDue(ctx context.Context, now time.Time) ([]model.SupplierAPIConfig, error)

	AcquireLease(ctx context.Context, configID uint, token string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, configID uint, token string) error
	RecordSync(ctx context.Context, configID uint, out SyncOutcome) error
	SetSchedule(ctx context.Context, configID uint, intervalHours int, nextAt time.Time) error

	// ListLinks pages through active product links of a supplier by id.
	ListLinks(ctx context.Context, supplierID uint, afterID uint, limit int) ([]model.ProductSupplier, error)
	SaveLink(ctx context.Context, link *model.ProductSupplier) error
	TouchLinks(ctx context.Context, ids []uint, at time.Time) error
}

type supplierRepo struct{ db *gorm.DB }

func NewSupplierRepository(db *gorm.DB) SupplierRepository { return &supplierRepo{db: db} }

func (r *supplierRepo) FindByID(ctx context.Context, id uint) (*model.Supplier, error) {
	var s model.Supplier
	if err := r.db.WithContext(ctx).Preload("APIConfig").First(&s, id).Error; err != nil {
		return nil, notFound(err, "supplier")
	}
	return &s, nil
}

func (r *supplierRepo) FindConfig(ctx context.Context, supplierID uint) (*model.SupplierAPIConfig, error) {
	var c model.SupplierAPIConfig
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Where("supplier_id = ?", supplierID).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "supplier API configuration")
	}
	return &c, nil
}

func (r *supplierRepo) ListDue(ctx context.Context, now time.Time) ([]model.SupplierAPIConfig, error) {
	var rows []model.SupplierAPIConfig
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Joins("JOIN suppliers ON suppliers.id = supplier_api_configs.supplier_id AND suppliers.is_active = true").
		Where("supplier_api_configs.is_active = true").
		Where("(supplier_api_configs.next_sync_at IS NULL OR supplier_api_configs.next_sync_at <= ?)", now).
		Order("supplier_api_configs.next_sync_at ASC NULLS FIRST").
		Find(&rows).Error
	return rows, err
}

func (r *supplierRepo) AcquireLease(ctx context.Context, configID uint, token string, now time.Time, ttl time.Duration) (bool, error) {
	return acquireLease(ctx, r.db, &model.SupplierAPIConfig{}, configID, token, now, ttl)
}

func (r *supplierRepo) ReleaseLease(ctx context.Context, configID uint, token string) error {
	return releaseLease(ctx, r.db, &model.SupplierAPIConfig{}, configID, token)
}

func (r *supplierRepo) RecordSync(ctx context.Context, configID uint, out SyncOutcome) error {
	return r.db.WithContext(ctx).Model(&model.SupplierAPIConfig{}).
		Where("id = ?", configID).
		Updates(map[string]any{
			"last_sync_at":     out.At,
			"last_sync_status": out.Status,
			"last_sync_error":  out.Error,
			"next_sync_at":     out.NextAt,
		}).Error
}

func (r *supplierRepo) SetSchedule(ctx context.Context, configID uint, intervalHours int, nextAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.SupplierAPIConfig{}).
		Where("id = ?", configID).
		Updates(map[string]any{
			"sync_interval_hours": intervalHours,
			"next_sync_at":        nextAt,
		}).Error
}

func (r *supplierRepo) ListLinks(ctx context.Context, supplierID uint, afterID uint, limit int) ([]model.ProductSupplier, error) {
	var rows []model.ProductSupplier
	err := r.db.WithContext(ctx).
		Where("supplier_id = ? AND is_active = true AND id > ?", supplierID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *supplierRepo) SaveLink(ctx context.Context, link *model.ProductSupplier) error {
	return r.db.WithContext(ctx).Save(link).Error
}

func (r *supplierRepo) TouchLinks(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.ProductSupplier{}).
		Where("id IN ?", ids).
		Update("last_checked_at", at).Error
}
