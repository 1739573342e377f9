package repository

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

// ProductRepository reads catalog data and performs the only price writes the
// engine is allowed to make: a compare-and-swap on price_version.
type ProductRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Product, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.Product, error)
	// ListIDsByScope returns ids of active products in scope, ordered by id.
	ListIDsByScope(ctx context.Context, scope pricing.Scope, ids []uint) ([]uint, error)
	// FindByMatchKeys looks products up by sku, upc or name, case-insensitively.
	FindByMatchKeys(ctx context.Context, matchBy string, keys []string) ([]model.Product, error)
	// MissingScopeIDs returns the ids in ids that do not name an existing
	// product, category or brand (depending on scope).
	MissingScopeIDs(ctx context.Context, scope pricing.Scope, ids []uint) ([]uint, error)

	// UpdatePrices writes cost and retail price if the row still carries
	// expectedVersion. It reports false when another writer got there first.
	UpdatePrices(ctx context.Context, id uint, expectedVersion int64, cost, retail decimal.Decimal) (bool, error)
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) FindByID(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Preload("Categories").First(&p, id).Error
	if err != nil {
		return nil, notFound(err, "product")
	}
	return &p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []uint) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []model.Product
	err := r.db.WithContext(ctx).
		Preload("Categories").
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *productRepo) ListIDsByScope(ctx context.Context, scope pricing.Scope, ids []uint) ([]uint, error) {
	q := r.db.WithContext(ctx).Model(&model.Product{}).Where("products.is_active = true")
	switch scope {
	case pricing.ScopeProduct:
		q = q.Where("products.id IN ?", ids)
	case pricing.ScopeBrand:
		q = q.Where("products.brand_id IN ?", ids)
	case pricing.ScopeCategory:
		q = q.Where("products.id IN (?)",
			r.db.Table("product_categories").Select("product_id").Where("category_id IN ?", ids))
	}
	var out []uint
	err := q.Order("products.id ASC").Pluck("products.id", &out).Error
	return out, err
}

func (r *productRepo) FindByMatchKeys(ctx context.Context, matchBy string, keys []string) ([]model.Product, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	col := "sku"
	switch matchBy {
	case "upc":
		col = "upc"
	case "name":
		col = "name"
	}
	lowered := make([]string, len(keys))
	for i, k := range keys {
		lowered[i] = strings.ToLower(strings.TrimSpace(k))
	}
	var rows []model.Product
	err := r.db.WithContext(ctx).
		Where("is_active = true AND LOWER("+col+") IN ?", lowered).
		Find(&rows).Error
	return rows, err
}

func (r *productRepo) MissingScopeIDs(ctx context.Context, scope pricing.Scope, ids []uint) ([]uint, error) {
	var table any
	switch scope {
	case pricing.ScopeProduct:
		table = &model.Product{}
	case pricing.ScopeCategory:
		table = &model.Category{}
	case pricing.ScopeBrand:
		table = &model.Brand{}
	default:
		return nil, nil
	}
	var found []uint
	if err := r.db.WithContext(ctx).Model(table).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	seen := make(map[uint]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	var missing []uint
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *productRepo) UpdatePrices(ctx context.Context, id uint, expectedVersion int64, cost, retail decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ? AND price_version = ?", id, expectedVersion).
		Updates(map[string]any{
			"cost":          cost,
			"retail_price":  retail,
			"price_version": gorm.Expr("price_version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
