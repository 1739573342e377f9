package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
)

type RuleRepository interface {
	Create(ctx context.Context, r *model.PriceAdjustmentRule) error
	FindByID(ctx context.Context, id uint) (*model.PriceAdjustmentRule, error)
	List(ctx context.Context, filter dto.RuleFilter) ([]model.PriceAdjustmentRule, error)
	// ListActive returns every active rule; scope filtering happens in the resolver.
	ListActive(ctx context.Context) ([]model.PriceAdjustmentRule, error)
	Update(ctx context.Context, r *model.PriceAdjustmentRule) error
	Delete(ctx context.Context, id uint) error
}

type ruleRepo struct{ db *gorm.DB }

func NewRuleRepository(db *gorm.DB) RuleRepository { return &ruleRepo{db: db} }

func (r *ruleRepo) Create(ctx context.Context, rule *model.PriceAdjustmentRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *ruleRepo) FindByID(ctx context.Context, id uint) (*model.PriceAdjustmentRule, error) {
	var rule model.PriceAdjustmentRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, notFound(err, "rule")
	}
	return &rule, nil
}

func (r *ruleRepo) List(ctx context.Context, filter dto.RuleFilter) ([]model.PriceAdjustmentRule, error) {
	q := r.db.WithContext(ctx).Model(&model.PriceAdjustmentRule{})
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	if filter.RuleType != "" {
		q = q.Where("rule_type = ?", filter.RuleType)
	}
	if filter.AppliesTo != "" {
		q = q.Where("applies_to = ?", filter.AppliesTo)
	}
	var rules []model.PriceAdjustmentRule
	err := q.Order("priority DESC, updated_at DESC, id DESC").Find(&rules).Error
	return rules, err
}

func (r *ruleRepo) ListActive(ctx context.Context) ([]model.PriceAdjustmentRule, error) {
	var rules []model.PriceAdjustmentRule
	err := r.db.WithContext(ctx).
		Where("is_active = true").
		Order("priority DESC, updated_at DESC, id DESC").
		Find(&rules).Error
	return rules, err
}

func (r *ruleRepo) Update(ctx context.Context, rule *model.PriceAdjustmentRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *ruleRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.PriceAdjustmentRule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "rule")
	}
	return nil
}
