package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

type RuleService interface {
	Create(ctx context.Context, req dto.CreateRuleRequest) (*dto.RuleResponse, error)
	Get(ctx context.Context, id uint) (*dto.RuleResponse, error)
	List(ctx context.Context, filter dto.RuleFilter) (*dto.RuleListResponse, error)
	Update(ctx context.Context, id uint, req dto.UpdateRuleRequest) (*dto.RuleResponse, error)
	Delete(ctx context.Context, id uint) error
}

type ruleService struct {
	store repository.Store
}

func NewRuleService(store repository.Store) RuleService {
	return &ruleService{store: store}
}

func (s *ruleService) Create(ctx context.Context, req dto.CreateRuleRequest) (*dto.RuleResponse, error) {
	rule := &model.PriceAdjustmentRule{
		Name:        req.Name,
		Description: req.Description,
		RuleType:    req.RuleType,
		Conditions:  normalizeConditions(req.Conditions),
		Priority:    req.Priority,
		AppliesTo:   req.AppliesTo,
		ScopeIDs:    datatypes.JSONSlice[uint](req.ScopeIDs),
		ActionType:  req.ActionType,
		ActionValue: req.ActionValue,
		ActionConfig: datatypes.NewJSONType(model.RuleActionConfig{
			OffsetType:       req.ActionConfig.OffsetType,
			RequiresApproval: req.ActionConfig.RequiresApproval,
		}),
		IsActive: true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if err := s.validate(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.store.Rules().Create(ctx, rule); err != nil {
		return nil, apierror.Internal(err, "create rule")
	}
	log.Info().Uint("rule_id", rule.ID).Str("name", rule.Name).Msg("pricing rule created")
	resp := ruleToDTO(rule)
	return &resp, nil
}

func (s *ruleService) Get(ctx context.Context, id uint) (*dto.RuleResponse, error) {
	rule, err := s.store.Rules().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ruleToDTO(rule)
	return &resp, nil
}

func (s *ruleService) List(ctx context.Context, filter dto.RuleFilter) (*dto.RuleListResponse, error) {
	rows, err := s.store.Rules().List(ctx, filter)
	if err != nil {
		return nil, apierror.Internal(err, "list rules")
	}
	data := make([]dto.RuleResponse, 0, len(rows))
	for i := range rows {
		data = append(data, ruleToDTO(&rows[i]))
	}
	return &dto.RuleListResponse{Data: data, Total: len(data)}, nil
}

func (s *ruleService) Update(ctx context.Context, id uint, req dto.UpdateRuleRequest) (*dto.RuleResponse, error) {
	rule, err := s.store.Rules().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = req.Description
	}
	if req.RuleType != nil {
		rule.RuleType = *req.RuleType
	}
	if req.Conditions != nil {
		rule.Conditions = normalizeConditions(req.Conditions)
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.AppliesTo != nil {
		rule.AppliesTo = *req.AppliesTo
	}
	if req.ScopeIDs != nil {
		rule.ScopeIDs = datatypes.JSONSlice[uint](req.ScopeIDs)
	}
	if req.ActionType != nil {
		rule.ActionType = *req.ActionType
	}
	if req.ActionValue != nil {
		rule.ActionValue = *req.ActionValue
	}
	if req.ActionConfig != nil {
		rule.ActionConfig = datatypes.NewJSONType(model.RuleActionConfig{
			OffsetType:       req.ActionConfig.OffsetType,
			RequiresApproval: req.ActionConfig.RequiresApproval,
		})
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if err := s.validate(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.store.Rules().Update(ctx, rule); err != nil {
		return nil, apierror.Internal(err, "update rule")
	}
	resp := ruleToDTO(rule)
	return &resp, nil
}

func (s *ruleService) Delete(ctx context.Context, id uint) error {
	if err := s.store.Rules().Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Uint("rule_id", id).Msg("pricing rule deleted")
	return nil
}

// validate enforces the rule invariants the DTO tags cannot express.
func (s *ruleService) validate(ctx context.Context, r *model.PriceAdjustmentRule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}
	scope := pricing.Scope(r.AppliesTo)
	if scope == pricing.ScopeAll {
		return nil
	}
	missing, err := s.store.Products().MissingScopeIDs(ctx, scope, []uint(r.ScopeIDs))
	if err != nil {
		return apierror.Internal(err, "check rule scope")
	}
	if len(missing) > 0 {
		return apierror.Validation("unknown %s ids in scope_ids: %v", scope, missing)
	}
	return nil
}

// ValidateRule checks enums, scope ids, action value ranges and the JsonLogic
// conditions of a rule. It needs no database and is shared with the seeder.
func ValidateRule(r *model.PriceAdjustmentRule) error {
	if r.Name == "" {
		return apierror.Validation("name is required")
	}
	if !pricing.RuleType(r.RuleType).Valid() {
		return apierror.Validation("unknown rule_type %q", r.RuleType)
	}
	scope := pricing.Scope(r.AppliesTo)
	if !scope.Valid() {
		return apierror.Validation("unknown applies_to %q", r.AppliesTo)
	}
	if scope != pricing.ScopeAll && len(r.ScopeIDs) == 0 {
		return apierror.Validation("scope_ids is required when applies_to is %s", scope)
	}
	if r.Priority < 0 {
		return apierror.Validation("priority must be >= 0")
	}

	action := pricing.ActionType(r.ActionType)
	v := r.ActionValue
	hundred := decimal.NewFromInt(100)
	switch action {
	case pricing.ActionSetMargin:
		if v.IsNegative() || v.GreaterThanOrEqual(hundred) {
			return apierror.Validation("set_margin action_value must be in [0, 100)")
		}
	case pricing.ActionApplyDiscount:
		if !v.IsPositive() || v.GreaterThanOrEqual(hundred) {
			return apierror.Validation("apply_discount action_value must be in (0, 100)")
		}
	case pricing.ActionMarkupPercent, pricing.ActionMarkupFixed:
		if v.IsNegative() {
			return apierror.Validation("%s action_value must be >= 0", action)
		}
	case pricing.ActionMatchCompetitor:
		if v.LessThanOrEqual(hundred.Neg()) {
			return apierror.Validation("match_competitor offset must be > -100")
		}
	default:
		return apierror.Validation("unknown action_type %q", r.ActionType)
	}

	cfg := r.ActionConfig.Data()
	if cfg.OffsetType != "" && cfg.OffsetType != pricing.OffsetPercent && cfg.OffsetType != pricing.OffsetFixed {
		return apierror.Validation("unknown offset_type %q", cfg.OffsetType)
	}
	if !pricing.ValidConditions(r.Conditions) {
		return apierror.Validation("conditions is not a valid JsonLogic expression")
	}
	return nil
}

func normalizeConditions(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return datatypes.JSON(raw)
}

func ruleToDTO(r *model.PriceAdjustmentRule) dto.RuleResponse {
	cfg := r.ActionConfig.Data()
	ids := []uint(r.ScopeIDs)
	if ids == nil {
		ids = []uint{}
	}
	var cond json.RawMessage
	if len(r.Conditions) > 0 {
		cond = json.RawMessage(r.Conditions)
	}
	return dto.RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		RuleType:    r.RuleType,
		Conditions:  cond,
		Priority:    r.Priority,
		AppliesTo:   r.AppliesTo,
		ScopeIDs:    ids,
		ActionType:  r.ActionType,
		ActionValue: r.ActionValue,
		ActionConfig: dto.RuleActionConfigInput{
			OffsetType:       cfg.OffsetType,
			RequiresApproval: cfg.RequiresApproval,
		},
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
