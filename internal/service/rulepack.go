package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/model"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
)

// RulePack is a YAML file of pricing rules, keyed by name when seeded.
type RulePack struct {
	Rules []RulePackEntry `yaml:"rules"`
}

type RulePackEntry struct {
	Name         string                 `yaml:"name"`
	Description  string                 `yaml:"description"`
	RuleType     string                 `yaml:"rule_type"`
	Priority     int                    `yaml:"priority"`
	AppliesTo    string                 `yaml:"applies_to"`
	ScopeIDs     []uint                 `yaml:"scope_ids"`
	ActionType   string                 `yaml:"action_type"`
	ActionValue  string                 `yaml:"action_value"`
	ActionConfig model.RuleActionConfig `yaml:"action_config"`
	// Conditions is a JsonLogic expression written as YAML.
	Conditions map[string]any `yaml:"conditions"`
	IsActive   *bool          `yaml:"is_active"`
}

func LoadRulePack(path string) ([]model.PriceAdjustmentRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRulePack(data)
}

// ParseRulePack decodes and validates every rule in data.
func ParseRulePack(data []byte) ([]model.PriceAdjustmentRule, error) {
	var pack RulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("rule pack: %w", err)
	}
	seen := make(map[string]bool, len(pack.Rules))
	out := make([]model.PriceAdjustmentRule, 0, len(pack.Rules))
	for i, e := range pack.Rules {
		r, err := e.toModel()
		if err == nil {
			err = ValidateRule(&r)
		}
		if err != nil {
			return nil, fmt.Errorf("rule pack: rule %d (%s): %w", i+1, e.Name, err)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rule pack: duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	return out, nil
}

func (e RulePackEntry) toModel() (model.PriceAdjustmentRule, error) {
	value := decimal.Zero
	if e.ActionValue != "" {
		v, err := decimal.NewFromString(e.ActionValue)
		if err != nil {
			return model.PriceAdjustmentRule{}, fmt.Errorf("action_value: %w", err)
		}
		value = v
	}
	r := model.PriceAdjustmentRule{
		Name:         e.Name,
		RuleType:     e.RuleType,
		Priority:     e.Priority,
		AppliesTo:    e.AppliesTo,
		ScopeIDs:     datatypes.JSONSlice[uint](e.ScopeIDs),
		ActionType:   e.ActionType,
		ActionValue:  value,
		ActionConfig: datatypes.NewJSONType(e.ActionConfig),
		IsActive:     e.IsActive == nil || *e.IsActive,
	}
	if r.AppliesTo == "" {
		r.AppliesTo = "all"
	}
	if e.Description != "" {
		r.Description = strPtr(e.Description)
	}
	if len(e.Conditions) > 0 {
		raw, err := json.Marshal(e.Conditions)
		if err != nil {
			return model.PriceAdjustmentRule{}, fmt.Errorf("conditions: %w", err)
		}
		r.Conditions = datatypes.JSON(raw)
	}
	return r, nil
}

// SeedRules upserts rules by name in one transaction and reports how many
// were created and updated.
func SeedRules(ctx context.Context, store repository.Store, rules []model.PriceAdjustmentRule) (created, updated int, err error) {
	err = store.Atomic(ctx, func(tx repository.Store) error {
		existing, err := tx.Rules().List(ctx, dto.RuleFilter{})
		if err != nil {
			return err
		}
		byName := make(map[string]model.PriceAdjustmentRule, len(existing))
		for _, r := range existing {
			byName[r.Name] = r
		}
		for i := range rules {
			r := rules[i]
			if cur, ok := byName[r.Name]; ok {
				r.ID = cur.ID
				r.CreatedAt = cur.CreatedAt
				if err := tx.Rules().Update(ctx, &r); err != nil {
					return err
				}
				updated++
				continue
			}
			if err := tx.Rules().Create(ctx, &r); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}
