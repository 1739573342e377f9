package pricing

import (
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Resolver picks the one rule that governs a product.
type Resolver struct {
	Now func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{Now: time.Now}
}

// scopeOrder is the precedence of rule levels: a narrower scope always
// outranks a wider one regardless of priority.
var scopeOrder = []Scope{ScopeProduct, ScopeCategory, ScopeBrand, ScopeAll}

// Resolve returns the governing rule for state, or nil for "no automatic
// adjustment". Within a level the highest priority wins, ties go to the most
// recently updated rule and then to the highest id.
func (r *Resolver) Resolve(state ProductState, triggerCost decimal.Decimal, rules []Rule) *Rule {
	facts := BuildFacts(state, triggerCost, r.Now())
	for _, level := range scopeOrder {
		candidates := matching(state, level, rules)
		SortByPrecedence(candidates)
		for i := range candidates {
			rule := candidates[i]
			if rule.RuleType == RuleCompetitorMatch && !state.CompetitorMatchEnabled {
				continue
			}
			ok, err := EvalConditions(rule.Conditions, facts)
			if err != nil {
				log.Warn().Err(err).Uint("rule_id", rule.ID).Uint("product_id", state.ID).
					Msg("resolver: skipping rule with failing conditions")
				continue
			}
			if ok {
				return &rule
			}
		}
	}
	return nil
}

// SortByPrecedence orders rules priority desc, updated_at desc, id desc.
func SortByPrecedence(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})
}

func matching(state ProductState, level Scope, rules []Rule) []Rule {
	var out []Rule
	for _, rule := range rules {
		if !rule.IsActive || rule.AppliesTo != level {
			continue
		}
		if inScope(state, rule) {
			out = append(out, rule)
		}
	}
	return out
}

func inScope(state ProductState, rule Rule) bool {
	switch rule.AppliesTo {
	case ScopeAll:
		return true
	case ScopeProduct:
		return slices.Contains(rule.ScopeIDs, state.ID)
	case ScopeBrand:
		return state.BrandID != nil && slices.Contains(rule.ScopeIDs, *state.BrandID)
	case ScopeCategory:
		for _, c := range state.CategoryIDs {
			if slices.Contains(rule.ScopeIDs, c) {
				return true
			}
		}
	}
	return false
}
