package commission

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// CALCULATOR - Pure function, no side effects
// =============================================================================

// Compute resolves the commission for one sale.
//
//	expense total = sum(PERCENT item -> price * value / 100, FIXED item -> value)
//	base          = max(0, price - expense total)
//	percent       = partner-lead ? rule.partner : rule.standard, for the role
//	amount        = base * percent / 100, rounded to whole minor units
//
// A negative base clamps to zero - commission is never negative. Roles
// without a rule (or RoleNone) earn nothing. The AM fee comes from the
// first tier whose condition contains the price; when no tier matches but
// tiers exist, the first tier applies as the fallback default; with no
// tiers there is no fee.
func Compute(in Input) (Result, error) {
	if in.Price.IsNegative() {
		return Result{}, billing.NewValidationError("price must not be negative")
	}

	price := decimal.NewFromInt(int64(in.Price))

	expenses := decimal.Zero
	for _, item := range in.RuleSet.ExpenseItems {
		switch item.Type {
		case ValuePercent:
			expenses = expenses.Add(price.Mul(item.Value).Div(hundred))
		case ValueFixed:
			expenses = expenses.Add(item.Value)
		}
	}

	base := price.Sub(expenses)
	if base.IsNegative() {
		base = decimal.Zero
	}

	result := Result{Percent: decimal.Zero}
	if rule, ok := in.RuleSet.RuleFor(in.Role); ok && in.Role != RoleNone {
		if in.PartnerLead {
			result.Percent = rule.PartnerPercent
		} else {
			result.Percent = rule.StandardPercent
		}
		result.Amount = billing.Money(base.Mul(result.Percent).Div(hundred).Round(0).IntPart())
	}

	if fee, ok := lookupFee(in.RuleSet.FeeTiers, in.Price); ok {
		result.AMFee = &fee
	}
	return result, nil
}

// lookupFee scans tiers in list order; first containing tier wins. No match
// with at least one tier present falls back to the first tier - an explicit
// policy, not "no fee".
func lookupFee(tiers []FeeTier, price billing.Money) (billing.Money, bool) {
	if len(tiers) == 0 {
		return 0, false
	}
	for _, t := range tiers {
		if t.Contains(price) {
			return t.Fee, true
		}
	}
	return tiers[0].Fee, true
}

// =============================================================================
// ROLE RESOLUTION
// =============================================================================

// ResolveRole maps a department name to a commission role. Matching is
// case-insensitive substring in either alphabet; unmatched departments get
// no commission.
func ResolveRole(department string) Role {
	d := strings.ToLower(department)
	switch {
	case strings.Contains(d, "sales") || strings.Contains(d, "продаж"):
		return RoleSeller
	case strings.Contains(d, "account") || strings.Contains(d, "аккаунт"):
		return RoleAccountManager
	default:
		return RoleNone
	}
}

// =============================================================================
// EXPENSE OVERRIDES
// =============================================================================

// MergeOverrides overlays per-sale expense customizations onto the product
// defaults. Overrides matching no default are ignored; nil fields keep the
// default's value.
func MergeOverrides(defaults []ExpenseItem, overrides []ExpenseOverride) []ExpenseItem {
	if len(overrides) == 0 {
		return defaults
	}

	byTemplate := make(map[string]ExpenseOverride, len(overrides))
	for _, o := range overrides {
		byTemplate[o.TemplateID] = o
	}

	merged := make([]ExpenseItem, len(defaults))
	for i, item := range defaults {
		merged[i] = item
		if o, ok := byTemplate[item.TemplateID]; ok {
			if o.Type != nil {
				merged[i].Type = *o.Type
			}
			if o.Value != nil {
				merged[i].Value = *o.Value
			}
		}
	}
	return merged
}
