/*
Package commission computes sales/account-management commissions and tiered
fees from product-level rule sets.

PURPOSE:
  A product owns one rule set: expense items that form the cost base,
  commission percentages per role (standard and partner-lead), and an
  ordered list of account-manager fee tiers over the sale price. The
  calculator is a pure function from (rule set, price, partner flag, role)
  to a commission percent/amount and an optional flat fee.

SNAPSHOT SEMANTICS:
  The calculator's output is snapshotted onto the service at sale/edit
  time. Editing a product's rule set later never reprices already-sold
  services - callers persist the Result, not a rule reference.

NUMERICS:
  Prices and fees are integer minor units (billing.Money). Percent
  arithmetic uses shopspring/decimal so percent-of-amount never touches
  binary floats; amounts round half away from zero to whole minor units.

SEE ALSO:
  - calc.go: Compute, role resolution, expense override merging
  - codec.go: JSON encoding of persisted rule sets
*/
package commission

import (
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// RULE SET - Read-only input owned by the product
// =============================================================================

// ValueType distinguishes percent-of-price expense items from fixed ones.
type ValueType string

const (
	ValuePercent ValueType = "percent"
	ValueFixed   ValueType = "fixed"
)

func (v ValueType) Valid() bool { return v == ValuePercent || v == ValueFixed }

// ExpenseItem is one cost component of the commission base. PERCENT items
// are a share of the sale price; FIXED items are minor-unit amounts.
type ExpenseItem struct {
	TemplateID string
	Type       ValueType
	Value      decimal.Decimal
}

// ExpenseOverride customizes one expense item for a single sale. Nil fields
// keep the product default.
type ExpenseOverride struct {
	TemplateID string
	Type       *ValueType
	Value      *decimal.Decimal
}

// Role is the commission role resolved from the responsible employee's
// department.
type Role string

const (
	RoleSeller         Role = "seller"
	RoleAccountManager Role = "account_manager"
	RoleNone           Role = ""
)

// Rule is the commission percentage pair for one role.
type Rule struct {
	Role            Role
	StandardPercent decimal.Decimal
	PartnerPercent  decimal.Decimal
}

// FeeTier is one account-manager fee tier. The condition is an inclusive
// price range; a nil bound is open (±infinity).
type FeeTier struct {
	Min *billing.Money
	Max *billing.Money
	Fee billing.Money
}

// Contains reports whether the tier's condition covers the price.
func (t FeeTier) Contains(price billing.Money) bool {
	if t.Min != nil && price < *t.Min {
		return false
	}
	if t.Max != nil && price > *t.Max {
		return false
	}
	return true
}

// RuleSet is a product's complete commission configuration. Tier and
// expense-item order is significant.
type RuleSet struct {
	ExpenseItems []ExpenseItem
	Rules        []Rule
	FeeTiers     []FeeTier
}

// RuleFor returns the commission rule for a role, or false.
func (rs RuleSet) RuleFor(role Role) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.Role == role {
			return r, true
		}
	}
	return Rule{}, false
}

// =============================================================================
// CALCULATOR INPUT/OUTPUT
// =============================================================================

// Input is everything Compute needs. ExpenseItems inside the rule set are
// assumed already merged with per-sale overrides (see MergeOverrides).
type Input struct {
	RuleSet     RuleSet
	Price       billing.Money
	PartnerLead bool
	Role        Role
}

// Result is the resolved commission, snapshotted onto the service.
type Result struct {
	Percent decimal.Decimal
	Amount  billing.Money
	AMFee   *billing.Money
}
