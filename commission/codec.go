/*
codec.go - JSON encoding of persisted rule sets

PURPOSE:
  Products store their commission rule set as a JSON document; this file
  converts between that document and the Go RuleSet. JSON keeps rule
  editing in admin tooling without code changes and gives the rule set a
  single versionable representation in the database.

JSON SCHEMA:
  {
    "expense_items": [
      {"template_id": "media-buy", "type": "percent", "value": "10"}
    ],
    "commissions": [
      {"role": "seller", "standard_percent": "20", "partner_percent": "30"}
    ],
    "am_fee_tiers": [
      {"min": 0, "max": 100000, "fee": 10000},
      {"min": 100000, "fee": 20000}
    ]
  }

  Percent values are decimal strings; money values are integer minor
  units. Omitted tier bounds are open.
*/
package commission

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleSetJSON is the stored representation of a rule set.
type RuleSetJSON struct {
	ExpenseItems []ExpenseItemJSON `json:"expense_items,omitempty"`
	Commissions  []CommissionJSON  `json:"commissions,omitempty"`
	AMFeeTiers   []FeeTierJSON     `json:"am_fee_tiers,omitempty"`
}

type ExpenseItemJSON struct {
	TemplateID string `json:"template_id"`
	Type       string `json:"type"`
	Value      string `json:"value"`
}

type CommissionJSON struct {
	Role            string `json:"role"`
	StandardPercent string `json:"standard_percent"`
	PartnerPercent  string `json:"partner_percent"`
}

type FeeTierJSON struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
	Fee int64  `json:"fee"`
}

// =============================================================================
// PARSE / ENCODE
// =============================================================================

// ParseRuleSet converts a stored JSON document into a RuleSet.
func ParseRuleSet(raw string) (RuleSet, error) {
	if raw == "" {
		return RuleSet{}, nil
	}

	var doc RuleSetJSON
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return RuleSet{}, fmt.Errorf("invalid rule set json: %w", err)
	}

	var rs RuleSet
	for _, item := range doc.ExpenseItems {
		t := ValueType(item.Type)
		if !t.Valid() {
			return RuleSet{}, fmt.Errorf("expense item %q: unknown value type %q", item.TemplateID, item.Type)
		}
		v, err := decimal.NewFromString(item.Value)
		if err != nil {
			return RuleSet{}, fmt.Errorf("expense item %q: invalid value %q", item.TemplateID, item.Value)
		}
		rs.ExpenseItems = append(rs.ExpenseItems, ExpenseItem{TemplateID: item.TemplateID, Type: t, Value: v})
	}

	for _, c := range doc.Commissions {
		role := Role(c.Role)
		if role != RoleSeller && role != RoleAccountManager {
			return RuleSet{}, fmt.Errorf("commission rule: unknown role %q", c.Role)
		}
		std, err := decimal.NewFromString(c.StandardPercent)
		if err != nil {
			return RuleSet{}, fmt.Errorf("commission rule %s: invalid standard percent %q", role, c.StandardPercent)
		}
		partner, err := decimal.NewFromString(c.PartnerPercent)
		if err != nil {
			return RuleSet{}, fmt.Errorf("commission rule %s: invalid partner percent %q", role, c.PartnerPercent)
		}
		rs.Rules = append(rs.Rules, Rule{Role: role, StandardPercent: std, PartnerPercent: partner})
	}

	for _, t := range doc.AMFeeTiers {
		tier := FeeTier{Fee: billing.Money(t.Fee)}
		if t.Min != nil {
			min := billing.Money(*t.Min)
			tier.Min = &min
		}
		if t.Max != nil {
			max := billing.Money(*t.Max)
			tier.Max = &max
		}
		rs.FeeTiers = append(rs.FeeTiers, tier)
	}

	return rs, nil
}

// EncodeRuleSet converts a RuleSet into its stored JSON document.
func EncodeRuleSet(rs RuleSet) (string, error) {
	var doc RuleSetJSON
	for _, item := range rs.ExpenseItems {
		doc.ExpenseItems = append(doc.ExpenseItems, ExpenseItemJSON{
			TemplateID: item.TemplateID,
			Type:       string(item.Type),
			Value:      item.Value.String(),
		})
	}
	for _, r := range rs.Rules {
		doc.Commissions = append(doc.Commissions, CommissionJSON{
			Role:            string(r.Role),
			StandardPercent: r.StandardPercent.String(),
			PartnerPercent:  r.PartnerPercent.String(),
		})
	}
	for _, t := range rs.FeeTiers {
		tier := FeeTierJSON{Fee: int64(t.Fee)}
		if t.Min != nil {
			min := int64(*t.Min)
			tier.Min = &min
		}
		if t.Max != nil {
			max := int64(*t.Max)
			tier.Max = &max
		}
		doc.AMFeeTiers = append(doc.AMFeeTiers, tier)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
