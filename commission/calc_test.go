package commission_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/commission"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func pct(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func moneyRef(v int64) *billing.Money {
	m := billing.Money(v)
	return &m
}

// sellerRules is the standard fixture: 10% platform expense, seller at
// 20% standard / 30% partner.
func sellerRules() commission.RuleSet {
	return commission.RuleSet{
		ExpenseItems: []commission.ExpenseItem{
			{TemplateID: "platform", Type: commission.ValuePercent, Value: pct(10)},
		},
		Rules: []commission.Rule{
			{Role: commission.RoleSeller, StandardPercent: pct(20), PartnerPercent: pct(30)},
		},
	}
}

// =============================================================================
// CALCULATOR TESTS
// =============================================================================

func TestCompute_StandardSale(t *testing.T) {
	// GIVEN: Price 100,000, 10% expense, seller at 20%
	// WHEN: Computing a non-partner sale
	// THEN: Base 90,000, commission 18,000

	result, err := commission.Compute(commission.Input{
		RuleSet: sellerRules(),
		Price:   100000,
		Role:    commission.RoleSeller,
	})
	require.NoError(t, err)

	assert.True(t, result.Percent.Equal(pct(20)))
	assert.Equal(t, billing.Money(18000), result.Amount)
	assert.Nil(t, result.AMFee)
}

func TestCompute_PartnerLead_ElevatedPercent(t *testing.T) {
	// GIVEN: Same deal, partner lead
	// WHEN: Computing
	// THEN: The partner percent applies: 90,000 * 30% = 27,000

	result, err := commission.Compute(commission.Input{
		RuleSet:     sellerRules(),
		Price:       100000,
		PartnerLead: true,
		Role:        commission.RoleSeller,
	})
	require.NoError(t, err)

	assert.True(t, result.Percent.Equal(pct(30)))
	assert.Equal(t, billing.Money(27000), result.Amount)
}

func TestCompute_FixedExpense(t *testing.T) {
	rs := commission.RuleSet{
		ExpenseItems: []commission.ExpenseItem{
			{TemplateID: "license", Type: commission.ValueFixed, Value: decimal.NewFromInt(25000)},
		},
		Rules: []commission.Rule{
			{Role: commission.RoleSeller, StandardPercent: pct(20), PartnerPercent: pct(30)},
		},
	}

	result, err := commission.Compute(commission.Input{RuleSet: rs, Price: 100000, Role: commission.RoleSeller})
	require.NoError(t, err)
	assert.Equal(t, billing.Money(15000), result.Amount, "(100,000 - 25,000) * 20%")
}

func TestCompute_ExpensesExceedPrice_BaseClampsToZero(t *testing.T) {
	// GIVEN: Fixed expenses larger than the price
	// WHEN: Computing
	// THEN: Commission is zero, never negative

	rs := commission.RuleSet{
		ExpenseItems: []commission.ExpenseItem{
			{TemplateID: "license", Type: commission.ValueFixed, Value: decimal.NewFromInt(150000)},
		},
		Rules: []commission.Rule{
			{Role: commission.RoleSeller, StandardPercent: pct(20), PartnerPercent: pct(30)},
		},
	}

	result, err := commission.Compute(commission.Input{RuleSet: rs, Price: 100000, Role: commission.RoleSeller})
	require.NoError(t, err)
	assert.Equal(t, billing.Money(0), result.Amount)
}

func TestCompute_NoRuleForRole_NoCommission(t *testing.T) {
	result, err := commission.Compute(commission.Input{
		RuleSet: sellerRules(),
		Price:   100000,
		Role:    commission.RoleAccountManager,
	})
	require.NoError(t, err)
	assert.True(t, result.Percent.IsZero())
	assert.Equal(t, billing.Money(0), result.Amount)
}

func TestCompute_RoleNone_NoCommission(t *testing.T) {
	result, err := commission.Compute(commission.Input{
		RuleSet: sellerRules(),
		Price:   100000,
		Role:    commission.RoleNone,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.Money(0), result.Amount)
}

func TestCompute_NegativePrice_Rejected(t *testing.T) {
	_, err := commission.Compute(commission.Input{RuleSet: sellerRules(), Price: -1})
	assert.True(t, billing.IsValidation(err))
}

// =============================================================================
// AM FEE TIER TESTS
// =============================================================================

func tieredRules() commission.RuleSet {
	rs := sellerRules()
	rs.FeeTiers = []commission.FeeTier{
		{Min: moneyRef(0), Max: moneyRef(100000), Fee: 5000},
		{Min: moneyRef(100001), Fee: 10000},
	}
	return rs
}

func TestCompute_FeeTier_InclusiveBounds(t *testing.T) {
	// GIVEN: Tiers [0, 100000] -> 5000 and [100001, inf) -> 10000
	// WHEN: Pricing exactly on the boundary
	// THEN: The boundary belongs to the first tier (inclusive max)

	result, err := commission.Compute(commission.Input{RuleSet: tieredRules(), Price: 100000, Role: commission.RoleSeller})
	require.NoError(t, err)
	require.NotNil(t, result.AMFee)
	assert.Equal(t, billing.Money(5000), *result.AMFee)

	result, err = commission.Compute(commission.Input{RuleSet: tieredRules(), Price: 100001, Role: commission.RoleSeller})
	require.NoError(t, err)
	require.NotNil(t, result.AMFee)
	assert.Equal(t, billing.Money(10000), *result.AMFee)
}

func TestCompute_FeeTier_NoMatchFallsBackToFirstTier(t *testing.T) {
	// GIVEN: Tiers starting at 50,000, price below every tier
	// WHEN: Computing
	// THEN: The first tier's fee applies as the default

	rs := sellerRules()
	rs.FeeTiers = []commission.FeeTier{
		{Min: moneyRef(50000), Max: moneyRef(100000), Fee: 5000},
		{Min: moneyRef(100001), Fee: 10000},
	}

	result, err := commission.Compute(commission.Input{RuleSet: rs, Price: 10000, Role: commission.RoleSeller})
	require.NoError(t, err)
	require.NotNil(t, result.AMFee)
	assert.Equal(t, billing.Money(5000), *result.AMFee)
}

func TestCompute_NoTiers_NoFee(t *testing.T) {
	result, err := commission.Compute(commission.Input{RuleSet: sellerRules(), Price: 100000, Role: commission.RoleSeller})
	require.NoError(t, err)
	assert.Nil(t, result.AMFee)
}

// =============================================================================
// ROLE RESOLUTION TESTS
// =============================================================================

func TestResolveRole_BothAlphabets(t *testing.T) {
	tests := []struct {
		department string
		want       commission.Role
	}{
		{"Sales Department", commission.RoleSeller},
		{"SALES", commission.RoleSeller},
		{"Отдел продаж", commission.RoleSeller},
		{"Account Management", commission.RoleAccountManager},
		{"Аккаунтинг", commission.RoleAccountManager},
		{"Engineering", commission.RoleNone},
		{"", commission.RoleNone},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, commission.ResolveRole(tt.department), "department %q", tt.department)
	}
}

// =============================================================================
// OVERRIDE MERGE TESTS
// =============================================================================

func TestMergeOverrides_NilFieldsKeepDefaults(t *testing.T) {
	defaults := []commission.ExpenseItem{
		{TemplateID: "platform", Type: commission.ValuePercent, Value: pct(10)},
		{TemplateID: "license", Type: commission.ValueFixed, Value: decimal.NewFromInt(5000)},
	}

	newValue := pct(15)
	merged := commission.MergeOverrides(defaults, []commission.ExpenseOverride{
		{TemplateID: "platform", Value: &newValue},
		{TemplateID: "unknown", Value: &newValue}, // ignored
	})

	require.Len(t, merged, 2)
	assert.True(t, merged[0].Value.Equal(pct(15)))
	assert.Equal(t, commission.ValuePercent, merged[0].Type, "nil type keeps default")
	assert.True(t, merged[1].Value.Equal(decimal.NewFromInt(5000)), "untouched item unchanged")
}

func TestMergeOverrides_Empty_ReturnsDefaults(t *testing.T) {
	defaults := sellerRules().ExpenseItems
	assert.Equal(t, defaults, commission.MergeOverrides(defaults, nil))
}
