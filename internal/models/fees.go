package models

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeTier applies to withdrawal amounts at or above MinAmount.
type FeeTier struct {
	MinAmount decimal.Decimal
	Flat      decimal.Decimal
	Percent   decimal.Decimal
}

// FeeSchedule prices withdrawals. The zero value charges nothing.
type FeeSchedule struct {
	tiers []FeeTier
}

func NewFeeSchedule(tiers []FeeTier) (*FeeSchedule, error) {
	for i, t := range tiers {
		if t.MinAmount.IsNegative() || t.Flat.IsNegative() || t.Percent.IsNegative() {
			return nil, fmt.Errorf("fee tier at index %d has negative values", i)
		}
		if t.Percent.GreaterThanOrEqual(hundred) {
			return nil, fmt.Errorf("fee tier at index %d percent must be below 100", i)
		}
	}
	sorted := make([]FeeTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinAmount.LessThan(sorted[j].MinAmount) })
	return &FeeSchedule{tiers: sorted}, nil
}

// FeeFor returns the fee for a withdrawal of amount, rounded to whole
// currency units.
func (s *FeeSchedule) FeeFor(amount decimal.Decimal) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	var tier *FeeTier
	for i := range s.tiers {
		if amount.GreaterThanOrEqual(s.tiers[i].MinAmount) {
			tier = &s.tiers[i]
		}
	}
	if tier == nil {
		return decimal.Zero
	}
	return tier.Flat.Add(amount.Mul(tier.Percent).Div(hundred)).Round(0)
}

func (s *FeeSchedule) Tiers() []FeeTier {
	if s == nil {
		return nil
	}
	return s.tiers
}
