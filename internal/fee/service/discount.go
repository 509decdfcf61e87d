package service

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/registrar/internal/fee/domain"
)

var hundred = decimal.NewFromInt(100)

// DiscountSubject is one enrolled subject as seen by the discount calculator.
type DiscountSubject struct {
	CategoryRate string
	Tuition      decimal.Decimal
	HasRate      bool
}

type DiscountInput struct {
	Discount  *domain.Discount
	AutoApply bool
	Subjects  []DiscountSubject
	Fees      []domain.Fee
}

type DiscountResult struct {
	Applied  bool
	Eligible decimal.Decimal
	Value    decimal.Decimal
	Discount *domain.Discount
}

// ShouldApplyDiscount keeps the historical rule: a normal discount applies
// when auto-apply is off, and any discount applies when auto-apply is on.
func ShouldApplyDiscount(discount *domain.Discount, autoApply bool) bool {
	if discount == nil {
		return false
	}
	return (discount.Type == domain.DiscountTypeNormal && !autoApply) || autoApply
}

// ComputeDiscount sums the eligible tuition and fee amounts and applies the
// discount percentage. Value is positive; callers post it as a credit.
func ComputeDiscount(in DiscountInput) DiscountResult {
	result := DiscountResult{Discount: in.Discount}
	if !ShouldApplyDiscount(in.Discount, in.AutoApply) {
		return result
	}
	discount := in.Discount

	eligible := decimal.Zero
	if len(discount.CategoryRateExemption) > 0 {
		exempt := make(map[string]struct{}, len(discount.CategoryRateExemption))
		for _, rate := range discount.CategoryRateExemption {
			exempt[slug.Make(rate)] = struct{}{}
		}
		for _, subject := range in.Subjects {
			if !subject.HasRate {
				continue
			}
			if _, ok := exempt[slug.Make(subject.CategoryRate)]; ok {
				continue
			}
			eligible = eligible.Add(subject.Tuition)
		}
	}

	if len(discount.FeeExemptions) > 0 {
		exempt := make(map[snowflake.ID]struct{}, len(discount.FeeExemptions))
		for _, id := range discount.FeeExemptions {
			exempt[snowflake.ID(id)] = struct{}{}
		}
		for _, fee := range in.Fees {
			if _, ok := exempt[fee.ID]; ok {
				continue
			}
			eligible = eligible.Add(fee.Amount)
		}
	}

	result.Applied = true
	result.Eligible = eligible
	result.Value = eligible.Mul(discount.Percentage).Div(hundred).Round(2)
	return result
}
