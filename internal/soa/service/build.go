package service

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	feeservice "github.com/smallbiznis/registrar/internal/fee/service"
	"github.com/smallbiznis/registrar/internal/soa/domain"
)

const (
	categoryTuition       = "Tuition Fee"
	categoryLaboratory    = "Laboratory Fees"
	categoryMiscellaneous = "Miscellaneous Fees"
	categoryOther         = "Other Fees"
	categoryDiscount      = "Discount"
)

type lineItem struct {
	description string
	value       decimal.Decimal
}

// build is the in-memory result of pricing one enrollment.
type build struct {
	tuition      feeservice.TuitionTotals
	tuitionLines []lineItem
	labLines     []lineItem
	miscLines    []lineItem
	otherLines   []lineItem
	discount     feeservice.DiscountResult
}

func sum(items []lineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.value)
	}
	return total
}

func (b *build) total() decimal.Decimal {
	return b.tuition.Total().
		Add(sum(b.labLines)).
		Add(sum(b.miscLines)).
		Add(sum(b.otherLines))
}

func (b *build) discountApplies() bool {
	return b.discount.Applied && b.discount.Value.IsPositive()
}

func (b *build) rows(soaID snowflake.ID, genID *snowflake.Node) ([]domain.Category, []domain.Line) {
	groups := []struct {
		name  string
		items []lineItem
	}{
		{categoryTuition, b.tuitionLines},
		{categoryLaboratory, b.labLines},
		{categoryMiscellaneous, b.miscLines},
		{categoryOther, b.otherLines},
	}
	if b.discountApplies() {
		groups = append(groups, struct {
			name  string
			items []lineItem
		}{categoryDiscount, []lineItem{{
			description: b.discount.Discount.Name,
			value:       b.discount.Value.Neg(),
		}}})
	}

	var categories []domain.Category
	var lines []domain.Line
	order := 0
	for _, group := range groups {
		if len(group.items) == 0 {
			continue
		}
		category := domain.Category{
			ID:        genID.Generate(),
			SOAID:     soaID,
			Name:      group.name,
			SortOrder: len(categories) + 1,
		}
		categories = append(categories, category)
		for _, item := range group.items {
			order++
			categoryID := category.ID
			lines = append(lines, domain.Line{
				ID:          genID.Generate(),
				SOAID:       soaID,
				CategoryID:  &categoryID,
				Description: item.description,
				Value:       item.value.Round(2),
				SortOrder:   order,
			})
		}
	}
	return categories, lines
}

// transactions returns one charge per non-zero category plus the discount credit.
func (b *build) transactions(soaID snowflake.ID, now time.Time) []domain.AccountTransaction {
	charges := []struct {
		source      string
		description string
		amount      decimal.Decimal
	}{
		{domain.SourceTuitionProfessional, "Tuition Fee (Professional)", b.tuition.Professional},
		{domain.SourceTuitionGeneral, "Tuition Fee (General Education)", b.tuition.NonProfessional},
		{domain.SourceLaboratoryFees, categoryLaboratory, sum(b.labLines)},
		{domain.SourceMiscellaneousFees, categoryMiscellaneous, sum(b.miscLines)},
		{domain.SourceOtherFees, categoryOther, sum(b.otherLines)},
	}

	var out []domain.AccountTransaction
	for _, charge := range charges {
		if charge.amount.IsZero() {
			continue
		}
		out = append(out, domain.AccountTransaction{
			SOAID:       soaID,
			Amount:      charge.amount.Round(2),
			Description: charge.description,
			SourceType:  charge.source,
			PostedAt:    now,
		})
	}
	if b.discountApplies() {
		out = append(out, domain.AccountTransaction{
			SOAID:       soaID,
			Amount:      b.discount.Value.Neg(),
			Description: "Discount: " + b.discount.Discount.Name,
			SourceType:  domain.SourceDiscount,
			PostedAt:    now,
		})
	}
	return out
}
