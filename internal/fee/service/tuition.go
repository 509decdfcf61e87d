package service

import (
	"strings"

	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
)

// TuitionFor prices one subject. Medicine subjects are billed the flat rate;
// everything else is rate times units.
func TuitionFor(subject academicdomain.Subject, rate decimal.Decimal) decimal.Decimal {
	if strings.EqualFold(strings.TrimSpace(subject.Classification), academicdomain.ClassificationMedicine) {
		return rate
	}
	return rate.Mul(decimal.NewFromInt(int64(subject.Units)))
}

// TuitionTotals accumulates professional and general-education tuition separately.
type TuitionTotals struct {
	Professional         decimal.Decimal
	NonProfessional      decimal.Decimal
	ProfessionalUnits    int
	NonProfessionalUnits int
}

func (t *TuitionTotals) Add(professional bool, amount decimal.Decimal, units int) {
	if professional {
		t.Professional = t.Professional.Add(amount)
		t.ProfessionalUnits += units
		return
	}
	t.NonProfessional = t.NonProfessional.Add(amount)
	t.NonProfessionalUnits += units
}

func (t TuitionTotals) Total() decimal.Decimal {
	return t.Professional.Add(t.NonProfessional)
}

func (t TuitionTotals) Units() int {
	return t.ProfessionalUnits + t.NonProfessionalUnits
}
