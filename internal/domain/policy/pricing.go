package policy

import (
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MarginPolicy - минимальная наценка в процентах и переопределения по категориям.
// Ключи CategoryOverrides сравниваются без учета регистра.
type MarginPolicy struct {
	MinimumPercent    decimal.Decimal
	CategoryOverrides map[string]decimal.Decimal
}

// MinimumFor возвращает минимальную наценку для категории
func (p MarginPolicy) MinimumFor(category string) decimal.Decimal {
	key := strings.ToLower(strings.TrimSpace(category))
	if key != "" {
		for name, pct := range p.CategoryOverrides {
			if strings.ToLower(name) == key {
				return pct
			}
		}
	}
	return p.MinimumPercent
}

// PricingValidator проверяет инвариант минимальной наценки
type PricingValidator struct {
	policy MarginPolicy
}

// NewPricingValidator создает валидатор. Отрицательный минимум приводится к нулю.
func NewPricingValidator(policy MarginPolicy) *PricingValidator {
	if policy.MinimumPercent.IsNegative() {
		policy.MinimumPercent = decimal.Zero
	}
	return &PricingValidator{policy: policy}
}

// Policy возвращает действующую политику
func (v *PricingValidator) Policy() MarginPolicy {
	return v.policy
}

// MinSellingPrice = cost * (1 + minPercent/100)
func (v *PricingValidator) MinSellingPrice(cost decimal.Decimal, category string) decimal.Decimal {
	return PriceForPercent(cost, v.policy.MinimumFor(category))
}

// ValidatePrice возвращает *utils.MarginViolation, если цена продажи ниже минимальной.
// Граница включительная: selling == MinSellingPrice проходит.
func (v *PricingValidator) ValidatePrice(cost, selling decimal.Decimal, category string) error {
	minSelling := v.MinSellingPrice(cost, category)
	if selling.LessThan(minSelling) {
		return &utils.MarginViolation{
			Cost:       cost,
			Selling:    selling,
			MinSelling: minSelling,
			MinPercent: v.policy.MinimumFor(category),
		}
	}
	return nil
}

// ValidatePercent отвергает наценку ниже минимальной для категории
func (v *PricingValidator) ValidatePercent(cost, percent decimal.Decimal, category string) error {
	minPercent := v.policy.MinimumFor(category)
	if percent.LessThan(minPercent) {
		return &utils.MarginViolation{
			Cost:       cost,
			Selling:    PriceForPercent(cost, percent),
			MinSelling: PriceForPercent(cost, minPercent),
			MinPercent: minPercent,
		}
	}
	return nil
}

// PriceForPercent = cost * (1 + percent/100), без округления
func PriceForPercent(cost, percent decimal.Decimal) decimal.Decimal {
	return cost.Add(cost.Mul(percent).Div(hundred))
}

// MarginPercent = (selling - cost) / cost * 100. Для нулевой себестоимости возвращает ноль.
func MarginPercent(cost, selling decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return selling.Sub(cost).Mul(hundred).Div(cost)
}
