// Package massbalance implements the pure arithmetic used to balance metal
// mass across a reaction: gold content of outputs, distillate derivation,
// and quotation-based costing. Functions here never touch persistence.
package massbalance

import (
	"github.com/shopspring/decimal"

	"metalcore/pkg/domain"
)

// GoldInProduct returns the pure metal mass contained in the finished
// product: output grams scaled by the product's gold fraction.
func GoldInProduct(outputProductGrams, goldFraction decimal.Decimal) decimal.Decimal {
	return outputProductGrams.Mul(goldFraction)
}

// DistillateLeftover derives the distillate mass that balances the reaction:
// whatever input gold is not in the product or the basket. Negative balances
// clamp to zero; the consistency check flags them separately.
func DistillateLeftover(inputGoldGrams, goldInProduct, basketLeftoverGrams decimal.Decimal) decimal.Decimal {
	remaining := inputGoldGrams.Sub(goldInProduct).Sub(basketLeftoverGrams)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// CheckConsistency rejects completion submissions whose declared outputs
// exceed the input gold beyond tolerance. The excess is never clamped away;
// the caller must surface the error to the submitter.
func CheckConsistency(inputGoldGrams, goldInProduct, basketLeftoverGrams decimal.Decimal) error {
	excess := goldInProduct.Add(basketLeftoverGrams).Sub(inputGoldGrams)
	if excess.GreaterThan(domain.MassTolerance) {
		return domain.WrapValidation(
			"declared outputs exceed input gold by " + excess.String() + "g")
	}
	return nil
}

// TotalCost prices the consumed input gold at the quotation buy price.
func TotalCost(inputGoldGrams, buyPrice decimal.Decimal) decimal.Decimal {
	return inputGoldGrams.Mul(buyPrice)
}

// CostPerGram spreads the total input cost over the produced grams, rounded
// to cents. When no gold reached the product the cost per gram is zero.
func CostPerGram(totalCost, outputProductGrams, goldInProduct decimal.Decimal) decimal.Decimal {
	if !goldInProduct.IsPositive() || !outputProductGrams.IsPositive() {
		return decimal.Zero
	}
	return totalCost.Div(outputProductGrams).Round(2)
}

// StockQuantity converts produced grams into the product's stock unit.
func StockQuantity(grams decimal.Decimal, unit domain.StockUnit) decimal.Decimal {
	if unit == domain.StockUnitKilograms {
		return grams.Div(decimal.NewFromInt(1000))
	}
	return grams
}

// Conserved reports whether input mass equals the sum of outputs within
// tolerance. Used by invariant rules and the offline verifier.
func Conserved(inputGoldGrams, goldInProduct, basketLeftoverGrams, distillateGrams decimal.Decimal) bool {
	diff := inputGoldGrams.Sub(goldInProduct).Sub(basketLeftoverGrams).Sub(distillateGrams).Abs()
	return diff.LessThanOrEqual(domain.MassTolerance)
}
