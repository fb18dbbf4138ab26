package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// applyGraduated consumes units tier by tier from the lowest bracket
// upward. Every touched tier contributes its flat amount; at zero units
// only the first tier's flat amount applies.
func applyGraduated(props Properties, in Input) (Fee, error) {
	if len(props.GraduatedRanges) == 0 {
		return Fee{}, fmt.Errorf("%w: graduated_ranges is empty", ErrInvalidProperties)
	}

	breakdown := make([]Band, 0, len(props.GraduatedRanges))
	total := decimal.Zero

	for i, tier := range props.GraduatedRanges {
		consumed := tierConsumption(tier, in.Units)
		touched := consumed.IsPositive() || i == 0
		if !touched {
			break
		}

		amount := consumed.Mul(tier.PerUnitAmount).Add(tier.FlatAmount)
		total = total.Add(amount)
		breakdown = append(breakdown, Band{
			FromValue:     tier.FromValue,
			ToValue:       tier.ToValue,
			Units:         consumed,
			PerUnitAmount: tier.PerUnitAmount,
			FlatAmount:    tier.FlatAmount,
			Amount:        amount,
		})
	}

	return newFee(in.Units, total, breakdown), nil
}

// tierConsumption returns how many of the billed units fall inside the
// tier. A bracket [from, to] holds to-from+1 countable units except the
// first, whose lower bound is zero; units equal to to_value stay in the
// lower tier.
func tierConsumption(tier Tier, units decimal.Decimal) decimal.Decimal {
	base := tierBase(tier)
	if units.LessThanOrEqual(base) {
		return decimal.Zero
	}

	top := units
	if tier.ToValue != nil && tier.ToValue.LessThan(top) {
		top = *tier.ToValue
	}
	return top.Sub(base)
}

func tierBase(tier Tier) decimal.Decimal {
	if tier.FromValue.IsZero() {
		return decimal.Zero
	}
	return tier.FromValue.Sub(one)
}
