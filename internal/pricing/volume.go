package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// applyVolume prices the entire quantity at the single tier containing
// it. Bracket lookup uses the full, un-prorated unit count so a partial
// period cannot demote the subscription into a cheaper tier; the final
// amount is then scaled by the prorated fraction.
func applyVolume(props Properties, in Input) (Fee, error) {
	if len(props.VolumeRanges) == 0 {
		return Fee{}, fmt.Errorf("%w: volume_ranges is empty", ErrInvalidProperties)
	}

	tier := volumeTier(props.VolumeRanges, in.FullUnits)
	amount := in.FullUnits.Mul(tier.PerUnitAmount).Add(tier.FlatAmount).Mul(in.fraction())

	fee := newFee(in.Units, amount, []Band{{
		FromValue:     tier.FromValue,
		ToValue:       tier.ToValue,
		Units:         in.FullUnits,
		PerUnitAmount: tier.PerUnitAmount,
		FlatAmount:    tier.FlatAmount,
		Amount:        amount,
	}})
	return fee, nil
}

// volumeTier returns the bracket whose inclusive range contains units.
// Units sitting exactly on a to_value belong to that lower tier.
func volumeTier(tiers []Tier, units decimal.Decimal) Tier {
	for _, tier := range tiers {
		if tier.ToValue == nil || units.LessThanOrEqual(*tier.ToValue) {
			return tier
		}
	}
	return tiers[len(tiers)-1]
}
