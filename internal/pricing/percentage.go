package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// applyPercentage takes a rate over the aggregated base plus an optional
// fixed amount per event. Free allowances shrink the taxable base before
// the rate applies: free_units_per_events waives the fixed amount (and
// an even share of the base) for the first N events, while
// free_units_per_total_aggregation subtracts from the base directly.
func applyPercentage(props Properties, in Input) (Fee, error) {
	base := in.Units
	billableEvents := in.EventsCount

	if props.FreeUnitsPerEvents > 0 && in.EventsCount > 0 {
		freeEvents := props.FreeUnitsPerEvents
		if freeEvents > in.EventsCount {
			freeEvents = in.EventsCount
		}
		billableEvents = in.EventsCount - freeEvents

		perEvent := base.Div(decimal.NewFromInt(in.EventsCount))
		base = base.Sub(perEvent.Mul(decimal.NewFromInt(freeEvents)))
	}

	base = base.Sub(props.FreeUnitsPerTotalAggregation)
	if base.IsNegative() {
		base = decimal.Zero
	}

	amount := base.Mul(props.Rate).Div(hundred)
	amount = amount.Add(props.FixedAmount.Mul(decimal.NewFromInt(billableEvents)))

	return newFee(in.Units, amount, nil), nil
}
