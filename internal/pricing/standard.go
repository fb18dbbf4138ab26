package pricing

// applyStandard is a plain per-unit multiplication. For prorated charges
// the amount is derived from the full unit count scaled by the period
// fraction rather than from the pre-weighted units, which keeps a single
// rounding step.
func applyStandard(props Properties, in Input) (Fee, error) {
	fraction := in.fraction()

	units := in.Units
	amount := in.Units.Mul(props.Amount)
	if !fraction.Equal(one) {
		amount = in.FullUnits.Mul(props.Amount).Mul(fraction)
	}

	fee := newFee(units, amount, nil)
	fee.UnitAmount = props.Amount
	return fee, nil
}
