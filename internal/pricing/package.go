package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// applyPackage charges a flat price per started block of package_size
// units, after subtracting the free allowance. The final amount scales
// with the prorated fraction.
func applyPackage(props Properties, in Input) (Fee, error) {
	if !props.PackageSize.IsPositive() {
		return Fee{}, fmt.Errorf("%w: package_size must be positive", ErrInvalidProperties)
	}

	billable := in.Units.Sub(props.FreeUnits)
	if billable.IsNegative() {
		billable = decimal.Zero
	}

	blocks := billable.Div(props.PackageSize).Ceil()
	amount := props.Amount.Mul(blocks).Mul(in.fraction())

	return newFee(in.Units, amount, nil), nil
}
