// Package pricing turns an aggregation result into a monetary amount
// according to a charge's pricing model and its model-specific properties.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	chargedomain "github.com/smallbiznis/tarifa/internal/charge/domain"
)

var (
	ErrUnknownChargeModel = errors.New("unknown_charge_model")
	ErrInvalidProperties  = errors.New("invalid_charge_properties")
)

var one = decimal.NewFromInt(1)

// Input carries the normalized aggregation outcome a pricing model needs.
// Units is the billed quantity (already duration-weighted for prorated
// aggregations), FullUnits the un-weighted quantity used for bracket
// lookups. ProratedFraction is the period coverage in [0,1] and is applied
// only when Prorated is set, so a genuinely zero fraction prices to zero.
type Input struct {
	Units            decimal.Decimal
	FullUnits        decimal.Decimal
	EventsCount      int64
	Prorated         bool
	ProratedFraction decimal.Decimal
}

func (in Input) fraction() decimal.Decimal {
	if !in.Prorated {
		return one
	}
	return in.ProratedFraction
}

// Band is one tier's contribution inside a fee breakdown.
type Band struct {
	FromValue     decimal.Decimal  `json:"from_value"`
	ToValue       *decimal.Decimal `json:"to_value,omitempty"`
	Units         decimal.Decimal  `json:"units"`
	PerUnitAmount decimal.Decimal  `json:"per_unit_amount"`
	FlatAmount    decimal.Decimal  `json:"flat_amount"`
	Amount        decimal.Decimal  `json:"amount"`
}

// Fee is the result of applying a pricing model.
type Fee struct {
	Units      decimal.Decimal `json:"units"`
	Amount     decimal.Decimal `json:"amount"`
	UnitAmount decimal.Decimal `json:"unit_amount"`
	Breakdown  []Band          `json:"breakdown,omitempty"`
}

func newFee(units, amount decimal.Decimal, breakdown []Band) Fee {
	fee := Fee{Units: units, Amount: amount, Breakdown: breakdown}
	if units.IsPositive() {
		fee.UnitAmount = amount.Div(units)
	}
	return fee
}

// Apply prices the input under the given model. Negative unit counts are
// clamped to zero before any model runs.
func Apply(model chargedomain.ChargeModel, raw datatypes.JSONMap, in Input) (Fee, error) {
	props, err := Decode(raw)
	if err != nil {
		return Fee{}, err
	}

	if in.Units.IsNegative() {
		in.Units = decimal.Zero
	}
	if in.FullUnits.IsNegative() {
		in.FullUnits = decimal.Zero
	}
	if in.FullUnits.LessThan(in.Units) {
		in.FullUnits = in.Units
	}

	switch model {
	case chargedomain.ModelStandard:
		return applyStandard(props, in)
	case chargedomain.ModelPackage:
		return applyPackage(props, in)
	case chargedomain.ModelGraduated:
		return applyGraduated(props, in)
	case chargedomain.ModelVolume:
		return applyVolume(props, in)
	case chargedomain.ModelPercentage:
		return applyPercentage(props, in)
	default:
		return Fee{}, fmt.Errorf("%w: %s", ErrUnknownChargeModel, model)
	}
}

// ValidateProperties checks a charge's pricing properties at configuration
// time so malformed charges are rejected before any rating run hits them.
func ValidateProperties(model chargedomain.ChargeModel, raw datatypes.JSONMap) error {
	props, err := Decode(raw)
	if err != nil {
		return err
	}

	switch model {
	case chargedomain.ModelStandard, chargedomain.ModelPercentage:
		return nil
	case chargedomain.ModelPackage:
		if !props.PackageSize.IsPositive() {
			return fmt.Errorf("%w: package_size must be positive", ErrInvalidProperties)
		}
		return nil
	case chargedomain.ModelGraduated:
		if len(props.GraduatedRanges) == 0 {
			return fmt.Errorf("%w: graduated_ranges is required", ErrInvalidProperties)
		}
		return nil
	case chargedomain.ModelVolume:
		if len(props.VolumeRanges) == 0 {
			return fmt.Errorf("%w: volume_ranges is required", ErrInvalidProperties)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownChargeModel, model)
	}
}
