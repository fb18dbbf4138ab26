package pricing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Tier is one price bracket of a graduated or volume range set. Ranges are
// inclusive of ToValue; the final tier of a set has a nil ToValue.
type Tier struct {
	FromValue     decimal.Decimal
	ToValue       *decimal.Decimal
	PerUnitAmount decimal.Decimal
	FlatAmount    decimal.Decimal
}

// Properties is the decoded model-specific configuration of a charge.
type Properties struct {
	Amount                       decimal.Decimal
	PackageSize                  decimal.Decimal
	FreeUnits                    decimal.Decimal
	GraduatedRanges              []Tier
	VolumeRanges                 []Tier
	Rate                         decimal.Decimal
	FixedAmount                  decimal.Decimal
	FreeUnitsPerEvents           int64
	FreeUnitsPerTotalAggregation decimal.Decimal
}

// Decode parses the raw charge properties. Tiered range sets are validated
// for contiguity as part of decoding so a malformed configuration fails
// before any amount is computed.
func Decode(raw datatypes.JSONMap) (Properties, error) {
	var props Properties
	var err error

	if props.Amount, err = decodeDecimal(raw, "amount"); err != nil {
		return Properties{}, err
	}
	if props.PackageSize, err = decodeDecimal(raw, "package_size"); err != nil {
		return Properties{}, err
	}
	if props.FreeUnits, err = decodeDecimal(raw, "free_units"); err != nil {
		return Properties{}, err
	}
	if props.Rate, err = decodeDecimal(raw, "rate"); err != nil {
		return Properties{}, err
	}
	if props.FixedAmount, err = decodeDecimal(raw, "fixed_amount"); err != nil {
		return Properties{}, err
	}
	if props.FreeUnitsPerTotalAggregation, err = decodeDecimal(raw, "free_units_per_total_aggregation"); err != nil {
		return Properties{}, err
	}

	perEvents, err := decodeDecimal(raw, "free_units_per_events")
	if err != nil {
		return Properties{}, err
	}
	props.FreeUnitsPerEvents = perEvents.IntPart()

	if props.GraduatedRanges, err = decodeTiers(raw, "graduated_ranges"); err != nil {
		return Properties{}, err
	}
	if props.VolumeRanges, err = decodeTiers(raw, "volume_ranges"); err != nil {
		return Properties{}, err
	}

	return props, nil
}

func decodeDecimal(raw datatypes.JSONMap, key string) (decimal.Decimal, error) {
	value, ok := raw[key]
	if !ok || value == nil {
		return decimal.Zero, nil
	}

	switch typed := value.(type) {
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(typed))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidProperties, key, typed)
		}
		return parsed, nil
	case json.Number:
		// JSONMap columns decode numbers with UseNumber, so values read
		// back from the database arrive here rather than as float64.
		parsed, err := decimal.NewFromString(typed.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidProperties, key, typed)
		}
		return parsed, nil
	case float64:
		return decimal.NewFromFloat(typed), nil
	case int:
		return decimal.NewFromInt(int64(typed)), nil
	case int64:
		return decimal.NewFromInt(typed), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidProperties, key, value)
	}
}

func decodeTiers(raw datatypes.JSONMap, key string) ([]Tier, error) {
	value, ok := raw[key]
	if !ok || value == nil {
		return nil, nil
	}

	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", ErrInvalidProperties, key)
	}

	tiers := make([]Tier, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is not an object", ErrInvalidProperties, key, i)
		}

		tier := Tier{}
		var err error
		if tier.FromValue, err = decodeDecimal(datatypes.JSONMap(entry), "from_value"); err != nil {
			return nil, err
		}
		if tier.PerUnitAmount, err = decodeDecimal(datatypes.JSONMap(entry), "per_unit_amount"); err != nil {
			return nil, err
		}
		if tier.FlatAmount, err = decodeDecimal(datatypes.JSONMap(entry), "flat_amount"); err != nil {
			return nil, err
		}
		if to, present := entry["to_value"]; present && to != nil {
			bound, err := decodeDecimal(datatypes.JSONMap(entry), "to_value")
			if err != nil {
				return nil, err
			}
			tier.ToValue = &bound
		}

		tiers = append(tiers, tier)
	}

	if err := validateTiers(key, tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

// validateTiers enforces the range-set shape: the first tier starts at
// zero, consecutive tiers are contiguous, and exactly the last tier is
// unbounded.
func validateTiers(key string, tiers []Tier) error {
	if len(tiers) == 0 {
		return nil
	}

	if !tiers[0].FromValue.IsZero() {
		return fmt.Errorf("%w: %s must start at 0", ErrInvalidProperties, key)
	}

	one := decimal.NewFromInt(1)
	for i, tier := range tiers {
		last := i == len(tiers)-1
		if last {
			if tier.ToValue != nil {
				return fmt.Errorf("%w: %s final tier must be unbounded", ErrInvalidProperties, key)
			}
			continue
		}
		if tier.ToValue == nil {
			return fmt.Errorf("%w: %s tier %d must be bounded", ErrInvalidProperties, key, i)
		}
		if tier.ToValue.LessThan(tier.FromValue) {
			return fmt.Errorf("%w: %s tier %d is inverted", ErrInvalidProperties, key, i)
		}
		if !tiers[i+1].FromValue.Equal(tier.ToValue.Add(one)) {
			return fmt.Errorf("%w: %s tiers %d and %d are not contiguous", ErrInvalidProperties, key, i, i+1)
		}
	}

	return nil
}
