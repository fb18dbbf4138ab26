package strategy

import (
	"fmt"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	chargedomain "github.com/smallbiznis/tarifa/internal/charge/domain"
	"github.com/smallbiznis/tarifa/internal/expression"
)

// Factory selects the strategy for a metric and charge combination. The
// selection happens once per rating call so strategies stay stateless.
type Factory struct {
	evaluator expression.Evaluator
}

func NewFactory(evaluator expression.Evaluator) *Factory {
	return &Factory{evaluator: evaluator}
}

// For resolves the strategy. Point-in-time aggregations cannot settle a
// pay-in-advance charge after the fact, so requesting them outside current
// usage is a configuration error, distinct from an empty window.
func (f *Factory) For(metric metricdomain.BillableMetric, charge chargedomain.Charge, currentUsage bool) (Strategy, error) {
	if charge.PayInAdvance && !currentUsage {
		switch metric.AggregationType {
		case metricdomain.AggregationLatest, metricdomain.AggregationMax, metricdomain.AggregationWeightedSum:
			return nil, fmt.Errorf("%w: %s with pay_in_advance", aggregationdomain.ErrUnsupportedCombination, metric.AggregationType)
		}
	}

	if charge.Prorated {
		switch metric.AggregationType {
		case metricdomain.AggregationSum:
			return ProratedSum{}, nil
		case metricdomain.AggregationUniqueCount:
			return ProratedUniqueCount{}, nil
		}
		// Other types prorate at the pricing step via the period fraction.
	}

	switch metric.AggregationType {
	case metricdomain.AggregationCount:
		return Count{}, nil
	case metricdomain.AggregationSum:
		return Sum{}, nil
	case metricdomain.AggregationMax:
		return Max{}, nil
	case metricdomain.AggregationLatest:
		return Latest{}, nil
	case metricdomain.AggregationUniqueCount:
		return UniqueCount{}, nil
	case metricdomain.AggregationWeightedSum:
		return WeightedSum{}, nil
	case metricdomain.AggregationCustom:
		if metric.Expression == "" {
			return nil, fmt.Errorf("%w: empty expression", aggregationdomain.ErrInvalidExpression)
		}
		return Custom{Evaluator: f.evaluator}, nil
	default:
		return nil, fmt.Errorf("%w: %s", aggregationdomain.ErrUnknownAggregation, metric.AggregationType)
	}
}
