package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// Sum bills the arithmetic sum of the metric's field over the window.
// Events with a missing or non-numeric field are excluded and counted as
// invalid. Recurring metrics carry the balance accumulated before the
// period into the result.
type Sum struct{}

func (Sum) Name() string { return "sum" }

func (Sum) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	if err := requireField(req.Metric); err != nil {
		return nil, err
	}

	rows, err := store.Aggregate(ctx, req.Scope, req.activeWindow(), eventdomain.OpSum)
	if err != nil {
		return nil, err
	}
	result := resultFromRows(req.Metric, rows, eventdomain.OpSum)

	if req.Metric.Recurring {
		seed, err := store.SumBefore(ctx, req.Scope, req.Boundaries.From)
		if err != nil {
			return nil, err
		}
		carried := decimal.Zero
		for _, row := range seed {
			carried = carried.Add(row.Value)
		}
		result.Aggregation = req.Metric.ApplyRounding(result.Aggregation.Add(carried))
		result.CurrentUsageUnits = result.Aggregation
		result.FullUnitsNumber = result.Aggregation
	}

	return result.Normalize(), nil
}
