package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/proration"
)

// ProratedSum weights each event's value by its remaining coverage of the
// billing period: a seat added mid-month bills for the days it existed.
// FullUnitsNumber keeps the un-weighted sum for bracket lookups. Recurring
// metrics carry the pre-period balance at full active-window weight.
type ProratedSum struct{}

func (ProratedSum) Name() string { return "prorated_sum" }

func (ProratedSum) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	if err := requireField(req.Metric); err != nil {
		return nil, err
	}

	events, err := store.ListOrdered(ctx, req.Scope, req.activeWindow())
	if err != nil {
		return nil, err
	}

	result := aggregationdomain.NewZeroResult()
	full := decimal.Zero
	prorated := decimal.Zero

	if req.Metric.Recurring {
		seed, err := store.SumBefore(ctx, req.Scope, req.Boundaries.From)
		if err != nil {
			return nil, err
		}
		carried := decimal.Zero
		for _, row := range seed {
			carried = carried.Add(row.Value)
		}
		full = full.Add(carried)
		prorated = prorated.Add(carried.Mul(proration.Fraction(req.Boundaries)))
	}

	for _, event := range events {
		result.Count++

		value, ok := event.PropertyDecimal(req.Metric.FieldName)
		if !ok {
			result.InvalidCount++
			continue
		}

		full = full.Add(value)
		prorated = prorated.Add(value.Mul(proration.EventWeight(req.Boundaries, event.Timestamp)))
	}

	result.Aggregation = req.Metric.ApplyRounding(prorated)
	result.CurrentUsageUnits = result.Aggregation
	result.FullUnitsNumber = req.Metric.ApplyRounding(full)
	return result.Normalize(), nil
}
