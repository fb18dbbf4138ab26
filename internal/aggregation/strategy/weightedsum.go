package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/proration"
)

// WeightedSum bills the time-weighted average of a running counter. Each
// event's field value is a signed delta; the counter's value between two
// events is weighted by the seconds it was held, against the full billing
// period. Intermediate deltas may drive the counter negative; only the
// final weighted total clamps at zero.
//
// Recurring metrics seed the counter with the balance accumulated before
// the period so a counter raised last month keeps billing this month.
type WeightedSum struct{}

func (WeightedSum) Name() string { return "weighted_sum" }

func (WeightedSum) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	if err := requireField(req.Metric); err != nil {
		return nil, err
	}
	if req.Metric.WeightedInterval != nil && *req.Metric.WeightedInterval != metricdomain.WeightedIntervalSeconds {
		return nil, aggregationdomain.ErrInvalidWeightedInterval
	}

	events, err := store.ListOrdered(ctx, req.Scope, req.activeWindow())
	if err != nil {
		return nil, err
	}

	result := aggregationdomain.NewZeroResult()

	running := decimal.Zero
	if req.Metric.Recurring {
		seed, err := store.SumBefore(ctx, req.Scope, req.Boundaries.From)
		if err != nil {
			return nil, err
		}
		for _, row := range seed {
			running = running.Add(row.Value)
		}
	}

	activeFrom, activeTo := req.Boundaries.ActiveWindow()
	cursor := activeFrom
	weighted := decimal.Zero

	for _, event := range events {
		result.Count++

		delta, ok := event.PropertyDecimal(req.Metric.FieldName)
		if !ok {
			result.InvalidCount++
			continue
		}

		weighted = weighted.Add(running.Mul(proration.IntervalWeight(req.Boundaries, cursor, event.Timestamp)))
		running = running.Add(delta)
		if event.Timestamp.After(cursor) {
			cursor = event.Timestamp
		}
	}

	weighted = weighted.Add(running.Mul(proration.IntervalWeight(req.Boundaries, cursor, activeTo)))

	result.Aggregation = req.Metric.ApplyRounding(weighted)
	result.CurrentUsageUnits = result.Aggregation
	result.FullUnitsNumber = req.Metric.ApplyRounding(running)
	return result.Normalize(), nil
}
