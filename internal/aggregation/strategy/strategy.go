// Package strategy implements one aggregation algorithm per aggregation
// type. Strategies are stateless: all inputs arrive in the request and all
// backend access goes through the event store handed to them.
package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// Request carries one aggregation call. Scope already reflects the charge
// filter being computed, including exclusions for the default scope.
type Request struct {
	Metric       metricdomain.BillableMetric
	Scope        eventdomain.Scope
	Boundaries   aggregationdomain.Boundaries
	CurrentUsage bool
}

// Strategy reduces a window of events to a normalized result.
type Strategy interface {
	Name() string
	Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error)
}

func (r Request) window() eventdomain.Window {
	return eventdomain.Window{From: r.Boundaries.From, To: r.Boundaries.To}
}

// activeWindow clips the billing window to the charge's active sub-window
// for strategies that must not see events outside the subscription's life.
func (r Request) activeWindow() eventdomain.Window {
	from, to := r.Boundaries.ActiveWindow()
	return eventdomain.Window{From: from, To: to}
}

// resultFromRows folds pushed-down aggregate rows into a result, applying
// the metric's rounding to the total. Grouped max keeps the largest group
// value as the total; every other operation sums across groups.
func resultFromRows(metric metricdomain.BillableMetric, rows []eventdomain.AggregateRow, op eventdomain.AggregateOp) *aggregationdomain.Result {
	result := aggregationdomain.NewZeroResult()

	total := decimal.Zero
	for _, row := range rows {
		if op == eventdomain.OpMax {
			if row.Value.GreaterThan(total) {
				total = row.Value
			}
		} else {
			total = total.Add(row.Value)
		}
		result.Count += row.Count
		result.InvalidCount += row.InvalidCount

		if !row.Group.IsZero() {
			if result.GroupedBy == nil {
				result.GroupedBy = make(map[string]decimal.Decimal)
			}
			result.GroupedBy[row.Group.String()] = metric.ApplyRounding(row.Value)
		}
	}

	result.Aggregation = metric.ApplyRounding(total)
	result.CurrentUsageUnits = result.Aggregation
	return result.Normalize()
}

func requireField(metric metricdomain.BillableMetric) error {
	if metric.AggregationType.RequiresField() && metric.FieldName == "" {
		return aggregationdomain.ErrMissingFieldName
	}
	return nil
}
