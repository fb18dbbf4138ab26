package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/proration"
)

// ProratedUniqueCount weights each distinct value's membership by the time
// it spent in the set. A value added and removed mid-period bills the slice
// it was present; FullUnitsNumber counts every value seen in the set at any
// point of the window.
type ProratedUniqueCount struct{}

func (ProratedUniqueCount) Name() string { return "prorated_unique_count" }

func (ProratedUniqueCount) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	if err := requireField(req.Metric); err != nil {
		return nil, err
	}

	events, err := store.ListOrdered(ctx, req.Scope, req.activeWindow())
	if err != nil {
		return nil, err
	}

	result := aggregationdomain.NewZeroResult()
	_, activeTo := req.Boundaries.ActiveWindow()

	type membership struct {
		present bool
		since   time.Time
		weight  decimal.Decimal
		seen    bool
	}
	members := make(map[string]*membership)

	for _, event := range events {
		result.Count++

		value, ok := event.PropertyString(req.Metric.FieldName)
		if !ok {
			result.InvalidCount++
			continue
		}

		m := members[value]
		if m == nil {
			m = &membership{weight: decimal.Zero}
			members[value] = m
		}

		switch event.OperationType() {
		case eventdomain.OperationRemove:
			if m.present {
				m.weight = m.weight.Add(proration.IntervalWeight(req.Boundaries, m.since, event.Timestamp))
				m.present = false
			}
		default:
			if !m.present {
				m.present = true
				m.since = event.Timestamp
				m.seen = true
			}
		}
	}

	prorated := decimal.Zero
	full := decimal.Zero
	for _, m := range members {
		if m.present {
			m.weight = m.weight.Add(proration.IntervalWeight(req.Boundaries, m.since, activeTo))
		}
		if m.seen {
			full = full.Add(decimal.NewFromInt(1))
		}
		prorated = prorated.Add(m.weight)
	}

	result.Aggregation = req.Metric.ApplyRounding(prorated)
	result.CurrentUsageUnits = result.Aggregation
	result.FullUnitsNumber = full
	return result.Normalize(), nil
}
