package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// UniqueCount bills the number of distinct field values present at the end
// of the window. Events carry an operation_type property: add joins a value
// to the set, remove drops it, and redundant operations are no-ops.
type UniqueCount struct{}

func (UniqueCount) Name() string { return "unique_count" }

func (UniqueCount) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	if err := requireField(req.Metric); err != nil {
		return nil, err
	}

	events, err := store.ListOrdered(ctx, req.Scope, req.activeWindow())
	if err != nil {
		return nil, err
	}

	result := aggregationdomain.NewZeroResult()
	type memberKey struct {
		group eventdomain.GroupKey
		value string
	}
	members := make(map[memberKey]bool)

	for _, event := range events {
		result.Count++

		value, ok := event.PropertyString(req.Metric.FieldName)
		if !ok {
			result.InvalidCount++
			continue
		}

		key := memberKey{group: event.GroupKeyFor(req.Scope.GroupBy), value: value}
		switch event.OperationType() {
		case eventdomain.OperationRemove:
			delete(members, key)
		default:
			members[key] = true
		}
	}

	perGroup := make(map[eventdomain.GroupKey]int64)
	for key := range members {
		perGroup[key.group]++
	}

	total := decimal.Zero
	for group, count := range perGroup {
		size := decimal.NewFromInt(count)
		total = total.Add(size)
		if !group.IsZero() {
			if result.GroupedBy == nil {
				result.GroupedBy = make(map[string]decimal.Decimal)
			}
			result.GroupedBy[group.String()] = size
		}
	}

	result.Aggregation = req.Metric.ApplyRounding(total)
	result.CurrentUsageUnits = result.Aggregation
	return result.Normalize(), nil
}
