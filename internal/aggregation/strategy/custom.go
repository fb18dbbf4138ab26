package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/expression"
)

// Custom bills the sum of a user-supplied expression evaluated per event.
// A broken expression is a configuration error; an event the expression
// cannot reduce to a number is excluded and counted as invalid.
type Custom struct {
	Evaluator expression.Evaluator
}

func (Custom) Name() string { return "custom" }

func (s Custom) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	if err := s.Evaluator.Validate(req.Metric.Expression); err != nil {
		return nil, fmt.Errorf("%w: %v", aggregationdomain.ErrInvalidExpression, err)
	}

	events, err := store.ListOrdered(ctx, req.Scope, req.activeWindow())
	if err != nil {
		return nil, err
	}

	result := aggregationdomain.NewZeroResult()
	total := decimal.Zero
	perGroup := make(map[eventdomain.GroupKey]decimal.Decimal)

	for _, event := range events {
		result.Count++

		value, err := s.Evaluator.Evaluate(req.Metric.Expression, event)
		if err != nil {
			if errors.Is(err, expression.ErrNotNumeric) {
				result.InvalidCount++
				continue
			}
			return nil, fmt.Errorf("%w: %v", aggregationdomain.ErrInvalidExpression, err)
		}

		total = total.Add(value)
		if len(req.Scope.GroupBy) > 0 {
			group := event.GroupKeyFor(req.Scope.GroupBy)
			perGroup[group] = perGroup[group].Add(value)
		}
	}

	for group, value := range perGroup {
		if group.IsZero() {
			continue
		}
		if result.GroupedBy == nil {
			result.GroupedBy = make(map[string]decimal.Decimal)
		}
		result.GroupedBy[group.String()] = req.Metric.ApplyRounding(value)
	}

	result.Aggregation = req.Metric.ApplyRounding(total)
	result.CurrentUsageUnits = result.Aggregation
	return result.Normalize(), nil
}
