package strategy

import (
	"context"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// Max bills the maximum observed value of the metric's field.
type Max struct{}

func (Max) Name() string { return "max" }

func (Max) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	if err := requireField(req.Metric); err != nil {
		return nil, err
	}

	rows, err := store.Aggregate(ctx, req.Scope, req.activeWindow(), eventdomain.OpMax)
	if err != nil {
		return nil, err
	}
	return resultFromRows(req.Metric, rows, eventdomain.OpMax), nil
}
