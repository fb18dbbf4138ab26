package strategy

import (
	"context"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// Latest bills the most recent valid value of the metric's field. Negative
// readings clamp to zero through normalization.
type Latest struct{}

func (Latest) Name() string { return "latest" }

func (Latest) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	if err := requireField(req.Metric); err != nil {
		return nil, err
	}

	rows, err := store.Aggregate(ctx, req.Scope, req.activeWindow(), eventdomain.OpLatest)
	if err != nil {
		return nil, err
	}
	return resultFromRows(req.Metric, rows, eventdomain.OpLatest), nil
}
