package strategy

import (
	"context"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// Count bills the number of qualifying events in the window.
type Count struct{}

func (Count) Name() string { return "count" }

func (Count) Aggregate(ctx context.Context, store eventdomain.Store, req Request) (*aggregationdomain.Result, error) {
	rows, err := store.Aggregate(ctx, req.Scope, req.activeWindow(), eventdomain.OpCount)
	if err != nil {
		return nil, err
	}
	return resultFromRows(req.Metric, rows, eventdomain.OpCount), nil
}
