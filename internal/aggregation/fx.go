package aggregation

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/tarifa/internal/aggregation/strategy"
)

var Module = fx.Module("aggregation",
	fx.Provide(strategy.NewFactory),
)
