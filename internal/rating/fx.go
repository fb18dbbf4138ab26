package rating

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/tarifa/internal/rating/service"
)

var Module = fx.Module("rating.service",
	fx.Provide(service.NewService),
)
