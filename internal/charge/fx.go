package charge

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/tarifa/internal/charge/service"
)

var Module = fx.Module("charge.service",
	fx.Provide(service.NewService),
)
