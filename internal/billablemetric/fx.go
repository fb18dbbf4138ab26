package billablemetric

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/tarifa/internal/billablemetric/service"
)

var Module = fx.Module("billablemetric.service",
	fx.Provide(service.NewService),
)
