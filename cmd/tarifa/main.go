package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/tarifa/internal/aggregation"
	"github.com/smallbiznis/tarifa/internal/billablemetric"
	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	"github.com/smallbiznis/tarifa/internal/cache"
	"github.com/smallbiznis/tarifa/internal/charge"
	chargedomain "github.com/smallbiznis/tarifa/internal/charge/domain"
	"github.com/smallbiznis/tarifa/internal/cloudmetrics"
	"github.com/smallbiznis/tarifa/internal/config"
	"github.com/smallbiznis/tarifa/internal/event"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/expression"
	"github.com/smallbiznis/tarifa/internal/logger"
	"github.com/smallbiznis/tarifa/internal/observability"
	"github.com/smallbiznis/tarifa/internal/ratelimit"
	"github.com/smallbiznis/tarifa/internal/rating"
	ratingdomain "github.com/smallbiznis/tarifa/internal/rating/domain"
	"github.com/smallbiznis/tarifa/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/tarifa/internal/subscription/domain"
	"github.com/smallbiznis/tarifa/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(expression.New),
		db.Module,
		cache.Module,
		cloudmetrics.Module,
		ratelimit.Module,

		event.Module,
		aggregation.Module,
		billablemetric.Module,
		charge.Module,
		subscription.Module,
		rating.Module,

		fx.Invoke(ensureServices),
	)
	app.Run()
}

// ensureServices forces eager construction of the engine graph so wiring
// errors surface at startup instead of first use.
func ensureServices(
	_ eventdomain.Service,
	_ metricdomain.Service,
	_ chargedomain.Service,
	_ subscriptiondomain.Service,
	_ ratingdomain.Service,
) {
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
