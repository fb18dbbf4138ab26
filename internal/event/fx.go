package event

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/tarifa/internal/config"
	"github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/event/service"
	"github.com/smallbiznis/tarifa/internal/event/store/clickhouse"
	"github.com/smallbiznis/tarifa/internal/event/store/postgres"
)

var Module = fx.Module("event",
	fx.Provide(
		NewStore,
		service.NewService,
	),
)

// NewStore selects the aggregation backend. The row store shares the primary
// database; ClickHouse opens its own connection.
func NewStore(cfg config.Config, db *gorm.DB, logger *zap.Logger) (domain.Store, error) {
	switch cfg.EventStore {
	case "", "postgres":
		return postgres.NewStore(db), nil
	case "clickhouse":
		return clickhouse.Open(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported event store %q", cfg.EventStore)
	}
}
