package cloudmetrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/tarifa/internal/config"
	subscriptiondomain "github.com/smallbiznis/tarifa/internal/subscription/domain"
)

var registerOnce sync.Once

// Register wires the prometheus recorder. Failures in metric emission never
// block metering or rating.
func Register(cfg config.Config, registry *prometheus.Registry) {
	if !cfg.Metrics.Enabled {
		return
	}
	registerOnce.Do(func() {
		setRecorder(&recorder{metrics: newMetrics(registry)})
	})
}

var Module = fx.Module("cloud.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Invoke(Register),
	fx.Invoke(RegisterInstrumentation),
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger, db *gorm.DB) {
		if !cfg.Metrics.Enabled {
			return
		}
		if logger == nil {
			logger = zap.NewNop()
		}

		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("starting subscription gauge worker")
				go func() {
					ticker := time.NewTicker(5 * time.Minute)
					defer ticker.Stop()
					for {
						refreshSubscriptionGauge(ctx, db, logger)
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
						}
					}
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)

func refreshSubscriptionGauge(ctx context.Context, db *gorm.DB, logger *zap.Logger) {
	type orgCount struct {
		OrgID int64
		Total int64
	}

	var counts []orgCount
	err := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Select("org_id, COUNT(*) AS total").
		Where("status = ?", subscriptiondomain.StatusActive).
		Group("org_id").
		Scan(&counts).Error
	if err != nil {
		logger.Warn("subscription gauge refresh failed", zap.Error(err))
		return
	}

	for _, c := range counts {
		UpdateActiveSubscriptions(strconv.FormatInt(c.OrgID, 10), int(c.Total))
	}
}
