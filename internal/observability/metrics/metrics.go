package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Recorder exposes billing engine instruments.
type Recorder struct {
	aggregationRuns   metric.Int64Counter
	aggregationErrors metric.Int64Counter
	ratingRuns        metric.Int64Counter
	ratingErrors      metric.Int64Counter
	ratingDuration    metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// NewRecorder configures the billing engine instruments.
func NewRecorder(cfg Config, provider metric.MeterProvider) (*Recorder, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tarifa"
	}
	meter := provider.Meter(name)

	aggregationRuns, err := meter.Int64Counter("tarifa_aggregation_runs_total")
	if err != nil {
		return nil, err
	}
	aggregationErrors, err := meter.Int64Counter("tarifa_aggregation_errors_total")
	if err != nil {
		return nil, err
	}
	ratingRuns, err := meter.Int64Counter("tarifa_rating_runs_total")
	if err != nil {
		return nil, err
	}
	ratingErrors, err := meter.Int64Counter("tarifa_rating_errors_total")
	if err != nil {
		return nil, err
	}
	ratingDuration, err := meter.Float64Histogram("tarifa_rating_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Recorder{
		aggregationRuns:   aggregationRuns,
		aggregationErrors: aggregationErrors,
		ratingRuns:        ratingRuns,
		ratingErrors:      ratingErrors,
		ratingDuration:    ratingDuration,
	}, nil
}

// AggregationCompleted increments successful aggregation counts.
func (r *Recorder) AggregationCompleted(store, strategy string) {
	if r == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("store", strings.TrimSpace(store)),
		attribute.String("strategy", strings.TrimSpace(strategy)),
	)
	r.aggregationRuns.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// AggregationFailed increments failed aggregation counts by error kind.
func (r *Recorder) AggregationFailed(store, strategy string, kind aggregationdomain.ErrorKind) {
	if r == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("store", strings.TrimSpace(store)),
		attribute.String("strategy", strings.TrimSpace(strategy)),
		attribute.String("error_kind", string(kind)),
	)
	r.aggregationErrors.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RatingRunCompleted records a finished rating run and its duration.
func (r *Recorder) RatingRunCompleted(d time.Duration) {
	if r == nil {
		return
	}
	ctx := context.Background()
	r.ratingRuns.Add(ctx, 1)
	r.ratingDuration.Record(ctx, d.Seconds())
}

// RatingRunFailed increments failed rating run counts by error kind.
func (r *Recorder) RatingRunFailed(kind aggregationdomain.ErrorKind) {
	if r == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("error_kind", string(kind)))
	r.ratingErrors.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"store":      {},
	"strategy":   {},
	"error_kind": {},
	"metric":     {},
	"source":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
