// Package clickhouse implements the columnar event store. Whole days are
// served from the events_daily rollup and the ragged window edges are read
// from the raw events table, with the partial results stitched in memory.
package clickhouse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/smallbiznis/tarifa/internal/config"
	domain "github.com/smallbiznis/tarifa/internal/event/domain"
)

const (
	eventsTable = "events"
	dailyTable  = "events_daily"
)

type Store struct {
	conn   driver.Conn
	logger *zap.Logger
}

// Open dials the ClickHouse cluster from configuration.
func Open(cfg config.Config, logger *zap.Logger) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, domain.WrapErr("clickhouse", err)
	}
	return NewStore(conn, logger), nil
}

func NewStore(conn driver.Conn, logger *zap.Logger) *Store {
	return &Store{conn: conn, logger: logger.Named("eventstore.clickhouse")}
}

func (s *Store) Name() string { return "clickhouse" }

// canUseRollup reports whether the daily buckets can serve the query. The
// rollup carries no dimension columns, so any filtering or grouping falls
// back to the raw table.
func canUseRollup(scope domain.Scope, op domain.AggregateOp) bool {
	if op == domain.OpLatest {
		return false
	}
	return len(scope.GroupBy) == 0 && len(scope.Filters) == 0 && len(scope.ExcludeFilters) == 0
}

func (s *Store) Aggregate(ctx context.Context, scope domain.Scope, window domain.Window, op domain.AggregateOp) ([]domain.AggregateRow, error) {
	if op == domain.OpLatest {
		query, args := latestQuery(eventsTable, scope, window)
		return s.queryRows(ctx, scope, query, args)
	}

	if !canUseRollup(scope, op) {
		query, args := aggregateQuery(eventsTable, scope, &window, op)
		return s.queryRows(ctx, scope, query, args)
	}

	head, days, tail := splitWindow(window)
	if days.empty() {
		query, args := aggregateQuery(eventsTable, scope, &window, op)
		return s.queryRows(ctx, scope, query, args)
	}

	parts := make([][]domain.AggregateRow, 0, 3)

	if !emptyWindow(head) {
		query, args := aggregateQuery(eventsTable, scope, &head, op)
		rows, err := s.queryRows(ctx, scope, query, args)
		if err != nil {
			return nil, err
		}
		parts = append(parts, rows)
	}

	query, args := bucketQuery(dailyTable, scope, days, op)
	rows, err := s.queryRows(ctx, scope, query, args)
	if err != nil {
		return nil, err
	}
	parts = append(parts, rows)

	if !emptyWindow(tail) {
		query, args := aggregateQuery(eventsTable, scope, &tail, op)
		rows, err := s.queryRows(ctx, scope, query, args)
		if err != nil {
			return nil, err
		}
		parts = append(parts, rows)
	}

	return mergeRows(op, parts...), nil
}

func (s *Store) SumBefore(ctx context.Context, scope domain.Scope, before time.Time) ([]domain.AggregateRow, error) {
	query, args := sumBeforeQuery(eventsTable, scope, before)
	return s.queryRows(ctx, scope, query, args)
}

func (s *Store) ListOrdered(ctx context.Context, scope domain.Scope, window domain.Window) ([]domain.Event, error) {
	query, args := listQuery(eventsTable, scope, window)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			id         int64
			txID       string
			orgID      int64
			subID      string
			code       string
			ts         time.Time
			properties string
		)
		if err := rows.Scan(&id, &txID, &orgID, &subID, &code, &ts, &properties); err != nil {
			return nil, domain.WrapErr(s.Name(), err)
		}

		event := domain.Event{
			ID:                     snowflake.ID(id),
			TransactionID:          txID,
			OrgID:                  snowflake.ID(orgID),
			ExternalSubscriptionID: subID,
			Code:                   code,
			Timestamp:              ts,
		}
		if properties != "" {
			var props datatypes.JSONMap
			if err := json.Unmarshal([]byte(properties), &props); err == nil {
				event.Properties = props
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}
	return events, nil
}

func (s *Store) queryRows(ctx context.Context, scope domain.Scope, query string, args []any) ([]domain.AggregateRow, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}
	defer rows.Close()

	var out []domain.AggregateRow
	for rows.Next() {
		dims := make([]string, len(scope.GroupBy))
		dest := make([]any, 0, len(dims)+3)
		for i := range dims {
			dest = append(dest, &dims[i])
		}

		var value float64
		var count, invalid uint64
		dest = append(dest, &value, &count, &invalid)

		if err := rows.Scan(dest...); err != nil {
			return nil, domain.WrapErr(s.Name(), err)
		}

		row := domain.AggregateRow{
			Value:        decimal.NewFromFloat(value),
			Count:        int64(count),
			InvalidCount: int64(invalid),
		}
		if len(scope.GroupBy) > 0 {
			values := make(map[string]string, len(scope.GroupBy))
			for i, dim := range scope.GroupBy {
				values[dim] = dims[i]
			}
			row.Group = domain.NewGroupKey(values)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapErr(s.Name(), err)
	}
	return out, nil
}
