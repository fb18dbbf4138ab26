package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	domain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/event/store/postgres"
)

// The stitched read path must agree with a single-pass aggregation over the
// same events. The row store computes each part so the comparison runs the
// real merge logic against real partial results, not synthetic rows.

func equivalenceFixture(t *testing.T) (*postgres.Store, domain.Scope, domain.Window) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Event{}))

	scope := domain.Scope{
		OrgID:                  snowflake.ID(2002),
		ExternalSubscriptionID: "sub_ext_eq",
		Code:                   "api_call",
		FieldName:              "units",
	}

	var nextID snowflake.ID
	seed := func(ts time.Time, props map[string]any) {
		nextID++
		require.NoError(t, db.Create(&domain.Event{
			ID:                     nextID,
			TransactionID:          domain.NewTransactionID(),
			OrgID:                  scope.OrgID,
			ExternalSubscriptionID: scope.ExternalSubscriptionID,
			Code:                   scope.Code,
			Timestamp:              ts,
			Properties:             datatypes.JSONMap(props),
		}).Error)
	}

	day := func(d, h int) time.Time {
		return time.Date(2026, 1, d, h, 0, 0, 0, time.UTC)
	}

	// Ragged head, three whole days, ragged tail.
	seed(day(5, 7), map[string]any{"units": 3.0, "region": "eu"})
	seed(day(5, 23), map[string]any{"units": 9.0, "region": "us"})
	seed(day(6, 1), map[string]any{"units": 5.0, "region": "eu"})
	seed(day(6, 12), map[string]any{"units": "oops", "region": "eu"})
	seed(day(7, 9), map[string]any{"units": 11.0, "region": "us"})
	seed(day(8, 20), map[string]any{"units": 2.0, "region": "eu"})
	seed(day(9, 4), map[string]any{"units": 7.0, "region": "us"})
	seed(day(9, 17), map[string]any{"units": 4.0, "region": "eu"})
	// Outside the window on both edges.
	seed(day(5, 2), map[string]any{"units": 100.0, "region": "eu"})
	seed(day(9, 19), map[string]any{"units": 100.0, "region": "us"})

	window := domain.Window{From: day(5, 6), To: day(9, 18)}
	return postgres.NewStore(db), scope, window
}

func stitchedAggregate(t *testing.T, store *postgres.Store, scope domain.Scope, window domain.Window, op domain.AggregateOp) []domain.AggregateRow {
	t.Helper()
	ctx := context.Background()

	head, days, tail := splitWindow(window)
	require.False(t, days.empty())

	parts := make([][]domain.AggregateRow, 0, 3)
	for _, part := range []domain.Window{head, {From: days.from, To: days.to}, tail} {
		if emptyWindow(part) {
			continue
		}
		rows, err := store.Aggregate(ctx, scope, part, op)
		require.NoError(t, err)
		parts = append(parts, rows)
	}

	return mergeRows(op, parts...)
}

func TestStitchedWindowMatchesSinglePass(t *testing.T) {
	store, scope, window := equivalenceFixture(t)
	ctx := context.Background()

	for _, op := range []domain.AggregateOp{domain.OpCount, domain.OpSum, domain.OpMax} {
		t.Run(string(op), func(t *testing.T) {
			single, err := store.Aggregate(ctx, scope, window, op)
			require.NoError(t, err)
			require.Len(t, single, 1)

			merged := stitchedAggregate(t, store, scope, window, op)
			require.Len(t, merged, 1)

			assert.True(t, merged[0].Value.Equal(single[0].Value),
				"stitched %s vs single %s", merged[0].Value, single[0].Value)
			assert.Equal(t, single[0].Count, merged[0].Count)
			assert.Equal(t, single[0].InvalidCount, merged[0].InvalidCount)
		})
	}
}

func TestStitchedWindowMatchesSinglePassGrouped(t *testing.T) {
	store, scope, window := equivalenceFixture(t)
	ctx := context.Background()
	scope.GroupBy = []string{"region"}

	single, err := store.Aggregate(ctx, scope, window, domain.OpSum)
	require.NoError(t, err)
	require.Len(t, single, 2)

	merged := stitchedAggregate(t, store, scope, window, domain.OpSum)
	require.Len(t, merged, 2)

	want := make(map[domain.GroupKey]domain.AggregateRow, len(single))
	for _, row := range single {
		want[row.Group] = row
	}
	for _, row := range merged {
		expect, ok := want[row.Group]
		require.True(t, ok, "unexpected group %v", row.Group)
		assert.True(t, row.Value.Equal(expect.Value),
			"group %v stitched %s vs single %s", row.Group, row.Value, expect.Value)
		assert.Equal(t, expect.Count, row.Count)
		assert.Equal(t, expect.InvalidCount, row.InvalidCount)
	}
}
