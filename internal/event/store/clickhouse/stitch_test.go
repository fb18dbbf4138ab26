package clickhouse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/smallbiznis/tarifa/internal/event/domain"
)

func TestSplitWindow_RaggedEdges(t *testing.T) {
	head, days, tail := splitWindow(domain.Window{
		From: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC),
		To:   time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC), head.From)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), head.To)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), days.from)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), days.to)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), tail.From)
	assert.Equal(t, time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC), tail.To)
}

func TestSplitWindow_DayAligned(t *testing.T) {
	head, days, tail := splitWindow(domain.Window{
		From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.True(t, emptyWindow(head))
	assert.True(t, emptyWindow(tail))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), days.from)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), days.to)
}

func TestSplitWindow_SubDay(t *testing.T) {
	window := domain.Window{
		From: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC),
	}

	head, days, tail := splitWindow(window)
	assert.Equal(t, window, head)
	assert.True(t, days.empty())
	assert.True(t, emptyWindow(tail))
}

func TestMergeRows_SumAddsAcrossParts(t *testing.T) {
	merged := mergeRows(domain.OpSum,
		[]domain.AggregateRow{{Value: decimal.NewFromInt(3), Count: 2}},
		[]domain.AggregateRow{{Value: decimal.NewFromInt(10), Count: 5, InvalidCount: 1}},
		[]domain.AggregateRow{{Value: decimal.NewFromInt(4), Count: 1}},
	)

	require.Len(t, merged, 1)
	assert.True(t, decimal.NewFromInt(17).Equal(merged[0].Value))
	assert.EqualValues(t, 8, merged[0].Count)
	assert.EqualValues(t, 1, merged[0].InvalidCount)
}

func TestMergeRows_MaxTakesLargest(t *testing.T) {
	merged := mergeRows(domain.OpMax,
		[]domain.AggregateRow{{Value: decimal.NewFromInt(3), Count: 2}},
		[]domain.AggregateRow{{Value: decimal.NewFromInt(12), Count: 5}},
		[]domain.AggregateRow{{Value: decimal.NewFromInt(7), Count: 1}},
	)

	require.Len(t, merged, 1)
	assert.True(t, decimal.NewFromInt(12).Equal(merged[0].Value))
	assert.EqualValues(t, 8, merged[0].Count)
}

func TestMergeRows_KeepsGroupsApart(t *testing.T) {
	eu := domain.NewGroupKey(map[string]string{"region": "eu"})
	us := domain.NewGroupKey(map[string]string{"region": "us"})

	merged := mergeRows(domain.OpSum,
		[]domain.AggregateRow{{Group: eu, Value: decimal.NewFromInt(1), Count: 1}},
		[]domain.AggregateRow{
			{Group: eu, Value: decimal.NewFromInt(2), Count: 1},
			{Group: us, Value: decimal.NewFromInt(5), Count: 1},
		},
	)

	require.Len(t, merged, 2)
	byGroup := map[domain.GroupKey]domain.AggregateRow{}
	for _, row := range merged {
		byGroup[row.Group] = row
	}
	assert.True(t, decimal.NewFromInt(3).Equal(byGroup[eu].Value))
	assert.True(t, decimal.NewFromInt(5).Equal(byGroup[us].Value))
}

// Stitching whole-day buckets with raw edges must match aggregating the
// raw rows in one pass.
func TestMergeRows_EquivalentToSinglePass(t *testing.T) {
	head := []domain.AggregateRow{{Value: decimal.RequireFromString("2.5"), Count: 3}}
	buckets := []domain.AggregateRow{{Value: decimal.RequireFromString("41"), Count: 20, InvalidCount: 2}}
	tail := []domain.AggregateRow{{Value: decimal.RequireFromString("6.5"), Count: 4}}

	merged := mergeRows(domain.OpSum, head, buckets, tail)
	require.Len(t, merged, 1)
	assert.True(t, decimal.NewFromInt(50).Equal(merged[0].Value))
	assert.EqualValues(t, 27, merged[0].Count)
	assert.EqualValues(t, 2, merged[0].InvalidCount)
}
