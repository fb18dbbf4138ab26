package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	chargedomain "github.com/smallbiznis/tarifa/internal/charge/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/expression"
)

var (
	periodFrom = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	periodTo   = time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
)

func boundaries() aggregationdomain.Boundaries {
	return aggregationdomain.Boundaries{From: periodFrom, To: periodTo, DurationInDays: 30}
}

func metric(agg metricdomain.AggregationType) metricdomain.BillableMetric {
	return metricdomain.BillableMetric{
		Code:            "api_call",
		AggregationType: agg,
		FieldName:       "units",
	}
}

func request(agg metricdomain.AggregationType) Request {
	return Request{
		Metric:     metric(agg),
		Scope:      eventdomain.Scope{Code: "api_call", FieldName: "units"},
		Boundaries: boundaries(),
	}
}

func day(d int) time.Time { return periodFrom.AddDate(0, 0, d) }

func TestCount_EmptyWindowIsZeroNotError(t *testing.T) {
	store := &fakeStore{}

	result, err := Count{}.Aggregate(context.Background(), store, request(metricdomain.AggregationCount))
	require.NoError(t, err)
	assert.True(t, result.Aggregation.IsZero())
	assert.Zero(t, result.Count)
}

func TestSum_InvalidEventsExcludedAndCounted(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(1), map[string]any{"units": 5.0}),
		fakeEvent(day(2), map[string]any{"units": "bad"}),
		fakeEvent(day(3), map[string]any{"units": 2.5}),
	}}

	result, err := Sum{}.Aggregate(context.Background(), store, request(metricdomain.AggregationSum))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("7.5").Equal(result.Aggregation))
	assert.EqualValues(t, 3, result.Count)
	assert.EqualValues(t, 1, result.InvalidCount)
}

func TestSum_RecurringCarriesPriorBalance(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(periodFrom.AddDate(0, -1, 0), map[string]any{"units": 10.0}),
		fakeEvent(day(5), map[string]any{"units": 4.0}),
	}}

	req := request(metricdomain.AggregationSum)
	req.Metric.Recurring = true

	result, err := Sum{}.Aggregate(context.Background(), store, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(14).Equal(result.Aggregation))
}

func TestSum_MissingFieldNameIsConfigurationError(t *testing.T) {
	req := request(metricdomain.AggregationSum)
	req.Metric.FieldName = ""

	_, err := Sum{}.Aggregate(context.Background(), &fakeStore{}, req)
	assert.ErrorIs(t, err, aggregationdomain.ErrMissingFieldName)
	assert.Equal(t, aggregationdomain.ErrorKindConfiguration, aggregationdomain.Classify(err))
}

func TestSum_Rounding(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(1), map[string]any{"units": 1.26}),
	}}

	req := request(metricdomain.AggregationSum)
	ceil := metricdomain.RoundingCeil
	precision := int32(1)
	req.Metric.RoundingFunction = &ceil
	req.Metric.RoundingPrecision = &precision

	result, err := Sum{}.Aggregate(context.Background(), store, req)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.3").Equal(result.Aggregation), result.Aggregation.String())
}

func TestMax(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(1), map[string]any{"units": 7.0}),
		fakeEvent(day(2), map[string]any{"units": 12.0}),
		fakeEvent(day(3), map[string]any{"units": 9.0}),
	}}

	result, err := Max{}.Aggregate(context.Background(), store, request(metricdomain.AggregationMax))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(12).Equal(result.Aggregation))
}

func TestLatest_NegativeClampsToZero(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(1), map[string]any{"units": 5.0}),
		fakeEvent(day(2), map[string]any{"units": -3.0}),
	}}

	result, err := Latest{}.Aggregate(context.Background(), store, request(metricdomain.AggregationLatest))
	require.NoError(t, err)
	assert.True(t, result.Aggregation.IsZero())
}

func TestUniqueCount_AddThenRemoveIsZero(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(1), map[string]any{"units": "A", "operation_type": "add"}),
		fakeEvent(day(2), map[string]any{"units": "A", "operation_type": "add"}),
		fakeEvent(day(3), map[string]any{"units": "A", "operation_type": "remove"}),
	}}

	result, err := UniqueCount{}.Aggregate(context.Background(), store, request(metricdomain.AggregationUniqueCount))
	require.NoError(t, err)
	assert.True(t, result.Aggregation.IsZero())
}

func TestUniqueCount_RemoveBeforeAddIsOne(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(1), map[string]any{"units": "A", "operation_type": "remove"}),
		fakeEvent(day(2), map[string]any{"units": "A", "operation_type": "add"}),
	}}

	result, err := UniqueCount{}.Aggregate(context.Background(), store, request(metricdomain.AggregationUniqueCount))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(result.Aggregation))
}

func TestUniqueCount_DefaultOperationIsAdd(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(1), map[string]any{"units": "A"}),
		fakeEvent(day(2), map[string]any{"units": "B"}),
		fakeEvent(day(3), map[string]any{"units": "A"}),
	}}

	result, err := UniqueCount{}.Aggregate(context.Background(), store, request(metricdomain.AggregationUniqueCount))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(result.Aggregation))
}

func TestWeightedSum_FullPeriodDeltaKeepsFullWeight(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(periodFrom, map[string]any{"units": 10.0}),
	}}

	result, err := WeightedSum{}.Aggregate(context.Background(), store, request(metricdomain.AggregationWeightedSum))
	require.NoError(t, err)

	value, _ := result.Aggregation.Float64()
	assert.InDelta(t, 10.0, value, 0.0001)
	assert.True(t, decimal.NewFromInt(10).Equal(result.FullUnitsNumber))
}

func TestWeightedSum_MidPeriodDeltaWeighsHalf(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(15), map[string]any{"units": 10.0}),
	}}

	result, err := WeightedSum{}.Aggregate(context.Background(), store, request(metricdomain.AggregationWeightedSum))
	require.NoError(t, err)

	value, _ := result.Aggregation.Float64()
	assert.InDelta(t, 10.0*15.0/30.0, value, 0.0001)
}

func TestWeightedSum_NegativeDeltaReducesWeight(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(periodFrom, map[string]any{"units": 10.0}),
		fakeEvent(day(15), map[string]any{"units": -10.0}),
	}}

	result, err := WeightedSum{}.Aggregate(context.Background(), store, request(metricdomain.AggregationWeightedSum))
	require.NoError(t, err)

	value, _ := result.Aggregation.Float64()
	assert.InDelta(t, 10.0*15.0/30.0, value, 0.0001)
}

func TestWeightedSum_RecurringSeedsFromPriorBalance(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(periodFrom.AddDate(0, -1, 0), map[string]any{"units": 4.0}),
	}}

	req := request(metricdomain.AggregationWeightedSum)
	req.Metric.Recurring = true

	result, err := WeightedSum{}.Aggregate(context.Background(), store, req)
	require.NoError(t, err)

	value, _ := result.Aggregation.Float64()
	assert.InDelta(t, 4.0, value, 0.0001)
}

func TestWeightedSum_RejectsUnknownInterval(t *testing.T) {
	req := request(metricdomain.AggregationWeightedSum)
	interval := "fortnights"
	req.Metric.WeightedInterval = &interval

	_, err := WeightedSum{}.Aggregate(context.Background(), &fakeStore{}, req)
	assert.ErrorIs(t, err, aggregationdomain.ErrInvalidWeightedInterval)
}

func TestProratedSum_WeightsByRemainingCoverage(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(15), map[string]any{"units": 10.0}),
	}}

	req := request(metricdomain.AggregationSum)

	result, err := ProratedSum{}.Aggregate(context.Background(), store, req)
	require.NoError(t, err)

	value, _ := result.Aggregation.Float64()
	assert.InDelta(t, 10.0*15.0/30.0, value, 0.0001)
	assert.True(t, decimal.NewFromInt(10).Equal(result.FullUnitsNumber))
	assert.True(t, result.FullUnitsNumber.GreaterThanOrEqual(result.Aggregation))
}

func TestProratedSum_RecurringBalanceUsesActiveFraction(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(periodFrom.AddDate(0, -1, 0), map[string]any{"units": 30.0}),
	}}

	req := request(metricdomain.AggregationSum)
	req.Metric.Recurring = true
	req.Boundaries.ActiveFrom = day(15)

	result, err := ProratedSum{}.Aggregate(context.Background(), store, req)
	require.NoError(t, err)

	value, _ := result.Aggregation.Float64()
	assert.InDelta(t, 30.0*15.0/30.0, value, 0.0001)
	assert.True(t, decimal.NewFromInt(30).Equal(result.FullUnitsNumber))
}

func TestProratedUniqueCount_MembershipSliceWeights(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(periodFrom, map[string]any{"units": "A", "operation_type": "add"}),
		fakeEvent(day(15), map[string]any{"units": "A", "operation_type": "remove"}),
	}}

	result, err := ProratedUniqueCount{}.Aggregate(context.Background(), store, request(metricdomain.AggregationUniqueCount))
	require.NoError(t, err)

	value, _ := result.Aggregation.Float64()
	assert.InDelta(t, 0.5, value, 0.0001)
	assert.True(t, decimal.NewFromInt(1).Equal(result.FullUnitsNumber))
}

func TestStrategies_Idempotent(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(3), map[string]any{"units": 5.0}),
		fakeEvent(day(9), map[string]any{"units": 7.0}),
	}}

	req := request(metricdomain.AggregationSum)
	first, err := Sum{}.Aggregate(context.Background(), store, req)
	require.NoError(t, err)
	second, err := Sum{}.Aggregate(context.Background(), store, req)
	require.NoError(t, err)

	assert.True(t, first.Aggregation.Equal(second.Aggregation))
	assert.Equal(t, first.Count, second.Count)
}

func TestFactory_SelectsProratedVariants(t *testing.T) {
	factory := NewFactory(expression.New())

	s, err := factory.For(metric(metricdomain.AggregationSum), chargedomain.Charge{Prorated: true}, false)
	require.NoError(t, err)
	assert.Equal(t, "prorated_sum", s.Name())

	s, err = factory.For(metric(metricdomain.AggregationUniqueCount), chargedomain.Charge{Prorated: true}, false)
	require.NoError(t, err)
	assert.Equal(t, "prorated_unique_count", s.Name())

	s, err = factory.For(metric(metricdomain.AggregationCount), chargedomain.Charge{Prorated: true}, false)
	require.NoError(t, err)
	assert.Equal(t, "count", s.Name())
}

func TestFactory_UnsupportedCombination(t *testing.T) {
	factory := NewFactory(expression.New())
	charge := chargedomain.Charge{PayInAdvance: true}

	for _, agg := range []metricdomain.AggregationType{
		metricdomain.AggregationLatest,
		metricdomain.AggregationMax,
		metricdomain.AggregationWeightedSum,
	} {
		_, err := factory.For(metric(agg), charge, false)
		assert.ErrorIs(t, err, aggregationdomain.ErrUnsupportedCombination, string(agg))

		// Current-usage snapshots remain available.
		_, err = factory.For(metric(agg), charge, true)
		assert.NoError(t, err, string(agg))
	}
}

func TestFactory_CustomRequiresExpression(t *testing.T) {
	factory := NewFactory(expression.New())

	_, err := factory.For(metric(metricdomain.AggregationCustom), chargedomain.Charge{}, false)
	assert.ErrorIs(t, err, aggregationdomain.ErrInvalidExpression)

	m := metric(metricdomain.AggregationCustom)
	m.Expression = `properties["units"] * 2`
	s, err := factory.For(m, chargedomain.Charge{}, false)
	require.NoError(t, err)
	assert.Equal(t, "custom", s.Name())
}

func TestFactory_UnknownAggregation(t *testing.T) {
	factory := NewFactory(expression.New())

	_, err := factory.For(metric(metricdomain.AggregationType("median_agg")), chargedomain.Charge{}, false)
	assert.ErrorIs(t, err, aggregationdomain.ErrUnknownAggregation)
}

func TestCustom_EvaluatesPerEvent(t *testing.T) {
	store := &fakeStore{events: []eventdomain.Event{
		fakeEvent(day(1), map[string]any{"units": 2.0}),
		fakeEvent(day(2), map[string]any{"units": 3.0}),
		fakeEvent(day(3), map[string]any{"other": true}),
	}}

	req := request(metricdomain.AggregationCustom)
	req.Metric.Expression = `properties["units"] * 2`

	result, err := Custom{Evaluator: expression.New()}.Aggregate(context.Background(), store, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(result.Aggregation), result.Aggregation.String())
	assert.EqualValues(t, 1, result.InvalidCount)
}

func TestCustom_BrokenExpressionIsConfigurationError(t *testing.T) {
	req := request(metricdomain.AggregationCustom)
	req.Metric.Expression = `properties[`

	_, err := Custom{Evaluator: expression.New()}.Aggregate(context.Background(), &fakeStore{}, req)
	assert.ErrorIs(t, err, aggregationdomain.ErrInvalidExpression)
	assert.Equal(t, aggregationdomain.ErrorKindConfiguration, aggregationdomain.Classify(err))
}
