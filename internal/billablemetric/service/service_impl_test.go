package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	"github.com/smallbiznis/tarifa/internal/expression"
)

func setupMetricService(t *testing.T) (metricdomain.Service, snowflake.ID) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&metricdomain.BillableMetric{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Evaluator: expression.New(),
	})
	return svc, node.Generate()
}

func TestCreateMetric(t *testing.T) {
	svc, orgID := setupMetricService(t)

	metric, err := svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:           orgID,
		Code:            "storage_gb",
		Name:            "Storage",
		AggregationType: "sum_agg",
		FieldName:       "gb",
	})
	require.NoError(t, err)
	require.Equal(t, metricdomain.AggregationSum, metric.AggregationType)

	_, err = svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:           orgID,
		Code:            "storage_gb",
		Name:            "Storage again",
		AggregationType: "sum_agg",
		FieldName:       "gb",
	})
	require.ErrorIs(t, err, metricdomain.ErrDuplicateCode)
}

func TestCreateMetricRequiresField(t *testing.T) {
	svc, orgID := setupMetricService(t)

	_, err := svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:           orgID,
		Code:            "storage_gb",
		Name:            "Storage",
		AggregationType: "sum_agg",
	})
	require.ErrorIs(t, err, metricdomain.ErrInvalidFieldName)

	// count never needs a field
	_, err = svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:           orgID,
		Code:            "api_calls",
		Name:            "API calls",
		AggregationType: "count_agg",
	})
	require.NoError(t, err)
}

func TestCreateMetricValidatesExpression(t *testing.T) {
	svc, orgID := setupMetricService(t)

	_, err := svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:           orgID,
		Code:            "compute",
		Name:            "Compute",
		AggregationType: "custom_agg",
		Expression:      "properties.cpu *",
	})
	require.ErrorIs(t, err, metricdomain.ErrInvalidExpression)

	metric, err := svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:           orgID,
		Code:            "compute",
		Name:            "Compute",
		AggregationType: "custom_agg",
		Expression:      "properties.cpu * 2",
	})
	require.NoError(t, err)
	require.Equal(t, "properties.cpu * 2", metric.Expression)
}

func TestCreateMetricWeightedInterval(t *testing.T) {
	svc, orgID := setupMetricService(t)

	hourly := "hours"
	_, err := svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:            orgID,
		Code:             "concurrency",
		Name:             "Concurrency",
		AggregationType:  "weighted_sum_agg",
		FieldName:        "delta",
		WeightedInterval: &hourly,
	})
	require.ErrorIs(t, err, metricdomain.ErrInvalidInterval)

	metric, err := svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:           orgID,
		Code:            "concurrency",
		Name:            "Concurrency",
		AggregationType: "weighted_sum_agg",
		FieldName:       "delta",
	})
	require.NoError(t, err)
	require.NotNil(t, metric.WeightedInterval)
	require.Equal(t, metricdomain.WeightedIntervalSeconds, *metric.WeightedInterval)
}

func TestUpdateAndDeleteMetric(t *testing.T) {
	svc, orgID := setupMetricService(t)

	metric, err := svc.Create(context.Background(), metricdomain.CreateRequest{
		OrgID:           orgID,
		Code:            "storage_gb",
		Name:            "Storage",
		AggregationType: "sum_agg",
		FieldName:       "gb",
	})
	require.NoError(t, err)

	name := "Storage (GB)"
	updated, err := svc.Update(context.Background(), metricdomain.UpdateRequest{
		OrgID: orgID,
		ID:    metric.ID,
		Name:  &name,
	})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)

	require.NoError(t, svc.Delete(context.Background(), orgID, metric.ID))
	_, err = svc.GetByCode(context.Background(), orgID, "storage_gb")
	require.ErrorIs(t, err, metricdomain.ErrMetricNotFound)
}
