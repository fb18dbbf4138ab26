package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	"github.com/smallbiznis/tarifa/internal/cache"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	subscriptiondomain "github.com/smallbiznis/tarifa/internal/subscription/domain"
)

type ingestEnv struct {
	svc   eventdomain.Service
	db    *gorm.DB
	node  *snowflake.Node
	orgID snowflake.ID
}

func setupIngest(t *testing.T) *ingestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&eventdomain.Event{},
		&subscriptiondomain.Subscription{},
		&metricdomain.BillableMetric{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	env := &ingestEnv{
		db:    db,
		node:  node,
		orgID: node.Generate(),
	}
	env.svc = NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Resolver: cache.NewRatingResolverCache(),
	})

	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		ID:         node.Generate(),
		OrgID:      env.orgID,
		CustomerID: node.Generate(),
		ExternalID: "sub_ext_1",
		PlanID:     node.Generate(),
		Status:     subscriptiondomain.StatusActive,
		StartAt:    time.Now().UTC().AddDate(0, -1, 0),
	}).Error)
	require.NoError(t, db.Create(&metricdomain.BillableMetric{
		ID:              node.Generate(),
		OrgID:           env.orgID,
		Code:            "api_calls",
		Name:            "API calls",
		AggregationType: metricdomain.AggregationCount,
	}).Error)

	return env
}

func TestIngestAcceptsEvent(t *testing.T) {
	env := setupIngest(t)

	event, err := env.svc.Ingest(context.Background(), env.orgID, eventdomain.IngestRequest{
		ExternalSubscriptionID: "sub_ext_1",
		Code:                   "api_calls",
		Properties:             map[string]any{"value": 3},
	})
	require.NoError(t, err)
	require.NotZero(t, event.ID)
	require.NotEmpty(t, event.TransactionID)
	require.False(t, event.Timestamp.IsZero())
}

func TestIngestDeduplicatesTransaction(t *testing.T) {
	env := setupIngest(t)
	req := eventdomain.IngestRequest{
		TransactionID:          "txn_1",
		ExternalSubscriptionID: "sub_ext_1",
		Code:                   "api_calls",
	}

	first, err := env.svc.Ingest(context.Background(), env.orgID, req)
	require.NoError(t, err)

	second, err := env.svc.Ingest(context.Background(), env.orgID, req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, env.db.Model(&eventdomain.Event{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestIngestRejectsUnknownCode(t *testing.T) {
	env := setupIngest(t)

	_, err := env.svc.Ingest(context.Background(), env.orgID, eventdomain.IngestRequest{
		ExternalSubscriptionID: "sub_ext_1",
		Code:                   "no_such_metric",
	})
	require.ErrorIs(t, err, eventdomain.ErrUnknownCode)
}

func TestIngestRejectsUnknownSubscription(t *testing.T) {
	env := setupIngest(t)

	_, err := env.svc.Ingest(context.Background(), env.orgID, eventdomain.IngestRequest{
		ExternalSubscriptionID: "sub_missing",
		Code:                   "api_calls",
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestBatchIngest(t *testing.T) {
	env := setupIngest(t)

	events, err := env.svc.BatchIngest(context.Background(), env.orgID, []eventdomain.IngestRequest{
		{ExternalSubscriptionID: "sub_ext_1", Code: "api_calls"},
		{ExternalSubscriptionID: "sub_ext_1", Code: "api_calls"},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	_, err = env.svc.BatchIngest(context.Background(), env.orgID, nil)
	require.ErrorIs(t, err, eventdomain.ErrEmptyBatch)
}

func TestListPaginates(t *testing.T) {
	env := setupIngest(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := env.svc.Ingest(context.Background(), env.orgID, eventdomain.IngestRequest{
			ExternalSubscriptionID: "sub_ext_1",
			Code:                   "api_calls",
			Timestamp:              base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	resp, err := env.svc.List(context.Background(), env.orgID, eventdomain.ListRequest{
		ExternalSubscriptionID: "sub_ext_1",
		Code:                   "api_calls",
		PageSize:               3,
	})
	require.NoError(t, err)
	require.Len(t, resp.Events, 3)
	require.NotEmpty(t, resp.NextPageToken)
}
