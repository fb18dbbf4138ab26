package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	"github.com/smallbiznis/tarifa/internal/cache"
	"github.com/smallbiznis/tarifa/internal/cloudmetrics"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/tarifa/internal/subscription/domain"
	"github.com/smallbiznis/tarifa/pkg/db/option"
	"github.com/smallbiznis/tarifa/pkg/db/pagination"
	"github.com/smallbiznis/tarifa/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Resolver cache.RatingResolverCache
	Limiter  *ratelimit.EventIngestLimiter `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	resolver cache.RatingResolverCache
	limiter  *ratelimit.EventIngestLimiter

	eventRepo        repository.Repository[eventdomain.Event]
	metricRepo       repository.Repository[metricdomain.BillableMetric]
	subscriptionRepo repository.Repository[subscriptiondomain.Subscription]
}

func NewService(p ServiceParam) eventdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("event.service"),

		genID:    p.GenID,
		resolver: p.Resolver,
		limiter:  p.Limiter,

		eventRepo:        repository.ProvideStore[eventdomain.Event](p.DB),
		metricRepo:       repository.ProvideStore[metricdomain.BillableMetric](p.DB),
		subscriptionRepo: repository.ProvideStore[subscriptiondomain.Subscription](p.DB),
	}
}

func (s *Service) Ingest(ctx context.Context, orgID snowflake.ID, req eventdomain.IngestRequest) (*eventdomain.Event, error) {
	if orgID == 0 {
		return nil, eventdomain.ErrInvalidOrganization
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, eventdomain.ErrInvalidCode
	}

	externalID := strings.TrimSpace(req.ExternalSubscriptionID)
	if externalID == "" {
		return nil, eventdomain.ErrInvalidSubscription
	}

	if allowed, err := s.allow(ctx, orgID, externalID); err != nil {
		return nil, err
	} else if !allowed {
		cloudmetrics.RecordEngineError(orgID.String(), "ingest_rate_limited")
		return nil, eventdomain.ErrRateLimited
	}

	if err := s.resolveScope(ctx, orgID, externalID, code); err != nil {
		return nil, err
	}

	// Serialize writers of the same metric scope so concurrent retries of
	// one transaction cannot race the dedupe lookup below.
	lockToken, locked, err := s.limiter.TryLockSubscriptionCode(ctx, orgID.String(), externalID, code)
	if err != nil {
		return nil, err
	}
	if !locked {
		cloudmetrics.RecordEngineError(orgID.String(), "ingest_contention")
		return nil, eventdomain.ErrRateLimited
	}
	defer func() {
		if releaseErr := s.limiter.ReleaseSubscriptionCode(ctx, orgID.String(), externalID, code, lockToken); releaseErr != nil {
			s.log.Warn("ingest lock release failed", zap.Error(releaseErr))
		}
	}()

	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		transactionID = eventdomain.NewTransactionID()
	}

	// Retries of the same transaction return the original event untouched.
	existing, err := s.findByTransactionID(ctx, orgID, transactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	record := &eventdomain.Event{
		ID:                     s.genID.Generate(),
		TransactionID:          transactionID,
		OrgID:                  orgID,
		ExternalSubscriptionID: externalID,
		Code:                   code,
		Timestamp:              timestamp.UTC(),
		CreatedAt:              now,
	}
	if req.Properties != nil {
		record.Properties = datatypes.JSONMap(req.Properties)
	}

	if err := s.eventRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	cloudmetrics.RecordUsageEvent(orgID.String(), code)
	return record, nil
}

func (s *Service) BatchIngest(ctx context.Context, orgID snowflake.ID, reqs []eventdomain.IngestRequest) ([]*eventdomain.Event, error) {
	if len(reqs) == 0 {
		return nil, eventdomain.ErrEmptyBatch
	}

	records := make([]*eventdomain.Event, 0, len(reqs))
	for _, req := range reqs {
		record, err := s.Ingest(ctx, orgID, req)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, req eventdomain.ListRequest) (eventdomain.ListResponse, error) {
	if orgID == 0 {
		return eventdomain.ListResponse{}, eventdomain.ErrInvalidOrganization
	}

	filter := &eventdomain.Event{
		OrgID:                  orgID,
		ExternalSubscriptionID: strings.TrimSpace(req.ExternalSubscriptionID),
		Code:                   strings.TrimSpace(req.Code),
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.eventRepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return eventdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(e *eventdomain.Event) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		})
		return token
	})

	if len(items) > pageSize {
		items = items[:pageSize]
	}
	events := make([]eventdomain.Event, 0, len(items))
	for _, item := range items {
		events = append(events, *item)
	}

	resp := eventdomain.ListResponse{Events: events}
	if pageInfo.HasMore {
		resp.NextPageToken = pageInfo.NextPageToken
	}
	return resp, nil
}

func (s *Service) allow(ctx context.Context, orgID snowflake.ID, externalID string) (bool, error) {
	if !s.limiter.Enabled() {
		return true, nil
	}
	if ok, err := s.limiter.AllowOrg(ctx, orgID.String()); err != nil || !ok {
		return ok, err
	}
	return s.limiter.AllowSubscription(ctx, orgID.String(), externalID)
}

// resolveScope verifies the subscription and metric code exist before the
// event is accepted.
func (s *Service) resolveScope(ctx context.Context, orgID snowflake.ID, externalID, code string) error {
	if _, ok := s.resolver.GetSubscription(orgID, externalID); !ok {
		subscription, err := s.subscriptionRepo.FindOne(ctx, &subscriptiondomain.Subscription{
			OrgID:      orgID,
			ExternalID: externalID,
		})
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		s.resolver.SetSubscription(orgID, externalID, *subscription)
	}

	if _, ok := s.resolver.GetMetric(orgID, code); !ok {
		metric, err := s.metricRepo.FindOne(ctx, &metricdomain.BillableMetric{
			OrgID: orgID,
			Code:  code,
		})
		if err != nil {
			return err
		}
		if metric == nil {
			return eventdomain.ErrUnknownCode
		}
		s.resolver.SetMetric(orgID, code, *metric)
	}
	return nil
}

func (s *Service) findByTransactionID(ctx context.Context, orgID snowflake.ID, transactionID string) (*eventdomain.Event, error) {
	return s.eventRepo.FindOne(ctx, &eventdomain.Event{
		OrgID:         orgID,
		TransactionID: transactionID,
	})
}
