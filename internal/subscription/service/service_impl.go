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

	"github.com/smallbiznis/tarifa/internal/cache"
	subscriptiondomain "github.com/smallbiznis/tarifa/internal/subscription/domain"
	pkgdb "github.com/smallbiznis/tarifa/pkg/db"
	"github.com/smallbiznis/tarifa/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Resolver cache.RatingResolverCache
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	resolver cache.RatingResolverCache

	repo repository.Repository[subscriptiondomain.Subscription]
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		resolver: p.Resolver,

		repo: repository.ProvideStore[subscriptiondomain.Subscription](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (*subscriptiondomain.Subscription, error) {
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return nil, subscriptiondomain.ErrInvalidExternalID
	}
	if req.OrgID == 0 || req.PlanID == 0 {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}

	startAt := req.StartAt
	if startAt.IsZero() {
		startAt = time.Now().UTC()
	}
	if req.EndAt != nil && !req.EndAt.After(startAt) {
		return nil, subscriptiondomain.ErrInvalidActiveRange
	}

	existing, err := s.repo.FindOne(ctx, &subscriptiondomain.Subscription{
		OrgID:      req.OrgID,
		ExternalID: externalID,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, subscriptiondomain.ErrDuplicateExternal
	}

	now := time.Now().UTC()
	subscription := &subscriptiondomain.Subscription{
		ID:         s.genID.Generate(),
		OrgID:      req.OrgID,
		CustomerID: req.CustomerID,
		ExternalID: externalID,
		PlanID:     req.PlanID,
		Status:     subscriptiondomain.StatusActive,
		StartAt:    startAt.UTC(),
		EndAt:      req.EndAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Metadata != nil {
		subscription.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Create(ctx, subscription); err != nil {
		// Concurrent creates can slip past the lookup above; the unique
		// index on (org_id, external_id) is the authority.
		if pkgdb.IsDuplicateKey(err) {
			return nil, subscriptiondomain.ErrDuplicateExternal
		}
		return nil, err
	}
	return subscription, nil
}

func (s *Service) GetByExternalID(ctx context.Context, orgID snowflake.ID, externalID string) (*subscriptiondomain.Subscription, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, subscriptiondomain.ErrInvalidExternalID
	}

	subscription, err := s.repo.FindOne(ctx, &subscriptiondomain.Subscription{
		OrgID:      orgID,
		ExternalID: externalID,
	})
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *Service) Terminate(ctx context.Context, orgID snowflake.ID, externalID string, at time.Time) (*subscriptiondomain.Subscription, error) {
	return s.close(ctx, orgID, externalID, at, subscriptiondomain.StatusTerminated)
}

func (s *Service) Cancel(ctx context.Context, orgID snowflake.ID, externalID string, at time.Time) (*subscriptiondomain.Subscription, error) {
	return s.close(ctx, orgID, externalID, at, subscriptiondomain.StatusCanceled)
}

func (s *Service) close(ctx context.Context, orgID snowflake.ID, externalID string, at time.Time, status subscriptiondomain.SubscriptionStatus) (*subscriptiondomain.Subscription, error) {
	subscription, err := s.GetByExternalID(ctx, orgID, externalID)
	if err != nil {
		return nil, err
	}
	if subscription.Status != subscriptiondomain.StatusActive {
		return nil, subscriptiondomain.ErrAlreadyTerminated
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	at = at.UTC()
	if at.Before(subscription.StartAt) {
		return nil, subscriptiondomain.ErrInvalidActiveRange
	}

	subscription.Status = status
	subscription.CanceledAt = &at
	subscription.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, subscription.ID.String(), subscription); err != nil {
		return nil, err
	}

	// Rating and ingest resolve subscriptions through the cache; a stale
	// active entry would bill past the termination boundary.
	s.resolver.InvalidateSubscription(orgID, subscription.ExternalID)

	return subscription, nil
}
