package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	"github.com/smallbiznis/tarifa/internal/aggregation/strategy"
	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	"github.com/smallbiznis/tarifa/internal/cache"
	"github.com/smallbiznis/tarifa/internal/cloudmetrics"
	chargedomain "github.com/smallbiznis/tarifa/internal/charge/domain"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
	"github.com/smallbiznis/tarifa/internal/observability/metrics"
	"github.com/smallbiznis/tarifa/internal/pricing"
	"github.com/smallbiznis/tarifa/internal/proration"
	ratingdomain "github.com/smallbiznis/tarifa/internal/rating/domain"
	subscriptiondomain "github.com/smallbiznis/tarifa/internal/subscription/domain"
	"github.com/smallbiznis/tarifa/pkg/repository"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	store    eventdomain.Store
	factory  *strategy.Factory
	resolver cache.RatingResolverCache
	recorder *metrics.Recorder

	metricRepo       repository.Repository[metricdomain.BillableMetric]
	subscriptionRepo repository.Repository[subscriptiondomain.Subscription]
	ratedRepo        repository.Repository[ratingdomain.RatedCharge]
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Store    eventdomain.Store
	Factory  *strategy.Factory
	Resolver cache.RatingResolverCache
	Recorder *metrics.Recorder
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("rating.service"),

		genID:    p.GenID,
		store:    p.Store,
		factory:  p.Factory,
		resolver: p.Resolver,
		recorder: p.Recorder,

		metricRepo:       repository.ProvideStore[metricdomain.BillableMetric](p.DB),
		subscriptionRepo: repository.ProvideStore[subscriptiondomain.Subscription](p.DB),
		ratedRepo:        repository.ProvideStore[ratingdomain.RatedCharge](p.DB),
	}
}

func (s *Service) RateCharge(ctx context.Context, req ratingdomain.RateRequest) ([]ratingdomain.ChargeUsage, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, ratingdomain.ErrInvalidPeriod
	}

	subscription, err := s.loadSubscription(ctx, req.OrgID, req.ExternalSubscriptionID)
	if err != nil {
		return nil, err
	}

	charge, err := s.loadCharge(ctx, req.OrgID, req.ChargeID)
	if err != nil {
		return nil, err
	}

	metric, err := s.loadMetric(ctx, req.OrgID, charge.BillableMetricID)
	if err != nil {
		return nil, err
	}

	boundaries := buildBoundaries(req.PeriodStart, req.PeriodEnd, subscription)
	return s.rateCharge(ctx, metric, *charge, subscription, boundaries, req.CurrentUsage)
}

func (s *Service) CurrentUsage(ctx context.Context, req ratingdomain.RunRequest) ([]ratingdomain.ChargeUsage, error) {
	usages, _, err := s.rateAll(ctx, req, true)
	return usages, err
}

func (s *Service) RunRating(ctx context.Context, req ratingdomain.RunRequest) ([]ratingdomain.RatedCharge, error) {
	started := time.Now()

	usages, subscription, err := s.rateAll(ctx, req, false)
	if err != nil {
		s.recorder.RatingRunFailed(aggregationdomain.Classify(err))
		return nil, err
	}

	rows := s.buildRatedCharges(req, subscription, usages)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replace, never append: a re-run of the same window starts clean.
		if err := tx.Where(
			"subscription_id = ? AND period_start = ? AND period_end = ?",
			subscription.ID, req.PeriodStart, req.PeriodEnd,
		).Delete(&ratingdomain.RatedCharge{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checksum"}},
			DoNothing: true,
		}).Create(&rows).Error
	})
	if err != nil {
		s.recorder.RatingRunFailed(aggregationdomain.ErrorKindBackend)
		return nil, err
	}

	s.recorder.RatingRunCompleted(time.Since(started))
	for _, usage := range usages {
		cloudmetrics.RecordRatedCharge(req.OrgID.String(), string(usage.Charge.Model))
	}
	s.log.Info("rating run completed",
		zap.String("external_subscription_id", req.ExternalSubscriptionID),
		zap.Time("period_start", req.PeriodStart),
		zap.Time("period_end", req.PeriodEnd),
		zap.Int("rated_charges", len(rows)),
	)
	return rows, nil
}

func (s *Service) rateAll(ctx context.Context, req ratingdomain.RunRequest, currentUsage bool) ([]ratingdomain.ChargeUsage, subscriptiondomain.Subscription, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, subscriptiondomain.Subscription{}, ratingdomain.ErrInvalidPeriod
	}

	subscription, err := s.loadSubscription(ctx, req.OrgID, req.ExternalSubscriptionID)
	if err != nil {
		return nil, subscriptiondomain.Subscription{}, err
	}

	charges, err := s.listPlanCharges(ctx, req.OrgID, subscription.PlanID)
	if err != nil {
		return nil, subscription, err
	}
	if len(charges) == 0 {
		return nil, subscription, ratingdomain.ErrNoCharges
	}

	boundaries := buildBoundaries(req.PeriodStart, req.PeriodEnd, subscription)

	var usages []ratingdomain.ChargeUsage
	for _, charge := range charges {
		metric, err := s.loadMetric(ctx, req.OrgID, charge.BillableMetricID)
		if err != nil {
			return nil, subscription, err
		}

		chargeUsages, err := s.rateCharge(ctx, metric, charge, subscription, boundaries, currentUsage)
		if err != nil {
			return nil, subscription, fmt.Errorf("rating charge %s: %w", charge.ID, err)
		}
		usages = append(usages, chargeUsages...)
	}
	return usages, subscription, nil
}

// scopePlan is one aggregation pass of a charge: a filter scope or the
// default scope with every filter excluded.
type scopePlan struct {
	filterID    *snowflake.ID
	displayName string
	filters     map[string][]string
	excludes    []map[string][]string
	properties  map[string]any
}

func (s *Service) rateCharge(
	ctx context.Context,
	metric metricdomain.BillableMetric,
	charge chargedomain.Charge,
	subscription subscriptiondomain.Subscription,
	boundaries aggregationdomain.Boundaries,
	currentUsage bool,
) ([]ratingdomain.ChargeUsage, error) {
	strat, err := s.factory.For(metric, charge, currentUsage)
	if err != nil {
		return nil, err
	}

	fraction := decimal.Zero
	if charge.Prorated {
		fraction = proration.Fraction(boundaries)
	}

	usages := make([]ratingdomain.ChargeUsage, 0, len(charge.Filters)+1)
	for _, plan := range buildScopePlans(charge) {
		scope := eventdomain.Scope{
			OrgID:                  charge.OrgID,
			ExternalSubscriptionID: subscription.ExternalID,
			Code:                   metric.Code,
			FieldName:              metric.FieldName,
			Filters:                plan.filters,
			ExcludeFilters:         plan.excludes,
			GroupBy:                groupingDimensions(charge),
		}

		result, err := strat.Aggregate(ctx, s.store, strategy.Request{
			Metric:       metric,
			Scope:        scope,
			Boundaries:   boundaries,
			CurrentUsage: currentUsage,
		})
		if err != nil {
			s.recorder.AggregationFailed(s.store.Name(), strat.Name(), aggregationdomain.Classify(err))
			return nil, err
		}
		s.recorder.AggregationCompleted(s.store.Name(), strat.Name())

		fee, err := pricing.Apply(charge.Model, plan.properties, pricing.Input{
			Units:            result.Aggregation,
			FullUnits:        result.FullUnitsNumber,
			EventsCount:      result.Count - result.InvalidCount,
			Prorated:         charge.Prorated,
			ProratedFraction: fraction,
		})
		if err != nil {
			return nil, err
		}

		usages = append(usages, ratingdomain.ChargeUsage{
			Charge:      charge,
			FilterID:    plan.filterID,
			DisplayName: plan.displayName,
			Result:      result,
			Fee:         fee,
			AmountCents: toCents(fee.Amount, charge.Currency),
		})
	}

	return applyMinAmount(charge, usages), nil
}

// buildScopePlans fans a charge out into one aggregation per filter plus
// the default scope. The default scope excludes every filter's dimensions
// so no event is billed twice.
func buildScopePlans(charge chargedomain.Charge) []scopePlan {
	plans := make([]scopePlan, 0, len(charge.Filters)+1)
	excludes := make([]map[string][]string, 0, len(charge.Filters))

	for _, filter := range charge.Filters {
		dims := filter.DimensionValues()
		if len(dims) == 0 {
			continue
		}
		excludes = append(excludes, dims)

		filterID := filter.ID
		plans = append(plans, scopePlan{
			filterID:    &filterID,
			displayName: filter.InvoiceDisplayName,
			filters:     dims,
			properties:  mergeProperties(charge.Properties, filter.Properties),
		})
	}

	plans = append(plans, scopePlan{
		excludes:   excludes,
		properties: charge.Properties,
	})
	return plans
}

// mergeProperties overlays filter properties on the charge defaults.
func mergeProperties(base, override map[string]any) map[string]any {
	if len(override) == 0 {
		return base
	}
	return lo.Assign(base, override)
}

// groupingDimensions reads the charge's grouped_by property.
func groupingDimensions(charge chargedomain.Charge) []string {
	raw, ok := charge.Properties["grouped_by"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	dims := make([]string, 0, len(list))
	for _, item := range list {
		if dim, ok := item.(string); ok && dim != "" {
			dims = append(dims, dim)
		}
	}
	return dims
}

// applyMinAmount tops the charge total up to min_amount_cents. The true-up
// lands on the default scope so filter lines keep their computed amounts.
func applyMinAmount(charge chargedomain.Charge, usages []ratingdomain.ChargeUsage) []ratingdomain.ChargeUsage {
	if charge.MinAmountCents <= 0 || len(usages) == 0 {
		return usages
	}

	total := int64(0)
	for _, usage := range usages {
		total += usage.AmountCents
	}
	if total >= charge.MinAmountCents {
		return usages
	}

	last := len(usages) - 1
	usages[last].AmountCents += charge.MinAmountCents - total
	return usages
}

func buildBoundaries(from, to time.Time, subscription subscriptiondomain.Subscription) aggregationdomain.Boundaries {
	boundaries := aggregationdomain.Boundaries{
		From:           from,
		To:             to,
		DurationInDays: int(to.Sub(from).Hours() / 24),
	}

	activeFrom, activeTo := subscription.ActiveWindow()
	if activeFrom.After(from) {
		boundaries.ActiveFrom = activeFrom
	}
	if activeTo != nil && activeTo.Before(to) {
		boundaries.ActiveTo = *activeTo
	}
	return boundaries
}

func (s *Service) buildRatedCharges(req ratingdomain.RunRequest, subscription subscriptiondomain.Subscription, usages []ratingdomain.ChargeUsage) []ratingdomain.RatedCharge {
	rows := make([]ratingdomain.RatedCharge, 0, len(usages))
	for _, usage := range usages {
		rows = append(rows, ratingdomain.RatedCharge{
			ID:                 s.genID.Generate(),
			OrgID:              req.OrgID,
			SubscriptionID:     subscription.ID,
			ChargeID:           usage.Charge.ID,
			BillableMetricID:   usage.Charge.BillableMetricID,
			ChargeFilterID:     usage.FilterID,
			Units:              usage.Fee.Units,
			FullUnits:          usage.Result.FullUnitsNumber,
			AmountCents:        usage.AmountCents,
			UnitAmount:         usage.Fee.UnitAmount,
			Currency:           usage.Charge.Currency,
			EventsCount:        usage.Result.Count,
			InvalidEventsCount: usage.Result.InvalidCount,
			PeriodStart:        req.PeriodStart,
			PeriodEnd:          req.PeriodEnd,
			Checksum: buildChecksum(
				req.OrgID, subscription.ID, usage.Charge.ID, usage.FilterID,
				req.PeriodStart, req.PeriodEnd,
			),
			CreatedAt: time.Now().UTC(),
		})
	}
	return rows
}

func (s *Service) loadSubscription(ctx context.Context, orgID snowflake.ID, externalID string) (subscriptiondomain.Subscription, error) {
	if cached, ok := s.resolver.GetSubscription(orgID, externalID); ok {
		return cached, nil
	}

	subscription, err := s.subscriptionRepo.FindOne(ctx, &subscriptiondomain.Subscription{
		OrgID:      orgID,
		ExternalID: externalID,
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	s.resolver.SetSubscription(orgID, externalID, *subscription)
	return *subscription, nil
}

func (s *Service) loadCharge(ctx context.Context, orgID, chargeID snowflake.ID) (*chargedomain.Charge, error) {
	if cached, ok := s.resolver.GetCharge(chargeID); ok {
		return &cached, nil
	}

	var charge chargedomain.Charge
	err := s.db.WithContext(ctx).
		Preload("Filters").
		Where("org_id = ? AND id = ?", orgID, chargeID).
		First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, chargedomain.ErrChargeNotFound
	}
	if err != nil {
		return nil, err
	}

	s.resolver.SetCharge(charge)
	return &charge, nil
}

func (s *Service) listPlanCharges(ctx context.Context, orgID, planID snowflake.ID) ([]chargedomain.Charge, error) {
	var charges []chargedomain.Charge
	err := s.db.WithContext(ctx).
		Preload("Filters").
		Where("org_id = ? AND plan_id = ?", orgID, planID).
		Order("id ASC").
		Find(&charges).Error
	if err != nil {
		return nil, err
	}
	for _, charge := range charges {
		s.resolver.SetCharge(charge)
	}
	return charges, nil
}

func (s *Service) loadMetric(ctx context.Context, orgID, metricID snowflake.ID) (metricdomain.BillableMetric, error) {
	metric, err := s.metricRepo.FindOne(ctx, &metricdomain.BillableMetric{ID: metricID, OrgID: orgID})
	if err != nil {
		return metricdomain.BillableMetric{}, err
	}
	if metric == nil {
		return metricdomain.BillableMetric{}, metricdomain.ErrMetricNotFound
	}
	return *metric, nil
}

// currencyExponents lists the zero-decimal currencies billed as whole
// units. Everything else uses two decimals.
var currencyExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
}

// toCents converts an amount to the currency's minor unit, half away from
// zero.
func toCents(amount decimal.Decimal, currency string) int64 {
	exponent := int32(2)
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		exponent = exp
	}
	return amount.Shift(exponent).Round(0).IntPart()
}

func buildChecksum(orgID, subscriptionID, chargeID snowflake.ID, filterID *snowflake.ID, from, to time.Time) string {
	filterPart := "-"
	if filterID != nil {
		filterPart = filterID.String()
	}
	payload := strings.Join([]string{
		orgID.String(),
		subscriptionID.String(),
		chargeID.String(),
		filterPart,
		fmt.Sprintf("%d", from.UTC().Unix()),
		fmt.Sprintf("%d", to.UTC().Unix()),
	}, "|")

	digest := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(digest[:])
}
