package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	chargedomain "github.com/smallbiznis/tarifa/internal/charge/domain"
	subscriptiondomain "github.com/smallbiznis/tarifa/internal/subscription/domain"
)

const (
	defaultMetricTTL       = 10 * time.Minute
	defaultChargeTTL       = 10 * time.Minute
	defaultSubscriptionTTL = 45 * time.Second
)

// RatingResolverCache stores hot-path resolver lookups for rating runs.
// Metric and charge definitions change rarely; subscriptions churn, so
// they keep a short TTL.
type RatingResolverCache interface {
	GetMetric(orgID snowflake.ID, code string) (metricdomain.BillableMetric, bool)
	SetMetric(orgID snowflake.ID, code string, metric metricdomain.BillableMetric)
	GetCharge(chargeID snowflake.ID) (chargedomain.Charge, bool)
	SetCharge(charge chargedomain.Charge)
	GetSubscription(orgID snowflake.ID, externalID string) (subscriptiondomain.Subscription, bool)
	SetSubscription(orgID snowflake.ID, externalID string, subscription subscriptiondomain.Subscription)
	InvalidateSubscription(orgID snowflake.ID, externalID string)
}

type ratingResolverCache struct {
	metrics       Cache[string, metricdomain.BillableMetric]
	charges       Cache[snowflake.ID, chargedomain.Charge]
	subscriptions Cache[string, subscriptiondomain.Subscription]
	metricTTL     time.Duration
	chargeTTL     time.Duration
	subTTL        time.Duration
}

// NewRatingResolverCache returns an in-memory cache tuned for rating runs.
func NewRatingResolverCache() RatingResolverCache {
	return &ratingResolverCache{
		metrics:       NewTTLCache[string, metricdomain.BillableMetric](),
		charges:       NewTTLCache[snowflake.ID, chargedomain.Charge](),
		subscriptions: NewTTLCache[string, subscriptiondomain.Subscription](),
		metricTTL:     defaultMetricTTL,
		chargeTTL:     defaultChargeTTL,
		subTTL:        defaultSubscriptionTTL,
	}
}

func (c *ratingResolverCache) GetMetric(orgID snowflake.ID, code string) (metricdomain.BillableMetric, bool) {
	return c.metrics.Get(cacheKey(orgID.String(), code))
}

func (c *ratingResolverCache) SetMetric(orgID snowflake.ID, code string, metric metricdomain.BillableMetric) {
	if metric.ID == 0 {
		return
	}
	c.metrics.Set(cacheKey(orgID.String(), code), metric, c.metricTTL)
}

func (c *ratingResolverCache) GetCharge(chargeID snowflake.ID) (chargedomain.Charge, bool) {
	return c.charges.Get(chargeID)
}

func (c *ratingResolverCache) SetCharge(charge chargedomain.Charge) {
	if charge.ID == 0 {
		return
	}
	c.charges.Set(charge.ID, charge, c.chargeTTL)
}

func (c *ratingResolverCache) GetSubscription(orgID snowflake.ID, externalID string) (subscriptiondomain.Subscription, bool) {
	return c.subscriptions.Get(cacheKey(orgID.String(), externalID))
}

func (c *ratingResolverCache) SetSubscription(orgID snowflake.ID, externalID string, subscription subscriptiondomain.Subscription) {
	if subscription.ID == 0 {
		return
	}
	c.subscriptions.Set(cacheKey(orgID.String(), externalID), subscription, c.subTTL)
}

// InvalidateSubscription drops a cached subscription after a lifecycle
// change so rating never runs against a stale active entry.
func (c *ratingResolverCache) InvalidateSubscription(orgID snowflake.ID, externalID string) {
	c.subscriptions.Delete(cacheKey(orgID.String(), externalID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
