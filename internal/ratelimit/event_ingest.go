package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/smallbiznis/tarifa/internal/config"
)

const (
	keyEventIngestOrg  = "events:ingest:org:%s"
	keyEventIngestSub  = "events:ingest:sub:%s:%s"
	keyEventIngestLock = "events:ingest:lock:%s:%s:%s"
)

// EventIngestLimiter throttles event ingestion per organization and per
// subscription, and serializes concurrent writers of the same metric scope.
type EventIngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	orgRate  float64
	orgBurst int
	subRate  float64
	subBurst int
	lockTTL  time.Duration
}

func NewEventIngestLimiter(cfg config.Config) (*EventIngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.IngestOrgRate <= 0 || limitCfg.IngestOrgBurst <= 0 {
		return nil, errors.New("event ingest org rate limit must be positive")
	}
	if limitCfg.IngestSubscriptionRate <= 0 || limitCfg.IngestSubscriptionBurst <= 0 {
		return nil, errors.New("event ingest subscription rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	return &EventIngestLimiter{
		enabled:  true,
		bucket:   NewTokenBucket(client),
		locker:   NewLocker(client),
		orgRate:  limitCfg.IngestOrgRate,
		orgBurst: limitCfg.IngestOrgBurst,
		subRate:  limitCfg.IngestSubscriptionRate,
		subBurst: limitCfg.IngestSubscriptionBurst,
		lockTTL:  time.Duration(limitCfg.LockTTLSeconds) * time.Second,
	}, nil
}

func (l *EventIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *EventIngestLimiter) AllowOrg(ctx context.Context, orgID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyEventIngestOrg, strings.TrimSpace(orgID)), l.orgRate, l.orgBurst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *EventIngestLimiter) AllowSubscription(ctx context.Context, orgID, externalSubscriptionID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := fmt.Sprintf(
		keyEventIngestSub,
		strings.TrimSpace(orgID),
		strings.TrimSpace(externalSubscriptionID),
	)
	res, err := l.bucket.Allow(ctx, key, l.subRate, l.subBurst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *EventIngestLimiter) TryLockSubscriptionCode(ctx context.Context, orgID, externalSubscriptionID, code string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	key := fmt.Sprintf(
		keyEventIngestLock,
		strings.TrimSpace(orgID),
		strings.TrimSpace(externalSubscriptionID),
		strings.TrimSpace(code),
	)
	return l.locker.TryLock(ctx, key, l.lockTTL)
}

func (l *EventIngestLimiter) ReleaseSubscriptionCode(ctx context.Context, orgID, externalSubscriptionID, code, token string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(
		keyEventIngestLock,
		strings.TrimSpace(orgID),
		strings.TrimSpace(externalSubscriptionID),
		strings.TrimSpace(code),
	)
	return l.locker.Release(ctx, key, token)
}
