package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RateRequest identifies one charge to rate over a billing window.
type RateRequest struct {
	OrgID                  snowflake.ID
	ExternalSubscriptionID string
	ChargeID               snowflake.ID
	PeriodStart            time.Time
	PeriodEnd              time.Time

	// CurrentUsage asks for an in-progress snapshot instead of a final
	// settlement. Snapshots relax the pay-in-advance restrictions on
	// point-in-time aggregations.
	CurrentUsage bool
}

// RunRequest rates every charge of a subscription's plan and persists the
// outcome.
type RunRequest struct {
	OrgID                  snowflake.ID
	ExternalSubscriptionID string
	PeriodStart            time.Time
	PeriodEnd              time.Time
}

type Service interface {
	// RateCharge aggregates and prices one charge, fanned out per charge
	// filter plus the default scope. Nothing is persisted.
	RateCharge(ctx context.Context, req RateRequest) ([]ChargeUsage, error)

	// CurrentUsage is RateCharge in snapshot mode for every charge of the
	// subscription's plan.
	CurrentUsage(ctx context.Context, req RunRequest) ([]ChargeUsage, error)

	// RunRating rates all charges and replaces the persisted rated charges
	// for the window. Re-running a window is idempotent.
	RunRating(ctx context.Context, req RunRequest) ([]RatedCharge, error)
}

var (
	ErrInvalidPeriod = errors.New("invalid_rating_period")
	ErrNoCharges     = errors.New("no_charges_for_plan")
)
