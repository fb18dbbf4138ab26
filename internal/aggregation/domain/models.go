// Package domain contains the aggregation value objects shared by strategies
// and pricing.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Boundaries describes the billing window being aggregated. ActiveFrom and
// ActiveTo carry the charge's actual active sub-window inside the period;
// zero values mean the charge covers the whole period.
type Boundaries struct {
	From           time.Time
	To             time.Time
	DurationInDays int

	ActiveFrom time.Time
	ActiveTo   time.Time
}

// PeriodSeconds is the total length of the billing window.
func (b Boundaries) PeriodSeconds() float64 {
	return b.To.Sub(b.From).Seconds()
}

// ActiveWindow resolves the charge's effective sub-window, clamped inside
// the billing period.
func (b Boundaries) ActiveWindow() (time.Time, time.Time) {
	from := b.From
	if !b.ActiveFrom.IsZero() && b.ActiveFrom.After(from) {
		from = b.ActiveFrom
	}
	to := b.To
	if !b.ActiveTo.IsZero() && b.ActiveTo.Before(to) {
		to = b.ActiveTo
	}
	if to.Before(from) {
		to = from
	}
	return from, to
}

// Result is the normalized output of one aggregation call. It is transient:
// constructed per call, never persisted by this subsystem.
type Result struct {
	// Aggregation is the billable quantity, already rounded and prorated
	// where the strategy prorates.
	Aggregation decimal.Decimal

	// CurrentUsageUnits is the in-progress usage snapshot quantity.
	CurrentUsageUnits decimal.Decimal

	// FullUnitsNumber is the un-prorated quantity. Always >= Aggregation for
	// prorated charges.
	FullUnitsNumber decimal.Decimal

	// Count is the number of events that contributed.
	Count int64

	// InvalidCount is the number of events excluded for failed numeric
	// coercion, reported as a data-quality signal.
	InvalidCount int64

	// GroupedBy carries per-group quantities for grouped computations.
	GroupedBy map[string]decimal.Decimal

	// Options carries strategy-specific extras consumed by pricing.
	Options map[string]any
}

// NewZeroResult is the valid empty-window result. An empty window is never
// an error.
func NewZeroResult() *Result {
	return &Result{
		Aggregation:       decimal.Zero,
		CurrentUsageUnits: decimal.Zero,
		FullUnitsNumber:   decimal.Zero,
	}
}

// Normalize clamps the final quantity to zero or above and backfills the
// full-units number for strategies that do not prorate.
func (r *Result) Normalize() *Result {
	if r.Aggregation.IsNegative() {
		r.Aggregation = decimal.Zero
	}
	if r.CurrentUsageUnits.IsNegative() {
		r.CurrentUsageUnits = decimal.Zero
	}
	if r.FullUnitsNumber.IsZero() {
		r.FullUnitsNumber = r.Aggregation
	}
	return r
}
