// Package proration computes the fraction of a billing period actually
// covered by a subscription or charge.
package proration

import (
	"time"

	"github.com/shopspring/decimal"
	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
)

// Fraction returns active_seconds / total_seconds for the boundaries' active
// sub-window, clamped to [0, 1]. A degenerate period yields zero.
func Fraction(b aggregationdomain.Boundaries) decimal.Decimal {
	total := b.PeriodSeconds()
	if total <= 0 {
		return decimal.Zero
	}

	activeFrom, activeTo := b.ActiveWindow()
	active := activeTo.Sub(activeFrom).Seconds()
	if active <= 0 {
		return decimal.Zero
	}

	fraction := decimal.NewFromFloat(active).Div(decimal.NewFromFloat(total))
	if fraction.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return fraction
}

// OverlapSeconds returns the seconds the interval [from, to) spends inside
// [windowFrom, windowTo).
func OverlapSeconds(from, to, windowFrom, windowTo time.Time) float64 {
	if from.Before(windowFrom) {
		from = windowFrom
	}
	if to.After(windowTo) {
		to = windowTo
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from).Seconds()
}

// IntervalWeight returns the share of the billing period covered by
// [from, to) clipped to the boundaries' active sub-window. The denominator
// is always the full period, so partial coverage prorates naturally.
func IntervalWeight(b aggregationdomain.Boundaries, from, to time.Time) decimal.Decimal {
	total := b.PeriodSeconds()
	if total <= 0 {
		return decimal.Zero
	}

	activeFrom, activeTo := b.ActiveWindow()
	overlap := OverlapSeconds(from, to, activeFrom, activeTo)
	if overlap <= 0 {
		return decimal.Zero
	}

	return decimal.NewFromFloat(overlap).Div(decimal.NewFromFloat(total))
}

// EventWeight returns the share of the billing period an event's
// contribution covers: from the event until the end of the active window.
func EventWeight(b aggregationdomain.Boundaries, eventTimestamp time.Time) decimal.Decimal {
	_, activeTo := b.ActiveWindow()
	return IntervalWeight(b, eventTimestamp, activeTo)
}
