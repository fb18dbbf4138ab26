package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// AggregateOp names a store-side aggregation.
type AggregateOp string

const (
	OpCount  AggregateOp = "count"
	OpSum    AggregateOp = "sum"
	OpMax    AggregateOp = "max"
	OpLatest AggregateOp = "latest"
)

// Scope restricts queries to one charge's events. FieldName selects the
// event property aggregated by value-based operations. Filters narrow to
// matching dimension values; ExcludeFilters removes events matched by other
// filters so the default scope never double-counts.
type Scope struct {
	OrgID                  snowflake.ID
	ExternalSubscriptionID string
	Code                   string
	FieldName              string
	Filters                map[string][]string
	ExcludeFilters         []map[string][]string
	GroupBy                []string
}

// Window is the half-open time range [From, To) being aggregated.
type Window struct {
	From time.Time
	To   time.Time
}

// AggregateRow is one pre-aggregated scalar row. Ungrouped queries return a
// single row with the zero GroupKey. InvalidCount reports events whose field
// value failed numeric coercion and was excluded.
type AggregateRow struct {
	Group        GroupKey
	Value        decimal.Decimal
	Count        int64
	InvalidCount int64
}

// Store is the backend-specific query executor aggregation strategies run
// against. Implementations must honor context cancellation and wrap failures
// with their backend identity.
type Store interface {
	// Name identifies the backend in wrapped errors and metrics.
	Name() string

	// Aggregate pushes count/sum/max/latest down into the store, one row per
	// grouping-dimension combination.
	Aggregate(ctx context.Context, scope Scope, window Window, op AggregateOp) ([]AggregateRow, error)

	// ListOrdered returns raw event rows ordered by timestamp then insertion
	// order, for strategies that need row-level passes.
	ListOrdered(ctx context.Context, scope Scope, window Window) ([]Event, error)

	// SumBefore sums the scoped field over all events strictly before the
	// instant, seeding recurring point-in-time aggregations.
	SumBefore(ctx context.Context, scope Scope, before time.Time) ([]AggregateRow, error)
}

// ErrStoreUnavailable signals a missing or misconfigured backend.
var ErrStoreUnavailable = errors.New("event_store_unavailable")

// BackendError wraps a store failure with the backend identity attached. The
// underlying error is surfaced verbatim and remains matchable via errors.Is.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("event store %s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// WrapErr attaches backend identity to a store failure. Context cancellation
// passes through untouched so callers can match it directly.
func WrapErr(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &BackendError{Backend: backend, Err: err}
}
