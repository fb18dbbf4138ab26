package strategy

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// fakeStore is a pure in-memory event store used to exercise strategies
// without a database.
type fakeStore struct {
	events []eventdomain.Event
}

func (s *fakeStore) Name() string { return "fake" }

func (s *fakeStore) matching(scope eventdomain.Scope, from, to time.Time, bounded bool) []eventdomain.Event {
	var out []eventdomain.Event
	for _, event := range s.events {
		if bounded && (event.Timestamp.Before(from) || !event.Timestamp.Before(to)) {
			continue
		}
		if !bounded && !event.Timestamp.Before(to) {
			continue
		}
		if !scopeMatches(scope, event) {
			continue
		}
		out = append(out, event)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func scopeMatches(scope eventdomain.Scope, event eventdomain.Event) bool {
	for dim, values := range scope.Filters {
		actual, _ := event.PropertyString(dim)
		if !contains(values, actual) {
			return false
		}
	}
	for _, excluded := range scope.ExcludeFilters {
		all := len(excluded) > 0
		for dim, values := range excluded {
			actual, _ := event.PropertyString(dim)
			if !contains(values, actual) {
				all = false
				break
			}
		}
		if all {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func (s *fakeStore) Aggregate(_ context.Context, scope eventdomain.Scope, window eventdomain.Window, op eventdomain.AggregateOp) ([]eventdomain.AggregateRow, error) {
	events := s.matching(scope, window.From, window.To, true)
	return foldRows(scope, events, op), nil
}

func (s *fakeStore) SumBefore(_ context.Context, scope eventdomain.Scope, before time.Time) ([]eventdomain.AggregateRow, error) {
	events := s.matching(scope, time.Time{}, before, false)
	return foldRows(scope, events, eventdomain.OpSum), nil
}

func (s *fakeStore) ListOrdered(_ context.Context, scope eventdomain.Scope, window eventdomain.Window) ([]eventdomain.Event, error) {
	return s.matching(scope, window.From, window.To, true), nil
}

func foldRows(scope eventdomain.Scope, events []eventdomain.Event, op eventdomain.AggregateOp) []eventdomain.AggregateRow {
	byGroup := make(map[eventdomain.GroupKey]*eventdomain.AggregateRow)
	var order []eventdomain.GroupKey

	row := func(group eventdomain.GroupKey) *eventdomain.AggregateRow {
		if existing, ok := byGroup[group]; ok {
			return existing
		}
		created := &eventdomain.AggregateRow{Group: group}
		byGroup[group] = created
		order = append(order, group)
		return created
	}

	if len(scope.GroupBy) == 0 && op != eventdomain.OpLatest {
		row(eventdomain.GroupKey{})
	}

	for _, event := range events {
		r := row(event.GroupKeyFor(scope.GroupBy))
		r.Count++

		if op == eventdomain.OpCount {
			r.Value = r.Value.Add(decimal.NewFromInt(1))
			continue
		}

		value, ok := event.PropertyDecimal(scope.FieldName)
		if !ok {
			r.InvalidCount++
			continue
		}
		switch op {
		case eventdomain.OpSum:
			r.Value = r.Value.Add(value)
		case eventdomain.OpMax:
			if value.GreaterThan(r.Value) {
				r.Value = value
			}
		case eventdomain.OpLatest:
			r.Value = value
		}
	}

	out := make([]eventdomain.AggregateRow, 0, len(order))
	for _, group := range order {
		out = append(out, *byGroup[group])
	}
	return out
}

var fakeEventID snowflake.ID

func fakeEvent(ts time.Time, props map[string]any) eventdomain.Event {
	fakeEventID++
	return eventdomain.Event{
		ID:         fakeEventID,
		OrgID:      snowflake.ID(1001),
		Code:       "api_call",
		Timestamp:  ts,
		Properties: datatypes.JSONMap(props),
	}
}
