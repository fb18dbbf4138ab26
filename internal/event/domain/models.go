// Package domain contains the event model and the event-store contract that
// aggregation strategies execute against.
package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Default property names for set-membership aggregations.
const (
	PropertyOperationType = "operation_type"
	OperationAdd          = "add"
	OperationRemove       = "remove"
)

// Event is an immutable usage fact. Events are appended by ingestion and are
// never rewritten for a closed billing period.
type Event struct {
	ID                     snowflake.ID      `gorm:"primaryKey"`
	TransactionID          string            `gorm:"type:text;not null;index"`
	OrgID                  snowflake.ID      `gorm:"not null;index:ix_events_scope,priority:1"`
	ExternalSubscriptionID string            `gorm:"type:text;not null;index:ix_events_scope,priority:2"`
	Code                   string            `gorm:"type:text;not null;index:ix_events_scope,priority:3"`
	Timestamp              time.Time         `gorm:"not null;index:ix_events_scope,priority:4"`
	Properties             datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt              time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "events" }

// NewTransactionID mints a sortable event transaction id.
func NewTransactionID() string {
	return ulid.Make().String()
}

// PropertyString returns the named property as a string.
func (e Event) PropertyString(name string) (string, bool) {
	if e.Properties == nil {
		return "", false
	}
	raw, ok := e.Properties[name]
	if !ok || raw == nil {
		return "", false
	}
	switch typed := raw.(type) {
	case string:
		return typed, true
	case float64:
		return decimal.NewFromFloat(typed).String(), true
	case int64:
		return decimal.NewFromInt(typed).String(), true
	case int:
		return decimal.NewFromInt(int64(typed)).String(), true
	default:
		return "", false
	}
}

// PropertyDecimal returns the named property coerced to a decimal. Missing or
// non-numeric values report ok=false so callers can exclude the event instead
// of failing the whole aggregation.
func (e Event) PropertyDecimal(name string) (decimal.Decimal, bool) {
	raw, ok := e.PropertyString(name)
	if !ok {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// OperationType returns the event's set-membership operation, defaulting to add.
func (e Event) OperationType() string {
	raw, ok := e.PropertyString(PropertyOperationType)
	if !ok {
		return OperationAdd
	}
	op := strings.ToLower(strings.TrimSpace(raw))
	if op != OperationRemove {
		return OperationAdd
	}
	return OperationRemove
}

// GroupKeyFor builds the event's grouping key over the given dimensions.
// Events missing a dimension carry an empty value for it.
func (e Event) GroupKeyFor(dimensions []string) GroupKey {
	if len(dimensions) == 0 {
		return GroupKey{}
	}
	values := make(map[string]string, len(dimensions))
	for _, dim := range dimensions {
		value, _ := e.PropertyString(dim)
		values[dim] = value
	}
	return NewGroupKey(values)
}

// GroupKey identifies one grouping-dimension combination. The zero value is
// the ungrouped key. Keys are comparable and safe as map indexes.
type GroupKey struct {
	encoded string
}

// NewGroupKey canonicalizes a dimension-value map into a comparable key.
func NewGroupKey(values map[string]string) GroupKey {
	if len(values) == 0 {
		return GroupKey{}
	}
	dims := make([]string, 0, len(values))
	for dim := range values {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	parts := make([]string, 0, len(dims))
	for _, dim := range dims {
		parts = append(parts, dim+"="+values[dim])
	}
	return GroupKey{encoded: strings.Join(parts, "\x1f")}
}

// IsZero reports whether the key is the ungrouped key.
func (k GroupKey) IsZero() bool { return k.encoded == "" }

// Values decodes the key back into its dimension-value map.
func (k GroupKey) Values() map[string]string {
	if k.encoded == "" {
		return nil
	}
	parts := strings.Split(k.encoded, "\x1f")
	values := make(map[string]string, len(parts))
	for _, part := range parts {
		dim, value, _ := strings.Cut(part, "=")
		values[dim] = value
	}
	return values
}

// String renders the key for logs and breakdown labels.
func (k GroupKey) String() string {
	return strings.ReplaceAll(k.encoded, "\x1f", ", ")
}
