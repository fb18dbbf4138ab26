// Package domain contains the read-only subscription contract consumed by
// aggregation and rating. Subscription lifecycle management lives outside
// this service.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus tracks the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusTerminated SubscriptionStatus = "terminated"
)

// Subscription is the billing-relevant projection of a customer subscription.
type Subscription struct {
	ID         snowflake.ID       `gorm:"primaryKey"`
	OrgID      snowflake.ID       `gorm:"not null;index;uniqueIndex:idx_subscriptions_org_external"`
	CustomerID snowflake.ID       `gorm:"not null;index"`
	ExternalID string             `gorm:"type:text;not null;uniqueIndex:idx_subscriptions_org_external"`
	PlanID     snowflake.ID       `gorm:"not null;index"`
	Status     SubscriptionStatus `gorm:"type:text;not null"`
	StartAt    time.Time          `gorm:"not null"`
	EndAt      *time.Time         `gorm:""`
	CanceledAt *time.Time         `gorm:""`
	Metadata   datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
)

// ActiveWindow returns the instant the subscription became active and the
// instant it stopped being active, if any. Cancellation wins over a scheduled
// end date when it happens first.
func (s Subscription) ActiveWindow() (time.Time, *time.Time) {
	end := s.EndAt
	if s.CanceledAt != nil && (end == nil || s.CanceledAt.Before(*end)) {
		end = s.CanceledAt
	}
	return s.StartAt, end
}
