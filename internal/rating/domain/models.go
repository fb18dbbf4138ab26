// Package domain contains the rating contract and its persistence models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	aggregationdomain "github.com/smallbiznis/tarifa/internal/aggregation/domain"
	chargedomain "github.com/smallbiznis/tarifa/internal/charge/domain"
	"github.com/smallbiznis/tarifa/internal/pricing"
)

// RatedCharge is one priced usage line written at the close of a billing
// period. Checksum makes re-runs idempotent: the same charge, filter and
// window always produce the same row.
type RatedCharge struct {
	ID                     snowflake.ID    `gorm:"primaryKey"`
	OrgID                  snowflake.ID    `gorm:"not null;index"`
	SubscriptionID         snowflake.ID    `gorm:"not null;index:ix_rated_charges_period,priority:1"`
	ChargeID               snowflake.ID    `gorm:"not null;index"`
	BillableMetricID       snowflake.ID    `gorm:"not null"`
	ChargeFilterID         *snowflake.ID   `gorm:"index"`
	Units                  decimal.Decimal `gorm:"type:numeric;not null"`
	FullUnits              decimal.Decimal `gorm:"type:numeric;not null"`
	AmountCents            int64           `gorm:"not null"`
	UnitAmount             decimal.Decimal `gorm:"type:numeric;not null"`
	Currency               string          `gorm:"type:text;not null"`
	EventsCount            int64           `gorm:"not null"`
	InvalidEventsCount     int64           `gorm:"not null"`
	PeriodStart            time.Time       `gorm:"not null;index:ix_rated_charges_period,priority:2"`
	PeriodEnd              time.Time       `gorm:"not null"`
	Checksum               string          `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt              time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RatedCharge) TableName() string { return "rated_charges" }

// ChargeUsage is the in-memory outcome of rating one charge scope: the
// aggregation result paired with the priced fee. FilterID is nil for the
// charge's default scope.
type ChargeUsage struct {
	Charge      chargedomain.Charge
	FilterID    *snowflake.ID
	DisplayName string
	Result      *aggregationdomain.Result
	Fee         pricing.Fee
	AmountCents int64
}
