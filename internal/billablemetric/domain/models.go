// Package domain contains configuration models for billable metrics.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// AggregationType names the algorithm reducing events to a billable quantity.
type AggregationType string

const (
	AggregationCount       AggregationType = "count_agg"
	AggregationSum         AggregationType = "sum_agg"
	AggregationUniqueCount AggregationType = "unique_count_agg"
	AggregationMax         AggregationType = "max_agg"
	AggregationLatest      AggregationType = "latest_agg"
	AggregationWeightedSum AggregationType = "weighted_sum_agg"
	AggregationCustom      AggregationType = "custom_agg"
)

// RoundingFunction names the rounding applied to the final aggregation.
type RoundingFunction string

const (
	RoundingRound RoundingFunction = "round"
	RoundingCeil  RoundingFunction = "ceil"
	RoundingFloor RoundingFunction = "floor"
)

// WeightedIntervalSeconds is the only supported weighted-sum interval unit.
const WeightedIntervalSeconds = "seconds"

// BillableMetric defines what is measured and how events reduce to a quantity.
type BillableMetric struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index:ux_billable_metrics_org_code,priority:1"`
	Code              string            `json:"code" gorm:"type:text;not null;index:ux_billable_metrics_org_code,priority:2"`
	Name              string            `json:"name" gorm:"type:text;not null"`
	AggregationType   AggregationType   `json:"aggregation_type" gorm:"type:text;not null"`
	FieldName         string            `json:"field_name" gorm:"type:text"`
	Recurring         bool              `json:"recurring" gorm:"not null;default:false"`
	RoundingFunction  *RoundingFunction `json:"rounding_function,omitempty" gorm:"type:text"`
	RoundingPrecision *int32            `json:"rounding_precision,omitempty" gorm:"type:integer"`
	WeightedInterval  *string           `json:"weighted_interval,omitempty" gorm:"type:text"`
	Expression        string            `json:"expression" gorm:"type:text"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillableMetric) TableName() string { return "billable_metrics" }

var (
	ErrInvalidAggregation = errors.New("invalid_aggregation_type")
	ErrInvalidFieldName   = errors.New("invalid_field_name")
	ErrInvalidRounding    = errors.New("invalid_rounding_function")
	ErrMetricNotFound     = errors.New("billable_metric_not_found")
)

// ParseAggregationType validates an aggregation type string.
func ParseAggregationType(value string) (AggregationType, error) {
	switch AggregationType(strings.TrimSpace(value)) {
	case AggregationCount:
		return AggregationCount, nil
	case AggregationSum:
		return AggregationSum, nil
	case AggregationUniqueCount:
		return AggregationUniqueCount, nil
	case AggregationMax:
		return AggregationMax, nil
	case AggregationLatest:
		return AggregationLatest, nil
	case AggregationWeightedSum:
		return AggregationWeightedSum, nil
	case AggregationCustom:
		return AggregationCustom, nil
	default:
		return "", ErrInvalidAggregation
	}
}

// RequiresField reports whether the aggregation reads a named event property.
func (t AggregationType) RequiresField() bool {
	switch t {
	case AggregationCount, AggregationCustom:
		return false
	default:
		return true
	}
}

// ApplyRounding applies the metric's configured rounding to a quantity.
// Quantities pass through untouched when no rounding is configured.
func (m BillableMetric) ApplyRounding(value decimal.Decimal) decimal.Decimal {
	if m.RoundingFunction == nil {
		return value
	}

	precision := int32(0)
	if m.RoundingPrecision != nil {
		precision = *m.RoundingPrecision
	}

	switch *m.RoundingFunction {
	case RoundingRound:
		return value.Round(precision)
	case RoundingCeil:
		return value.RoundCeil(precision)
	case RoundingFloor:
		return value.RoundFloor(precision)
	default:
		return value
	}
}
