// Package domain contains configuration models attaching billable metrics to plans.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ChargeModel names the pricing computation applied to an aggregated quantity.
type ChargeModel string

const (
	ModelStandard   ChargeModel = "standard"
	ModelPackage    ChargeModel = "package"
	ModelGraduated  ChargeModel = "graduated"
	ModelVolume     ChargeModel = "volume"
	ModelPercentage ChargeModel = "percentage"
)

// Charge links a billable metric to a plan with a pricing configuration.
type Charge struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index"`
	PlanID           snowflake.ID      `json:"plan_id" gorm:"not null;index"`
	BillableMetricID snowflake.ID      `json:"billable_metric_id" gorm:"not null;index"`
	Model            ChargeModel       `json:"charge_model" gorm:"column:charge_model;type:text;not null"`
	Properties       datatypes.JSONMap `json:"properties" gorm:"type:jsonb"`
	PayInAdvance     bool              `json:"pay_in_advance" gorm:"not null;default:false"`
	Prorated         bool              `json:"prorated" gorm:"not null;default:false"`
	Instant          bool              `json:"instant" gorm:"not null;default:false"`
	Invoiceable      bool              `json:"invoiceable" gorm:"not null;default:true"`
	MinAmountCents   int64             `json:"min_amount_cents" gorm:"not null;default:0"`
	Currency         string            `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Filters          []Filter          `json:"filters,omitempty" gorm:"foreignKey:ChargeID"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Charge) TableName() string { return "charges" }

// Filter is a dimension-scoped override of the charge's pricing properties.
// Events whose grouping dimensions match Values are priced with Properties
// instead of the charge defaults.
type Filter struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index"`
	ChargeID   snowflake.ID      `json:"charge_id" gorm:"not null;index"`
	InvoiceDisplayName string    `json:"invoice_display_name" gorm:"type:text"`
	Values     datatypes.JSONMap `json:"values" gorm:"type:jsonb"`
	Properties datatypes.JSONMap `json:"properties" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Filter) TableName() string { return "charge_filters" }

var (
	ErrInvalidChargeModel = errors.New("invalid_charge_model")
	ErrChargeNotFound     = errors.New("charge_not_found")
)

// ParseChargeModel validates a charge model string.
func ParseChargeModel(value string) (ChargeModel, error) {
	switch ChargeModel(strings.TrimSpace(value)) {
	case ModelStandard:
		return ModelStandard, nil
	case ModelPackage:
		return ModelPackage, nil
	case ModelGraduated:
		return ModelGraduated, nil
	case ModelVolume:
		return ModelVolume, nil
	case ModelPercentage:
		return ModelPercentage, nil
	default:
		return "", ErrInvalidChargeModel
	}
}

// DimensionValues flattens the filter's value map into event-store conditions.
// Map values may be a single string or a list of accepted strings.
func (f Filter) DimensionValues() map[string][]string {
	out := make(map[string][]string, len(f.Values))
	for key, raw := range f.Values {
		switch typed := raw.(type) {
		case string:
			out[key] = []string{typed}
		case []any:
			values := make([]string, 0, len(typed))
			for _, item := range typed {
				if s, ok := item.(string); ok {
					values = append(values, s)
				}
			}
			if len(values) > 0 {
				out[key] = values
			}
		}
	}
	return out
}
