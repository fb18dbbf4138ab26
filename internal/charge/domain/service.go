package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service manages charge configuration.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Charge, error)
	ListByPlan(ctx context.Context, orgID, planID snowflake.ID) ([]Charge, error)
	Get(ctx context.Context, orgID, chargeID snowflake.ID) (*Charge, error)
	Delete(ctx context.Context, orgID, chargeID snowflake.ID) error
}

type CreateRequest struct {
	OrgID            snowflake.ID    `json:"organization_id,string"`
	PlanID           snowflake.ID    `json:"plan_id,string"`
	BillableMetricID snowflake.ID    `json:"billable_metric_id,string"`
	Model            string          `json:"charge_model"`
	Properties       map[string]any  `json:"properties,omitempty"`
	PayInAdvance     bool            `json:"pay_in_advance"`
	Prorated         bool            `json:"prorated"`
	Invoiceable      *bool           `json:"invoiceable,omitempty"`
	MinAmountCents   int64           `json:"min_amount_cents"`
	Currency         string          `json:"currency"`
	Filters          []FilterRequest `json:"filters,omitempty"`
}

type FilterRequest struct {
	InvoiceDisplayName string         `json:"invoice_display_name"`
	Values             map[string]any `json:"values"`
	Properties         map[string]any `json:"properties,omitempty"`
}

var (
	ErrInvalidPlan     = errors.New("invalid_plan")
	ErrInvalidMetric   = errors.New("invalid_billable_metric")
	ErrInvalidMinCents = errors.New("invalid_min_amount_cents")
	ErrEmptyFilter     = errors.New("empty_filter_values")
)
