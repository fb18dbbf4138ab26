package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service manages billable metric configuration.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*BillableMetric, error)
	List(ctx context.Context, orgID snowflake.ID) ([]BillableMetric, error)
	GetByCode(ctx context.Context, orgID snowflake.ID, code string) (*BillableMetric, error)
	Update(ctx context.Context, req UpdateRequest) (*BillableMetric, error)
	Delete(ctx context.Context, orgID, metricID snowflake.ID) error
}

type CreateRequest struct {
	OrgID             snowflake.ID `json:"organization_id,string"`
	Code              string       `json:"code"`
	Name              string       `json:"name"`
	AggregationType   string       `json:"aggregation_type"`
	FieldName         string       `json:"field_name"`
	Recurring         bool         `json:"recurring"`
	RoundingFunction  *string      `json:"rounding_function,omitempty"`
	RoundingPrecision *int32       `json:"rounding_precision,omitempty"`
	WeightedInterval  *string      `json:"weighted_interval,omitempty"`
	Expression        string       `json:"expression"`
}

type UpdateRequest struct {
	OrgID             snowflake.ID `json:"organization_id,string"`
	ID                snowflake.ID `json:"id,string"`
	Name              *string      `json:"name,omitempty"`
	FieldName         *string      `json:"field_name,omitempty"`
	RoundingFunction  *string      `json:"rounding_function,omitempty"`
	RoundingPrecision *int32       `json:"rounding_precision,omitempty"`
	Expression        *string      `json:"expression,omitempty"`
}

var (
	ErrInvalidCode       = errors.New("invalid_code")
	ErrInvalidName       = errors.New("invalid_name")
	ErrDuplicateCode     = errors.New("duplicate_code")
	ErrInvalidExpression = errors.New("invalid_expression")
	ErrInvalidInterval   = errors.New("invalid_weighted_interval")
)
