package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service manages subscription lifecycle.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Subscription, error)
	GetByExternalID(ctx context.Context, orgID snowflake.ID, externalID string) (*Subscription, error)
	Terminate(ctx context.Context, orgID snowflake.ID, externalID string, at time.Time) (*Subscription, error)
	Cancel(ctx context.Context, orgID snowflake.ID, externalID string, at time.Time) (*Subscription, error)
}

type CreateRequest struct {
	OrgID      snowflake.ID   `json:"organization_id,string"`
	CustomerID snowflake.ID   `json:"customer_id,string"`
	ExternalID string         `json:"external_id"`
	PlanID     snowflake.ID   `json:"plan_id,string"`
	StartAt    time.Time      `json:"start_at"`
	EndAt      *time.Time     `json:"end_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var (
	ErrInvalidExternalID  = errors.New("invalid_external_id")
	ErrDuplicateExternal  = errors.New("duplicate_external_id")
	ErrAlreadyTerminated  = errors.New("subscription_already_terminated")
	ErrInvalidActiveRange = errors.New("invalid_active_range")
)
