package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// IngestRequest carries one usage fact into the store.
type IngestRequest struct {
	TransactionID          string         `json:"transaction_id"`
	ExternalSubscriptionID string         `json:"external_subscription_id"`
	Code                   string         `json:"code"`
	Timestamp              time.Time      `json:"timestamp"`
	Properties             map[string]any `json:"properties,omitempty"`
}

// ListRequest filters raw events for inspection and debugging.
type ListRequest struct {
	ExternalSubscriptionID string `form:"external_subscription_id"`
	Code                   string `form:"code"`
	PageToken              string `form:"page_token"`
	PageSize               int    `form:"page_size"`
}

// ListResponse is a page of raw events.
type ListResponse struct {
	Events        []Event `json:"events"`
	NextPageToken string  `json:"next_page_token,omitempty"`
}

// Service accepts and lists usage events.
type Service interface {
	Ingest(ctx context.Context, orgID snowflake.ID, req IngestRequest) (*Event, error)
	BatchIngest(ctx context.Context, orgID snowflake.ID, reqs []IngestRequest) ([]*Event, error)
	List(ctx context.Context, orgID snowflake.ID, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidSubscription = errors.New("invalid_subscription")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrUnknownCode         = errors.New("unknown_code")
	ErrRateLimited         = errors.New("rate_limited")
	ErrEmptyBatch          = errors.New("empty_batch")
)
