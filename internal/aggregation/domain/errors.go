package domain

import (
	"errors"

	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

// Configuration errors are fatal and not retryable: they signal a broken
// charge or metric definition and must block invoicing for that charge.
var (
	ErrUnknownAggregation     = errors.New("unknown_aggregation_type")
	ErrUnsupportedCombination = errors.New("aggregation_not_supported_for_combination")
	ErrInvalidExpression      = errors.New("invalid_custom_expression")
	ErrInvalidWeightedInterval = errors.New("invalid_weighted_interval")
	ErrInvalidBoundaries      = errors.New("invalid_boundaries")
	ErrMissingFieldName       = errors.New("missing_field_name")
)

// ErrorKind classifies failures per the aggregation error taxonomy.
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindBackend       ErrorKind = "backend"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// Classify maps an aggregation failure onto the taxonomy. Data errors never
// surface as errors (affected events are excluded and counted), so only
// configuration and backend failures reach callers.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var backendErr *eventdomain.BackendError
	if errors.As(err, &backendErr) {
		return ErrorKindBackend
	}

	for _, configErr := range []error{
		ErrUnknownAggregation,
		ErrUnsupportedCombination,
		ErrInvalidExpression,
		ErrInvalidWeightedInterval,
		ErrInvalidBoundaries,
		ErrMissingFieldName,
	} {
		if errors.Is(err, configErr) {
			return ErrorKindConfiguration
		}
	}

	return ErrorKindUnknown
}
