// Package expression evaluates operator-supplied formulas against single
// events for the custom aggregation type. The language is restricted to
// what the compiler accepts against the event environment shape.
package expression

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/shopspring/decimal"
	eventdomain "github.com/smallbiznis/tarifa/internal/event/domain"
)

var (
	ErrEmptyExpression   = errors.New("empty_expression")
	ErrInvalidExpression = errors.New("invalid_expression")
	ErrNotNumeric        = errors.New("expression_result_not_numeric")
)

// Evaluator validates and evaluates a restricted expression language.
type Evaluator interface {
	Validate(source string) error
	Evaluate(source string, event eventdomain.Event) (decimal.Decimal, error)
}

type evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// New returns an evaluator with a per-source compilation cache.
func New() Evaluator {
	return &evaluator{programs: make(map[string]*vm.Program)}
}

type environment struct {
	Code       string         `expr:"code"`
	Timestamp  float64        `expr:"timestamp"`
	Properties map[string]any `expr:"properties"`
}

func (e *evaluator) Validate(source string) error {
	_, err := e.compile(source)
	return err
}

func (e *evaluator) Evaluate(source string, event eventdomain.Event) (decimal.Decimal, error) {
	program, err := e.compile(source)
	if err != nil {
		return decimal.Zero, err
	}

	properties := map[string]any(event.Properties)
	if properties == nil {
		properties = map[string]any{}
	}

	output, err := expr.Run(program, environment{
		Code:       event.Code,
		Timestamp:  float64(event.Timestamp.UnixMilli()) / 1000,
		Properties: properties,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNotNumeric, err)
	}

	return coerce(output)
}

func (e *evaluator) compile(source string) (*vm.Program, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptyExpression
	}

	e.mu.RLock()
	program, ok := e.programs[source]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(source, expr.Env(environment{}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	e.mu.Lock()
	e.programs[source] = program
	e.mu.Unlock()

	return program, nil
}

func coerce(output any) (decimal.Decimal, error) {
	switch typed := output.(type) {
	case float64:
		return decimal.NewFromFloat(typed), nil
	case float32:
		return decimal.NewFromFloat32(typed), nil
	case int:
		return decimal.NewFromInt(int64(typed)), nil
	case int64:
		return decimal.NewFromInt(typed), nil
	case string:
		value, err := decimal.NewFromString(strings.TrimSpace(typed))
		if err != nil {
			return decimal.Zero, ErrNotNumeric
		}
		return value, nil
	default:
		return decimal.Zero, ErrNotNumeric
	}
}
