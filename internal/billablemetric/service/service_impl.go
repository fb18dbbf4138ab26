package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	"github.com/smallbiznis/tarifa/internal/expression"
	"github.com/smallbiznis/tarifa/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Evaluator expression.Evaluator
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	evaluator expression.Evaluator

	repo repository.Repository[metricdomain.BillableMetric]
}

func NewService(p ServiceParam) metricdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billablemetric.service"),
		genID:     p.GenID,
		evaluator: p.Evaluator,

		repo: repository.ProvideStore[metricdomain.BillableMetric](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req metricdomain.CreateRequest) (*metricdomain.BillableMetric, error) {
	if req.OrgID == 0 {
		return nil, metricdomain.ErrInvalidCode
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, metricdomain.ErrInvalidCode
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, metricdomain.ErrInvalidName
	}

	aggregation, err := metricdomain.ParseAggregationType(req.AggregationType)
	if err != nil {
		return nil, err
	}

	fieldName := strings.TrimSpace(req.FieldName)
	if aggregation.RequiresField() && fieldName == "" {
		return nil, metricdomain.ErrInvalidFieldName
	}

	rounding, err := parseRounding(req.RoundingFunction)
	if err != nil {
		return nil, err
	}

	var weightedInterval *string
	if aggregation == metricdomain.AggregationWeightedSum {
		interval := metricdomain.WeightedIntervalSeconds
		if req.WeightedInterval != nil {
			interval = strings.TrimSpace(*req.WeightedInterval)
		}
		if interval != metricdomain.WeightedIntervalSeconds {
			return nil, metricdomain.ErrInvalidInterval
		}
		weightedInterval = &interval
	}

	exprSource := strings.TrimSpace(req.Expression)
	if aggregation == metricdomain.AggregationCustom {
		if err := s.evaluator.Validate(exprSource); err != nil {
			return nil, metricdomain.ErrInvalidExpression
		}
	}

	existing, err := s.repo.FindOne(ctx, &metricdomain.BillableMetric{OrgID: req.OrgID, Code: code})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, metricdomain.ErrDuplicateCode
	}

	now := time.Now().UTC()
	metric := &metricdomain.BillableMetric{
		ID:                s.genID.Generate(),
		OrgID:             req.OrgID,
		Code:              code,
		Name:              name,
		AggregationType:   aggregation,
		FieldName:         fieldName,
		Recurring:         req.Recurring,
		RoundingFunction:  rounding,
		RoundingPrecision: req.RoundingPrecision,
		WeightedInterval:  weightedInterval,
		Expression:        exprSource,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, metric); err != nil {
		return nil, err
	}
	return metric, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]metricdomain.BillableMetric, error) {
	items, err := s.repo.Find(ctx, &metricdomain.BillableMetric{OrgID: orgID})
	if err != nil {
		return nil, err
	}
	metrics := make([]metricdomain.BillableMetric, 0, len(items))
	for _, item := range items {
		metrics = append(metrics, *item)
	}
	return metrics, nil
}

func (s *Service) GetByCode(ctx context.Context, orgID snowflake.ID, code string) (*metricdomain.BillableMetric, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, metricdomain.ErrInvalidCode
	}

	metric, err := s.repo.FindOne(ctx, &metricdomain.BillableMetric{OrgID: orgID, Code: code})
	if err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, metricdomain.ErrMetricNotFound
	}
	return metric, nil
}

func (s *Service) Update(ctx context.Context, req metricdomain.UpdateRequest) (*metricdomain.BillableMetric, error) {
	metric, err := s.repo.FindOne(ctx, &metricdomain.BillableMetric{ID: req.ID, OrgID: req.OrgID})
	if err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, metricdomain.ErrMetricNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, metricdomain.ErrInvalidName
		}
		metric.Name = name
	}
	if req.FieldName != nil {
		fieldName := strings.TrimSpace(*req.FieldName)
		if metric.AggregationType.RequiresField() && fieldName == "" {
			return nil, metricdomain.ErrInvalidFieldName
		}
		metric.FieldName = fieldName
	}
	if req.RoundingFunction != nil {
		rounding, err := parseRounding(req.RoundingFunction)
		if err != nil {
			return nil, err
		}
		metric.RoundingFunction = rounding
	}
	if req.RoundingPrecision != nil {
		metric.RoundingPrecision = req.RoundingPrecision
	}
	if req.Expression != nil {
		exprSource := strings.TrimSpace(*req.Expression)
		if metric.AggregationType == metricdomain.AggregationCustom {
			if err := s.evaluator.Validate(exprSource); err != nil {
				return nil, metricdomain.ErrInvalidExpression
			}
		}
		metric.Expression = exprSource
	}

	metric.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, metric.ID.String(), metric); err != nil {
		return nil, err
	}
	return metric, nil
}

func (s *Service) Delete(ctx context.Context, orgID, metricID snowflake.ID) error {
	metric, err := s.repo.FindOne(ctx, &metricdomain.BillableMetric{ID: metricID, OrgID: orgID})
	if err != nil {
		return err
	}
	if metric == nil {
		return metricdomain.ErrMetricNotFound
	}
	return s.repo.Delete(ctx, metricID.String())
}

func parseRounding(value *string) (*metricdomain.RoundingFunction, error) {
	if value == nil {
		return nil, nil
	}
	switch fn := metricdomain.RoundingFunction(strings.TrimSpace(*value)); fn {
	case metricdomain.RoundingRound, metricdomain.RoundingCeil, metricdomain.RoundingFloor:
		return &fn, nil
	default:
		return nil, metricdomain.ErrInvalidRounding
	}
}
