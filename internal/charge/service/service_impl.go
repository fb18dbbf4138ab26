package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
	chargedomain "github.com/smallbiznis/tarifa/internal/charge/domain"
	"github.com/smallbiznis/tarifa/internal/pricing"
	"github.com/smallbiznis/tarifa/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	metricRepo repository.Repository[metricdomain.BillableMetric]
}

func NewService(p ServiceParam) chargedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("charge.service"),
		genID: p.GenID,

		metricRepo: repository.ProvideStore[metricdomain.BillableMetric](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req chargedomain.CreateRequest) (*chargedomain.Charge, error) {
	if req.PlanID == 0 {
		return nil, chargedomain.ErrInvalidPlan
	}
	if req.MinAmountCents < 0 {
		return nil, chargedomain.ErrInvalidMinCents
	}

	model, err := chargedomain.ParseChargeModel(req.Model)
	if err != nil {
		return nil, err
	}

	properties := datatypes.JSONMap(req.Properties)
	if err := pricing.ValidateProperties(model, properties); err != nil {
		return nil, err
	}

	metric, err := s.metricRepo.FindOne(ctx, &metricdomain.BillableMetric{
		ID:    req.BillableMetricID,
		OrgID: req.OrgID,
	})
	if err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, chargedomain.ErrInvalidMetric
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	invoiceable := true
	if req.Invoiceable != nil {
		invoiceable = *req.Invoiceable
	}

	now := time.Now().UTC()
	charge := &chargedomain.Charge{
		ID:               s.genID.Generate(),
		OrgID:            req.OrgID,
		PlanID:           req.PlanID,
		BillableMetricID: metric.ID,
		Model:            model,
		Properties:       properties,
		PayInAdvance:     req.PayInAdvance,
		Prorated:         req.Prorated,
		Invoiceable:      invoiceable,
		MinAmountCents:   req.MinAmountCents,
		Currency:         currency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for _, filter := range req.Filters {
		if len(filter.Values) == 0 {
			return nil, chargedomain.ErrEmptyFilter
		}
		filterProps := datatypes.JSONMap(filter.Properties)
		if len(filterProps) > 0 {
			merged := make(datatypes.JSONMap, len(properties)+len(filterProps))
			for k, v := range properties {
				merged[k] = v
			}
			for k, v := range filterProps {
				merged[k] = v
			}
			if err := pricing.ValidateProperties(model, merged); err != nil {
				return nil, err
			}
		}
		charge.Filters = append(charge.Filters, chargedomain.Filter{
			ID:                 s.genID.Generate(),
			OrgID:              req.OrgID,
			ChargeID:           charge.ID,
			InvoiceDisplayName: strings.TrimSpace(filter.InvoiceDisplayName),
			Values:             datatypes.JSONMap(filter.Values),
			Properties:         filterProps,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}

	if err := s.db.WithContext(ctx).Create(charge).Error; err != nil {
		return nil, err
	}
	return charge, nil
}

func (s *Service) ListByPlan(ctx context.Context, orgID, planID snowflake.ID) ([]chargedomain.Charge, error) {
	var charges []chargedomain.Charge
	err := s.db.WithContext(ctx).
		Preload("Filters").
		Where("org_id = ? AND plan_id = ?", orgID, planID).
		Order("id ASC").
		Find(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

func (s *Service) Get(ctx context.Context, orgID, chargeID snowflake.ID) (*chargedomain.Charge, error) {
	var charge chargedomain.Charge
	err := s.db.WithContext(ctx).
		Preload("Filters").
		Where("org_id = ? AND id = ?", orgID, chargeID).
		First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, chargedomain.ErrChargeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (s *Service) Delete(ctx context.Context, orgID, chargeID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("org_id = ? AND id = ?", orgID, chargeID).Delete(&chargedomain.Charge{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return chargedomain.ErrChargeNotFound
		}
		return tx.Where("org_id = ? AND charge_id = ?", orgID, chargeID).Delete(&chargedomain.Filter{}).Error
	})
}
