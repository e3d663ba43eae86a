package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SketchSubAreaFactor weights a sketch sub-area's measured square footage into
// effective area. Living-space labels additionally roll into gross living area.
type SketchSubAreaFactor struct {
	ConfigBase
	TemporalRecord
	Label         string          `gorm:"size:50;not null;index:uniq_cfg,unique,priority:2" json:"label" binding:"required"`
	FactorPercent decimal.Decimal `gorm:"type:decimal(7,2);not null" json:"factor_percent"`
	IsLivingSpace *bool           `gorm:"not null;default:false" json:"is_living_space"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSketchSubAreaFactor struct {
	Label         string          `json:"label" binding:"required"`
	FactorPercent decimal.Decimal `json:"factor_percent" binding:"required"`
	IsLivingSpace *bool           `json:"is_living_space"`
	EffectiveYear int             `json:"effective_year" binding:"required"`
}

func (r *SketchSubAreaFactor) BusinessKey() string { return r.Label }

func (r *SketchSubAreaFactor) KeyCondition() (string, []interface{}) {
	return "label = ?", []interface{}{r.Label}
}

func CreateSketchSubAreaFactor(ctx context.Context, input *NewSketchSubAreaFactor) (*SketchSubAreaFactor, error) {
	record := SketchSubAreaFactor{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		Label:          input.Label,
		FactorPercent:  input.FactorPercent,
		IsLivingSpace:  input.IsLivingSpace,
	}
	if err := CreateConfigRecord[SketchSubAreaFactor](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
