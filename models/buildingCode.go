package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BuildingCode is the base construction-class table. Rate and points feed the
// building side of the valuation; the code letters are the business key across
// the version chain.
type BuildingCode struct {
	ConfigBase
	TemporalRecord
	Code          string          `gorm:"size:10;not null;index:uniq_cfg,unique,priority:2" json:"code" binding:"required"`
	Description   string          `gorm:"size:255" json:"description"`
	BaseRate      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"base_rate"`
	QualityPoints int             `gorm:"not null;default:0" json:"quality_points"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBuildingCode struct {
	Code          string          `json:"code" binding:"required"`
	Description   string          `json:"description"`
	BaseRate      decimal.Decimal `json:"base_rate" binding:"required"`
	QualityPoints int             `json:"quality_points" binding:"gte=0,lte=200"`
	EffectiveYear int             `json:"effective_year" binding:"required"`
}

func (r *BuildingCode) BusinessKey() string { return r.Code }

func (r *BuildingCode) KeyCondition() (string, []interface{}) {
	return "code = ?", []interface{}{r.Code}
}

func CreateBuildingCode(ctx context.Context, input *NewBuildingCode) (*BuildingCode, error) {
	record := BuildingCode{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		Code:           input.Code,
		Description:    input.Description,
		BaseRate:       input.BaseRate,
		QualityPoints:  input.QualityPoints,
	}
	if err := CreateConfigRecord[BuildingCode](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
