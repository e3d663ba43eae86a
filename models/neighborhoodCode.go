package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// NeighborhoodCode scales land value by location quality. Percent is stored as
// configured (100 = neutral).
type NeighborhoodCode struct {
	ConfigBase
	TemporalRecord
	Code        string          `gorm:"size:20;not null;index:uniq_cfg,unique,priority:2" json:"code" binding:"required"`
	Description string          `gorm:"size:255" json:"description"`
	Percent     decimal.Decimal `gorm:"type:decimal(7,2);not null;default:100" json:"percent"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewNeighborhoodCode struct {
	Code          string          `json:"code" binding:"required"`
	Description   string          `json:"description"`
	Percent       decimal.Decimal `json:"percent" binding:"required"`
	EffectiveYear int             `json:"effective_year" binding:"required"`
}

func (r *NeighborhoodCode) BusinessKey() string { return r.Code }

func (r *NeighborhoodCode) KeyCondition() (string, []interface{}) {
	return "code = ?", []interface{}{r.Code}
}

func CreateNeighborhoodCode(ctx context.Context, input *NewNeighborhoodCode) (*NeighborhoodCode, error) {
	record := NeighborhoodCode{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		Code:           input.Code,
		Description:    input.Description,
		Percent:        input.Percent,
	}
	if err := CreateConfigRecord[NeighborhoodCode](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
