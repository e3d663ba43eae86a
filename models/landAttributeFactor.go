package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type LandAttributeKind string

const (
	LandAttributeSite       LandAttributeKind = "site"
	LandAttributeDriveway   LandAttributeKind = "driveway"
	LandAttributeRoad       LandAttributeKind = "road"
	LandAttributeTopography LandAttributeKind = "topography"
)

// LandAttributeFactor covers the descriptive land adjustments (site condition,
// driveway, road type, topography) in one table; Kind + DisplayText is the
// business key. Percent 100 = neutral.
type LandAttributeFactor struct {
	ConfigBase
	TemporalRecord
	Kind        LandAttributeKind `gorm:"size:20;not null;index:uniq_cfg,unique,priority:2" json:"kind" binding:"required"`
	DisplayText string            `gorm:"size:100;not null;index:uniq_cfg,unique,priority:3" json:"display_text" binding:"required"`
	Percent     decimal.Decimal   `gorm:"type:decimal(7,2);not null;default:100" json:"percent"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLandAttributeFactor struct {
	Kind          LandAttributeKind `json:"kind" binding:"required,oneof=site driveway road topography"`
	DisplayText   string            `json:"display_text" binding:"required"`
	Percent       decimal.Decimal   `json:"percent" binding:"required"`
	EffectiveYear int               `json:"effective_year" binding:"required"`
}

func (r *LandAttributeFactor) BusinessKey() string {
	return fmt.Sprintf("%s#%s", r.Kind, r.DisplayText)
}

func (r *LandAttributeFactor) KeyCondition() (string, []interface{}) {
	return "kind = ? AND display_text = ?", []interface{}{r.Kind, r.DisplayText}
}

func CreateLandAttributeFactor(ctx context.Context, input *NewLandAttributeFactor) (*LandAttributeFactor, error) {
	record := LandAttributeFactor{
		TemporalRecord: TemporalRecord{EffectiveYear: input.EffectiveYear},
		Kind:           input.Kind,
		DisplayText:    input.DisplayText,
		Percent:        input.Percent,
	}
	if err := CreateConfigRecord[LandAttributeFactor](ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
