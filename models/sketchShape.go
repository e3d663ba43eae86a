package models

import (
	"context"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/shopspring/decimal"
)

// SketchShape is one drawn polygon on a parcel card's building sketch. The
// sub-area label ties the shape to a SketchSubAreaFactor for the card's year.
type SketchShape struct {
	ID             int             `gorm:"primary_key" json:"id"`
	MunicipalityId string          `gorm:"size:64;not null;index" json:"municipality_id"`
	PropertyId     int             `gorm:"not null;index:idx_sketch_parcel" json:"property_id"`
	CardNumber     int             `gorm:"not null;default:1;index:idx_sketch_parcel" json:"card_number"`
	EffectiveYear  int             `gorm:"not null;index:idx_sketch_parcel" json:"effective_year"`
	SubAreaLabel   string          `gorm:"size:30;not null" json:"sub_area_label"`
	Area           decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"area"`
	Perimeter      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"perimeter"`
	Points         string          `gorm:"type:text" json:"points"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSketchShape struct {
	PropertyId    int             `json:"property_id" binding:"required"`
	CardNumber    int             `json:"card_number" binding:"gte=0"`
	EffectiveYear int             `json:"effective_year" binding:"required"`
	SubAreaLabel  string          `json:"sub_area_label" binding:"required"`
	Area          decimal.Decimal `json:"area"`
	Perimeter     decimal.Decimal `json:"perimeter"`
	Points        string          `json:"points"`
}

func (s SketchShape) CheckYearLock(ctx context.Context) error {
	return CheckYearNotLocked(ctx, s.MunicipalityId, s.EffectiveYear)
}

func CreateSketchShape(ctx context.Context, input *NewSketchShape) (*SketchShape, error) {

	municipalityId, err := requireMunicipalityId(ctx)
	if err != nil {
		return nil, err
	}

	if err := CheckYearNotLocked(ctx, municipalityId, input.EffectiveYear); err != nil {
		return nil, err
	}

	cardNumber := input.CardNumber
	if cardNumber == 0 {
		cardNumber = 1
	}

	// shapes only attach to an existing assessment card
	count, err := utils.ResourceCountWhere[LandAssessment](ctx, municipalityId,
		"property_id = ? AND card_number = ? AND effective_year = ? AND is_active = ?",
		input.PropertyId, cardNumber, input.EffectiveYear, true)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	shape := SketchShape{
		MunicipalityId: municipalityId,
		PropertyId:     input.PropertyId,
		CardNumber:     cardNumber,
		EffectiveYear:  input.EffectiveYear,
		SubAreaLabel:   input.SubAreaLabel,
		Area:           input.Area,
		Perimeter:      input.Perimeter,
		Points:         input.Points,
		IsActive:       utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&shape).Error; err != nil {
		return nil, err
	}
	return &shape, nil
}

func DeleteSketchShape(ctx context.Context, id int) error {
	municipalityId, err := requireMunicipalityId(ctx)
	if err != nil {
		return err
	}
	shape, err := utils.FetchModelForChange[SketchShape](ctx, municipalityId, id)
	if err != nil {
		return err
	}
	db := config.GetDB()
	return db.WithContext(ctx).Delete(shape).Error
}

// ListSketchShapes returns all active shapes for one parcel card and year.
func ListSketchShapes(ctx context.Context, municipalityId string, propertyId int, cardNumber int, year int) ([]*SketchShape, error) {
	db := config.GetDB()
	var shapes []*SketchShape
	err := db.WithContext(ctx).
		Where("municipality_id = ? AND property_id = ? AND card_number = ? AND effective_year = ? AND is_active = ?",
			municipalityId, propertyId, cardNumber, year, true).
		Order("id ASC").
		Find(&shapes).Error
	if err != nil {
		return nil, err
	}
	return shapes, nil
}
