package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/shopspring/decimal"
)

type SizeUnit string

const (
	SizeUnitAcres      SizeUnit = "acres"
	SizeUnitFrontage   SizeUnit = "frontage"
	SizeUnitSquareFeet SizeUnit = "squareFeet"
)

// CalculatedTotals is the valuation output cached on the assessment record.
type CalculatedTotals struct {
	MarketValue      decimal.Decimal `json:"market_value"`
	CurrentUseValue  decimal.Decimal `json:"current_use_value"`
	CurrentUseCredit decimal.Decimal `json:"current_use_credit"`
	AssessedValue    decimal.Decimal `json:"assessed_value"`
}

// LandAssessment is one parcel card's land record for one effective year.
// Superseded, never deleted, when the year is rolled forward.
type LandAssessment struct {
	ID             int               `gorm:"primary_key" json:"id"`
	MunicipalityId string            `gorm:"size:64;not null;index;index:uniq_parcel_year,unique" json:"municipality_id"`
	PropertyId     int               `gorm:"not null;index:uniq_parcel_year,unique" json:"property_id"`
	CardNumber     int               `gorm:"not null;default:1;index:uniq_parcel_year,unique" json:"card_number"`
	EffectiveYear  int               `gorm:"not null;index;index:uniq_parcel_year,unique" json:"effective_year"`
	ZoneCode       string            `gorm:"size:20;not null" json:"zone_code"`
	Lines          []*LandUseLine    `gorm:"foreignKey:LandAssessmentId" json:"lines"`
	Totals         *CalculatedTotals `gorm:"serializer:json" json:"calculated_totals"`
	LastCalculated *time.Time        `json:"last_calculated"`
	IsActive       *bool             `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// LandUseLine is a single land-use entry on the card: a sized piece of land
// with the descriptive attributes that select its valuation factors.
type LandUseLine struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	LandAssessmentId   int              `gorm:"not null;index" json:"land_assessment_id"`
	LineNumber         int              `gorm:"not null;default:1" json:"line_number"`
	LandUseType        string           `gorm:"size:100;not null" json:"land_use_type"`
	Size               decimal.Decimal  `gorm:"type:decimal(14,4);not null" json:"size"`
	SizeUnit           SizeUnit         `gorm:"size:15;not null;default:'acres'" json:"size_unit"`
	IsExcessAcreage    *bool            `gorm:"not null;default:false" json:"is_excess_acreage"`
	Neighborhood       string           `gorm:"size:20" json:"neighborhood"`
	Site               string           `gorm:"size:100" json:"site"`
	Driveway           string           `gorm:"size:100" json:"driveway"`
	Road               string           `gorm:"size:100" json:"road"`
	Topography         string           `gorm:"size:100" json:"topography"`
	ConditionPercent   *decimal.Decimal `gorm:"type:decimal(7,2)" json:"condition_percent"`
	IsCurrentUse       *bool            `gorm:"not null;default:false" json:"is_current_use"`
	CurrentUseCategory string           `gorm:"size:50" json:"current_use_category"`
	CurrentUseRate     *decimal.Decimal `gorm:"type:decimal(12,2)" json:"current_use_rate"`
	WaterBodyName      string           `gorm:"size:100" json:"water_body_name"`
	WaterFrontage      *decimal.Decimal `gorm:"type:decimal(14,4)" json:"water_frontage"`
	MarketValue        decimal.Decimal  `gorm:"type:decimal(14,2);not null;default:0" json:"market_value"`
	CurrentUseValue    decimal.Decimal  `gorm:"type:decimal(14,2);not null;default:0" json:"current_use_value"`
	AssessedValue      decimal.Decimal  `gorm:"type:decimal(14,2);not null;default:0" json:"assessed_value"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLandUseLine struct {
	LineNumber         int              `json:"line_number" binding:"gte=0"`
	LandUseType        string           `json:"land_use_type" binding:"required"`
	Size               decimal.Decimal  `json:"size"`
	SizeUnit           SizeUnit         `json:"size_unit" binding:"omitempty,oneof=acres frontage squareFeet"`
	IsExcessAcreage    *bool            `json:"is_excess_acreage"`
	Neighborhood       string           `json:"neighborhood"`
	Site               string           `json:"site"`
	Driveway           string           `json:"driveway"`
	Road               string           `json:"road"`
	Topography         string           `json:"topography"`
	ConditionPercent   *decimal.Decimal `json:"condition_percent"`
	IsCurrentUse       *bool            `json:"is_current_use"`
	CurrentUseCategory string           `json:"current_use_category"`
	CurrentUseRate     *decimal.Decimal `json:"current_use_rate"`
	WaterBodyName      string           `json:"water_body_name"`
	WaterFrontage      *decimal.Decimal `json:"water_frontage"`
}

type NewLandAssessment struct {
	PropertyId    int               `json:"property_id" binding:"required"`
	CardNumber    int               `json:"card_number" binding:"gte=0"`
	EffectiveYear int               `json:"effective_year" binding:"required"`
	ZoneCode      string            `json:"zone_code" binding:"required"`
	Lines         []*NewLandUseLine `json:"lines" binding:"dive"`
}

// CheckYearLock gates direct parcel edits on the record's own effective year.
func (a LandAssessment) CheckYearLock(ctx context.Context) error {
	return CheckYearNotLocked(ctx, a.MunicipalityId, a.EffectiveYear)
}

func (input *NewLandUseLine) toLine() *LandUseLine {
	sizeUnit := input.SizeUnit
	if sizeUnit == "" {
		sizeUnit = SizeUnitAcres
	}
	lineNumber := input.LineNumber
	if lineNumber == 0 {
		lineNumber = 1
	}
	return &LandUseLine{
		LineNumber:         lineNumber,
		LandUseType:        input.LandUseType,
		Size:               input.Size,
		SizeUnit:           sizeUnit,
		IsExcessAcreage:    input.IsExcessAcreage,
		Neighborhood:       input.Neighborhood,
		Site:               input.Site,
		Driveway:           input.Driveway,
		Road:               input.Road,
		Topography:         input.Topography,
		ConditionPercent:   input.ConditionPercent,
		IsCurrentUse:       input.IsCurrentUse,
		CurrentUseCategory: input.CurrentUseCategory,
		CurrentUseRate:     input.CurrentUseRate,
		WaterBodyName:      input.WaterBodyName,
		WaterFrontage:      input.WaterFrontage,
	}
}

func CreateLandAssessment(ctx context.Context, input *NewLandAssessment) (*LandAssessment, error) {

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
	assessment := LandAssessment{
		MunicipalityId: municipalityId,
		PropertyId:     input.PropertyId,
		CardNumber:     cardNumber,
		EffectiveYear:  input.EffectiveYear,
		ZoneCode:       input.ZoneCode,
		IsActive:       utils.NewTrue(),
	}
	for _, line := range input.Lines {
		assessment.Lines = append(assessment.Lines, line.toLine())
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&assessment).Error; err != nil {
		return nil, err
	}
	return &assessment, nil
}

func GetLandAssessment(ctx context.Context, id int) (*LandAssessment, error) {
	municipalityId, err := requireMunicipalityId(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[LandAssessment](ctx, municipalityId, id, "Lines")
}

// ListLandAssessments pages through a municipality's parcels for one year in
// stable id order; used by the batch recalculation loop.
func ListLandAssessments(ctx context.Context, municipalityId string, year int, afterId int, limit int) ([]*LandAssessment, error) {
	db := config.GetDB()
	var results []*LandAssessment
	err := db.WithContext(ctx).
		Preload("Lines").
		Where("municipality_id = ? AND effective_year = ? AND is_active = ?", municipalityId, year, true).
		Where("id > ?", afterId).
		Order("id ASC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateLandAssessmentLines(ctx context.Context, id int, lines []*NewLandUseLine) (*LandAssessment, error) {

	municipalityId, err := requireMunicipalityId(ctx)
	if err != nil {
		return nil, err
	}

	assessment, err := utils.FetchModelForChange[LandAssessment](ctx, municipalityId, id, "Lines")
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).
		Where("land_assessment_id = ?", assessment.ID).
		Delete(&LandUseLine{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	newLines := make([]*LandUseLine, 0, len(lines))
	for _, line := range lines {
		l := line.toLine()
		l.LandAssessmentId = assessment.ID
		newLines = append(newLines, l)
	}
	if len(newLines) > 0 {
		if err := tx.WithContext(ctx).Create(&newLines).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	assessment.Lines = newLines
	return assessment, nil
}

// SaveCalculatedTotals persists calculator output onto the assessment and its
// lines. The write is line-by-line but idempotent: re-running a calculation
// converges on the same stored values.
func SaveCalculatedTotals(ctx context.Context, assessment *LandAssessment, totals *CalculatedTotals) error {
	db := config.GetDB()
	now := time.Now().UTC()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(assessment).Updates(map[string]interface{}{
		"Totals":         totals,
		"LastCalculated": &now,
	}).Error; err != nil {
		tx.Rollback()
		return err
	}
	for _, line := range assessment.Lines {
		if line.ID == 0 {
			// redistribution can add an excess-acreage line that is not persisted yet
			line.LandAssessmentId = assessment.ID
			if err := tx.WithContext(ctx).Create(line).Error; err != nil {
				tx.Rollback()
				return err
			}
			continue
		}
		if err := tx.WithContext(ctx).Model(line).Updates(map[string]interface{}{
			"Size":            line.Size,
			"MarketValue":     line.MarketValue,
			"CurrentUseValue": line.CurrentUseValue,
			"AssessedValue":   line.AssessedValue,
		}).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

// ClearCalculatedValues wipes cached values ahead of a forced recalculation.
func ClearCalculatedValues(ctx context.Context, municipalityId string, year int) error {
	if municipalityId == "" {
		return errors.New("municipality id is required")
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&LandAssessment{}).
		Where("municipality_id = ? AND effective_year = ?", municipalityId, year).
		Updates(map[string]interface{}{"Totals": nil, "LastCalculated": nil}).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&LandUseLine{}).
		Where("land_assessment_id IN (?)",
			db.Model(&LandAssessment{}).Select("id").
				Where("municipality_id = ? AND effective_year = ?", municipalityId, year),
		).
		Updates(map[string]interface{}{
			"MarketValue":     decimal.Zero,
			"CurrentUseValue": decimal.Zero,
			"AssessedValue":   decimal.Zero,
		}).Error
}
