package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const rolloverLockLifespan = 30 * time.Minute

// CreateAssessmentYearFrom rolls a municipality forward: the source year is
// locked, a new year row is created (unlocked, hidden until staff publish
// it), and every active assessment card and sketch is cloned to the new
// year. Configuration tables are NOT cloned: temporal resolution makes the
// new year inherit every head record, and edits there fork on demand.
func CreateAssessmentYearFrom(ctx context.Context, municipalityId string, sourceYear, newYear int) (*models.AssessmentYear, error) {

	if newYear <= sourceYear {
		return nil, fmt.Errorf("new year %d must follow source year %d", newYear, sourceYear)
	}

	logger := config.GetLogger()

	lock, err := utils.MunicipalityLock(ctx, municipalityId, "year_rollover", rolloverLockLifespan)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil {
			config.LogError(logger, "workflow", "CreateAssessmentYearFrom", "release lock", municipalityId, releaseErr)
		}
	}()

	if _, err := models.GetAssessmentYear(ctx, municipalityId, sourceYear); err != nil {
		return nil, err
	}
	if existing, err := models.GetAssessmentYear(ctx, municipalityId, newYear); err == nil && existing != nil {
		return nil, fmt.Errorf("assessment year %d already exists", newYear)
	}

	logger.WithFields(logrus.Fields{
		"municipality_id": municipalityId,
		"source_year":     sourceYear,
		"new_year":        newYear,
	}).Info("rollover.start")

	db := config.GetDB()
	var created *models.AssessmentYear
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created = &models.AssessmentYear{
			MunicipalityId: municipalityId,
			Year:           newYear,
			IsLocked:       utils.NewFalse(),
			IsHidden:       utils.NewTrue(),
			SourceYear:     &sourceYear,
		}
		if err := tx.Create(created).Error; err != nil {
			return err
		}

		if err := cloneAssessments(ctx, tx, municipalityId, sourceYear, newYear); err != nil {
			return err
		}
		if err := cloneSketchShapes(ctx, tx, municipalityId, sourceYear, newYear); err != nil {
			return err
		}

		description := fmt.Sprintf("created assessment year %d from %d", newYear, sourceYear)
		return models.CreateHistory(tx, "*ROLLOVER*", created.ID, "assessment_years", nil, created, description)
	})
	if err != nil {
		return nil, err
	}

	// Creating a year from a source always freezes the source.
	if _, err := models.LockYear(ctx, municipalityId, sourceYear); err != nil {
		return nil, err
	}

	if err := utils.RemoveSnapshotCache(municipalityId); err != nil {
		config.LogError(logger, "workflow", "CreateAssessmentYearFrom", "invalidate snapshot cache", municipalityId, err)
	}

	logger.WithFields(logrus.Fields{
		"municipality_id": municipalityId,
		"source_year":     sourceYear,
		"new_year":        newYear,
	}).Info("rollover.done")
	return created, nil
}

func cloneAssessments(ctx context.Context, tx *gorm.DB, municipalityId string, sourceYear, newYear int) error {

	var assessments []*models.LandAssessment
	err := tx.WithContext(ctx).
		Preload("Lines").
		Where("municipality_id = ? AND effective_year = ? AND is_active = ?", municipalityId, sourceYear, true).
		Order("id ASC").
		Find(&assessments).Error
	if err != nil {
		return err
	}

	for _, source := range assessments {
		clone := models.LandAssessment{
			MunicipalityId: municipalityId,
			PropertyId:     source.PropertyId,
			CardNumber:     source.CardNumber,
			EffectiveYear:  newYear,
			ZoneCode:       source.ZoneCode,
			IsActive:       utils.NewTrue(),
		}
		for _, line := range source.Lines {
			cloned := *line
			cloned.ID = 0
			cloned.LandAssessmentId = 0
			clone.Lines = append(clone.Lines, &cloned)
		}
		if err := tx.WithContext(ctx).Create(&clone).Error; err != nil {
			return fmt.Errorf("clone assessment property %d card %d: %w", source.PropertyId, source.CardNumber, err)
		}
	}
	return nil
}

func cloneSketchShapes(ctx context.Context, tx *gorm.DB, municipalityId string, sourceYear, newYear int) error {

	var shapes []*models.SketchShape
	err := tx.WithContext(ctx).
		Where("municipality_id = ? AND effective_year = ? AND is_active = ?", municipalityId, sourceYear, true).
		Order("id ASC").
		Find(&shapes).Error
	if err != nil {
		return err
	}

	for _, source := range shapes {
		clone := *source
		clone.ID = 0
		clone.EffectiveYear = newYear
		if err := tx.WithContext(ctx).Create(&clone).Error; err != nil {
			return fmt.Errorf("clone sketch shape %d: %w", source.ID, err)
		}
	}
	return nil
}
