package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize   = 100
	maxCapturedErrors  = 50
	recalcLockLifespan = 30 * time.Minute
)

// RecalculationOptions mirrors the recalculation request body.
type RecalculationOptions struct {
	BatchSize        int  `json:"batch_size"`
	ForceClearValues bool `json:"force_clear_values"`
	Save             bool `json:"save"`
}

// RecalculationSummary is the partial-success report of one batch run. A run
// never aborts on a bad parcel; it finishes and reports, with the error list
// capped so a systemically broken configuration cannot balloon the row.
type RecalculationSummary struct {
	Processed    int                   `json:"processed"`
	Updated      int                   `json:"updated"`
	Errors       int                   `json:"errors"`
	ErrorDetails []*models.ParcelError `json:"error_details"`
}

func (s *RecalculationSummary) capture(propertyId, cardNumber int, message string) {
	s.Errors++
	if len(s.ErrorDetails) < maxCapturedErrors {
		s.ErrorDetails = append(s.ErrorDetails, &models.ParcelError{
			PropertyId: propertyId,
			CardNumber: cardNumber,
			Message:    message,
		})
	}
}

// RunRecalculation revalues every active assessment of (municipality, year)
// in bounded batches. One redis lock per municipality keeps concurrent runs
// from interleaving; within the run each parcel is an independent
// read-calculate-write, so a rerun after any failure converges on the same
// values.
func RunRecalculation(ctx context.Context, municipalityId string, year int, opts RecalculationOptions) (*RecalculationSummary, error) {

	logger := config.GetLogger()

	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	lock, err := utils.MunicipalityLock(ctx, municipalityId, "recalculation", recalcLockLifespan)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil {
			config.LogError(logger, "workflow", "RunRecalculation", "release lock", municipalityId, releaseErr)
		}
	}()

	logger.WithFields(logrus.Fields{
		"municipality_id": municipalityId,
		"year":            year,
		"batch_size":      opts.BatchSize,
		"force_clear":     opts.ForceClearValues,
		"save":            opts.Save,
	}).Info("recalc.start")

	if opts.ForceClearValues && opts.Save {
		if err := models.ClearCalculatedValues(ctx, municipalityId, year); err != nil {
			return nil, err
		}
	}

	snapshot, err := models.GetResolvedSnapshot(ctx, municipalityId, year)
	if err != nil {
		return nil, err
	}

	summary := &RecalculationSummary{}
	afterId := 0
	for {
		batch, err := models.ListLandAssessments(ctx, municipalityId, year, afterId, opts.BatchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		afterId = batch[len(batch)-1].ID

		for _, assessment := range batch {
			summary.Processed++
			if err := recalculateOne(ctx, assessment, snapshot, opts.Save, summary); err != nil {
				summary.capture(assessment.PropertyId, assessment.CardNumber, err.Error())
			}
		}
	}

	if opts.Save {
		if err := updateYearTotals(ctx, municipalityId, year); err != nil {
			config.LogError(logger, "workflow", "RunRecalculation", "update year totals", municipalityId, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"municipality_id": municipalityId,
		"year":            year,
		"processed":       summary.Processed,
		"updated":         summary.Updated,
		"errors":          summary.Errors,
	}).Info("recalc.done")
	return summary, nil
}

func recalculateOne(ctx context.Context, assessment *models.LandAssessment, snapshot *models.ResolvedSnapshot, save bool, summary *RecalculationSummary) error {

	result := Calculate(assessment, snapshot)
	for _, warning := range result.Warnings {
		summary.capture(assessment.PropertyId, assessment.CardNumber, warning)
	}

	if !save {
		return nil
	}

	totals := result.Totals
	if err := models.SaveCalculatedTotals(ctx, assessment, &totals); err != nil {
		return fmt.Errorf("persist totals: %w", err)
	}
	summary.Updated++
	return nil
}

// updateYearTotals refreshes the cached municipality-wide rollup on the
// assessment year row.
func updateYearTotals(ctx context.Context, municipalityId string, year int) error {

	totals := models.YearTotals{}
	afterId := 0
	for {
		batch, err := models.ListLandAssessments(ctx, municipalityId, year, afterId, defaultBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		afterId = batch[len(batch)-1].ID
		for _, assessment := range batch {
			totals.ParcelCount++
			if assessment.Totals == nil {
				continue
			}
			totals.LandValue = totals.LandValue.Add(assessment.Totals.MarketValue)
			totals.CurrentUseCredit = totals.CurrentUseCredit.Add(assessment.Totals.CurrentUseCredit)
			totals.TotalValue = totals.TotalValue.Add(assessment.Totals.AssessedValue)
		}
	}
	return models.UpdateYearCachedTotals(ctx, municipalityId, year, &totals)
}

// ExecuteRecalculationJob runs a published job end to end, writing progress
// and the final summary back onto the outbox row.
func ExecuteRecalculationJob(ctx context.Context, job *models.RecalculationJob) error {

	if err := job.MarkProcessing(ctx); err != nil {
		return err
	}

	summary, err := RunRecalculation(ctx, job.MunicipalityId, job.EffectiveYear, RecalculationOptions{
		BatchSize:        job.BatchSize,
		ForceClearValues: job.ForceClearValues,
		Save:             job.Save,
	})
	if err != nil {
		if markErr := job.MarkFailed(ctx, err.Error()); markErr != nil {
			config.LogError(config.GetLogger(), "workflow", "ExecuteRecalculationJob", "mark failed", job.ID, markErr)
		}
		return err
	}

	return job.MarkCompleted(ctx, summary.Processed, summary.Updated, summary.ErrorDetails)
}
