package workflow

import (
	"context"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// JobDispatcher drains the recalculation outbox: pending job rows written by
// the request transaction become Pub/Sub messages, at-least-once. The push
// handler's idempotency keys absorb duplicates.
type JobDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize     int
	PollInterval  time.Duration
	MaxAttempts   int
	StaleClaimAge time.Duration
}

func NewJobDispatcher(db *gorm.DB, logger *logrus.Logger) *JobDispatcher {
	return &JobDispatcher{
		DB:            db,
		Logger:        logger,
		DispatcherID:  uuid.NewString(),
		BatchSize:     50,
		PollInterval:  500 * time.Millisecond,
		MaxAttempts:   20,
		StaleClaimAge: 2 * time.Minute,
	}
}

func (d *JobDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil {
			config.LogError(d.Logger, "workflow", "JobDispatcher.Run", "dispatch", d.DispatcherID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch of unpublished jobs, then publishes them.
// The claim commits before any Pub/Sub call so row locks and the open
// transaction never span a network RPC. Returns how many were published.
func (d *JobDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if d.DB == nil {
		return 0, nil
	}

	jobs, err := models.ClaimUnpublishedJobs(ctx, d.DB, d.BatchSize, d.StaleClaimAge)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, job := range jobs {
		messageId, pubErr := config.PublishRecalculation(ctx, config.RecalculationMessage{
			JobId:            job.ID,
			MunicipalityId:   job.MunicipalityId,
			EffectiveYear:    job.EffectiveYear,
			BatchSize:        job.BatchSize,
			ForceClearValues: job.ForceClearValues,
			Save:             job.Save,
			CorrelationId:    job.CorrelationId,
		})
		if pubErr != nil {
			config.LogError(d.Logger, "workflow", "JobDispatcher.DispatchOnce", "publish", job.ID, pubErr)
			if err := job.MarkPublishFailed(ctx, d.DB, d.MaxAttempts); err != nil {
				return published, err
			}
			continue
		}
		if err := job.MarkPublished(ctx, d.DB, messageId); err != nil {
			return published, err
		}
		published++
		d.Logger.WithFields(logrus.Fields{
			"job_id":          job.ID,
			"municipality_id": job.MunicipalityId,
			"year":            job.EffectiveYear,
			"message_id":      messageId,
		}).Info("recalc.job.published")
	}
	return published, nil
}
