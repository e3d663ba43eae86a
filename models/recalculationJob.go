package models

import (
	"context"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type PublishStatus string

const (
	PublishStatusPending    PublishStatus = "pending"
	PublishStatusPublishing PublishStatus = "publishing"
	PublishStatusPublished  PublishStatus = "published"
	PublishStatusFailed     PublishStatus = "failed"
)

// ParcelError is one parcel's calculation failure captured on the job row.
type ParcelError struct {
	PropertyId int    `json:"property_id"`
	CardNumber int    `json:"card_number"`
	Message    string `json:"message"`
}

// RecalculationJob is the outbox row for an asynchronous batch run. The
// request transaction inserts it as pending; the dispatcher publishes it; the
// push handler marks it processing and writes the final counts back. Clients
// poll it by id.
type RecalculationJob struct {
	ID               string         `gorm:"primary_key;size:64" json:"id"`
	MunicipalityId   string         `gorm:"size:64;not null;index" json:"municipality_id"`
	EffectiveYear    int            `gorm:"not null" json:"effective_year"`
	Status           JobStatus      `gorm:"size:15;not null;default:'pending';index" json:"status"`
	PublishStatus    PublishStatus  `gorm:"size:15;not null;default:'pending';index" json:"publish_status"`
	PublishAttempts  int            `gorm:"not null;default:0" json:"publish_attempts"`
	MessageId        string         `gorm:"size:128" json:"message_id"`
	BatchSize        int            `gorm:"not null;default:100" json:"batch_size"`
	ForceClearValues bool           `gorm:"not null;default:false" json:"force_clear_values"`
	Save             bool           `gorm:"not null;default:true" json:"save"`
	Processed        int            `gorm:"not null;default:0" json:"processed"`
	Updated          int            `gorm:"not null;default:0" json:"updated"`
	ErrorCount       int            `gorm:"not null;default:0" json:"error_count"`
	ErrorDetails     []*ParcelError `gorm:"serializer:json" json:"error_details"`
	FailureReason    string         `gorm:"size:500" json:"failure_reason"`
	CorrelationId    string         `gorm:"size:64" json:"correlation_id"`
	RequestedBy      string         `gorm:"size:100" json:"requested_by"`
	StartedAt        *time.Time     `json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (j *RecalculationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

type NewRecalculationJob struct {
	EffectiveYear    int  `json:"effective_year" binding:"required"`
	BatchSize        int  `json:"batch_size" binding:"gte=0,lte=1000"`
	ForceClearValues bool `json:"force_clear_values"`
	Save             bool `json:"save"`
}

func CreateRecalculationJob(ctx context.Context, input *NewRecalculationJob) (*RecalculationJob, error) {

	municipalityId, err := requireMunicipalityId(ctx)
	if err != nil {
		return nil, err
	}

	batchSize := input.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	job := RecalculationJob{
		MunicipalityId:   municipalityId,
		EffectiveYear:    input.EffectiveYear,
		BatchSize:        batchSize,
		ForceClearValues: input.ForceClearValues,
		Save:             input.Save,
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		job.CorrelationId = correlationId
	}
	if userName, ok := utils.GetUserNameFromContext(ctx); ok {
		job.RequestedBy = userName
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func GetRecalculationJob(ctx context.Context, id string) (*RecalculationJob, error) {
	municipalityId, err := requireMunicipalityId(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var job RecalculationJob
	err = db.WithContext(ctx).
		Where("municipality_id = ? AND id = ?", municipalityId, id).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimUnpublishedJobs marks a batch of outbox rows as publishing inside a
// short transaction and returns them. The skip-locked select keeps concurrent
// dispatchers off each other's rows; the network publish happens only after
// this commits, so no row lock is ever held across the RPC. Rows stuck in
// publishing longer than staleAfter (a dispatcher died mid-publish) are
// reclaimed; the push handler's idempotency keys absorb any double send.
func ClaimUnpublishedJobs(ctx context.Context, db *gorm.DB, limit int, staleAfter time.Duration) ([]*RecalculationJob, error) {
	var jobs []*RecalculationJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cutoff := time.Now().UTC().Add(-staleAfter)
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("publish_status = ? OR (publish_status = ? AND updated_at < ?)",
				PublishStatusPending, PublishStatusPublishing, cutoff).
			Order("created_at ASC").
			Limit(limit).
			Find(&jobs).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		ids := make([]string, len(jobs))
		for i, job := range jobs {
			ids[i] = job.ID
		}
		return tx.Model(&RecalculationJob{}).
			Where("id IN ?", ids).
			Update("publish_status", PublishStatusPublishing).Error
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (j *RecalculationJob) MarkPublished(ctx context.Context, db *gorm.DB, messageId string) error {
	return db.WithContext(ctx).Model(j).Updates(map[string]interface{}{
		"PublishStatus":   PublishStatusPublished,
		"PublishAttempts": gorm.Expr("publish_attempts + 1"),
		"MessageId":       messageId,
	}).Error
}

// MarkPublishFailed requeues the row as pending for the next poll, or parks it
// as failed once maxAttempts is reached.
func (j *RecalculationJob) MarkPublishFailed(ctx context.Context, db *gorm.DB, maxAttempts int) error {
	status := PublishStatusPending
	if j.PublishAttempts+1 >= maxAttempts {
		status = PublishStatusFailed
	}
	return db.WithContext(ctx).Model(j).Updates(map[string]interface{}{
		"PublishStatus":   status,
		"PublishAttempts": gorm.Expr("publish_attempts + 1"),
	}).Error
}

func (j *RecalculationJob) MarkProcessing(ctx context.Context) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(j).Updates(map[string]interface{}{
		"Status":    JobStatusProcessing,
		"StartedAt": &now,
	}).Error
}

func (j *RecalculationJob) MarkCompleted(ctx context.Context, processed, updated int, errorDetails []*ParcelError) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(j).Updates(map[string]interface{}{
		"Status":       JobStatusCompleted,
		"Processed":    processed,
		"Updated":      updated,
		"ErrorCount":   len(errorDetails),
		"ErrorDetails": errorDetails,
		"FinishedAt":   &now,
	}).Error
}

func (j *RecalculationJob) MarkFailed(ctx context.Context, reason string) error {
	db := config.GetDB()
	now := time.Now().UTC()
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return db.WithContext(ctx).Model(j).Updates(map[string]interface{}{
		"Status":        JobStatusFailed,
		"FailureReason": reason,
		"FinishedAt":    &now,
	}).Error
}
