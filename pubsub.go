package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"bitbucket.org/graniteval/assessor_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PubSubMessage is the push-delivery envelope Pub/Sub wraps around the
// published payload.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

const recalculationHandlerName = "recalculation"

// recalculationPubSubHandler consumes push deliveries for queued
// recalculation jobs. Malformed messages are acked with 204 so Pub/Sub does
// not retry them forever; processing failures return 500 so delivery retries
// (and eventually routes to the DLQ).
func recalculationPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		// Redis lock is a best-effort optimization. Reliability must not
		// depend on Redis: the run itself also holds a per-municipality lock.
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "pubsub.go", "recalculationPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		var msg PubSubMessage
		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "pubsub.go", "recalculationPubSubHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var m config.RecalculationMessage
		if err := json.Unmarshal(msg.Message.Data, &m); err != nil {
			config.LogError(logger, "pubsub.go", "recalculationPubSubHandler", "Unmarshal payload", msg.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		if m.JobId == "" || m.MunicipalityId == "" {
			config.LogError(logger, "pubsub.go", "recalculationPubSubHandler", "Invalid payload (missing required fields)", m, fmt.Errorf("job_id/municipality_id required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := m.CorrelationId
		if correlationID == "" {
			correlationID = msg.Message.ID
		}

		// Best-effort: skip concurrent deliveries for the same municipality
		// without blocking the request. If Redis is unavailable, continue;
		// the run serializes via its own municipality lock.
		var lock *redislock.Lock
		if redisLock != nil {
			lock, err = redisLock.Obtain(c.Request.Context(), fmt.Sprintf("lock:recalc:%s", m.MunicipalityId), 30*time.Second, nil)
			if errors.Is(err, redislock.ErrNotObtained) {
				logger.WithFields(logrus.Fields{
					"field":           "recalculationPubSubHandler",
					"municipality_id": m.MunicipalityId,
					"job_id":          m.JobId,
					"message_id":      msg.Message.ID,
				}).Warn("could not obtain redis lock; proceeding without redis lock")
				lock = nil
			} else if err != nil {
				logger.WithFields(logrus.Fields{
					"field":           "recalculationPubSubHandler",
					"municipality_id": m.MunicipalityId,
					"job_id":          m.JobId,
					"message_id":      msg.Message.ID,
				}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":           "recalculationPubSubHandler",
					"municipality_id": m.MunicipalityId,
					"job_id":          m.JobId,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		ctx := utils.SetMunicipalityIdInContext(c.Request.Context(), m.MunicipalityId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)

		if err := processRecalculationMessage(ctx, logger, m, msg.Message.ID); err != nil {
			if errors.Is(err, workflow.ErrIdempotencyInProgress) {
				// Another delivery is mid-flight; retry later.
				c.Status(http.StatusConflict)
				return
			}
			logger.WithFields(logrus.Fields{
				"field":           "recalculationPubSubHandler",
				"municipality_id": m.MunicipalityId,
				"job_id":          m.JobId,
				"message_id":      msg.Message.ID,
				"correlation_id":  correlationID,
			}).Error("pubsub processing failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func processRecalculationMessage(ctx context.Context, logger *logrus.Logger, m config.RecalculationMessage, messageId string) error {
	db := config.GetDB().WithContext(ctx)

	skip, err := workflow.BeginIdempotency(db, m.MunicipalityId, recalculationHandlerName, messageId)
	if err != nil {
		return err
	}
	if skip {
		logger.WithFields(logrus.Fields{
			"field":      "processRecalculationMessage",
			"job_id":     m.JobId,
			"message_id": messageId,
		}).Info("duplicate delivery, already processed")
		return nil
	}

	job, err := models.GetRecalculationJob(ctx, m.JobId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			// Job row is gone; mark the delivery handled so it stops retrying.
			return workflow.MarkIdempotencySucceeded(db, m.MunicipalityId, recalculationHandlerName, messageId)
		}
		_ = workflow.MarkIdempotencyFailed(db, m.MunicipalityId, recalculationHandlerName, messageId, err)
		return err
	}

	if err := workflow.ExecuteRecalculationJob(ctx, job); err != nil {
		_ = workflow.MarkIdempotencyFailed(db, m.MunicipalityId, recalculationHandlerName, messageId, err)
		return err
	}
	return workflow.MarkIdempotencySucceeded(db, m.MunicipalityId, recalculationHandlerName, messageId)
}
