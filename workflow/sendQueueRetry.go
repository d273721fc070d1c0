package workflow

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNonRetryable marks a job failure that retrying cannot fix (missing
// account row, unrenderable request). The job goes straight to the dead
// letter table instead of burning through its backoff schedule.
var ErrNonRetryable = errors.New("non-retryable send job failure")

type sendRetryConfig struct {
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func getSendRetryConfig() sendRetryConfig {
	cfg := sendRetryConfig{
		maxAttempts: 3,
		baseBackoff: 2 * time.Second,
		maxBackoff:  5 * time.Minute,
	}
	if v, err := strconv.Atoi(os.Getenv("SEND_MAX_ATTEMPTS")); err == nil && v > 0 {
		cfg.maxAttempts = v
	}
	if v, err := strconv.Atoi(os.Getenv("SEND_BASE_BACKOFF_SECONDS")); err == nil && v > 0 {
		cfg.baseBackoff = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(os.Getenv("SEND_MAX_BACKOFF_SECONDS")); err == nil && v > 0 {
		cfg.maxBackoff = time.Duration(v) * time.Second
	}
	return cfg
}

// sendBackoff doubles per completed attempt: base, 2*base, 4*base, capped.
func sendBackoff(attempt int, cfg sendRetryConfig) time.Duration {
	backoff := cfg.baseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= cfg.maxBackoff {
			return cfg.maxBackoff
		}
	}
	return backoff
}

// markSendJobSuccess retires the job. The SUCCEEDED row is kept as the audit
// trail of what actually went out.
func markSendJobSuccess(ctx context.Context, job *models.SendJob) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&models.SendJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":     models.SendJobStatusSucceeded,
			"attempts":   job.Attempts + 1,
			"locked_at":  nil,
			"locked_by":  nil,
			"last_error": nil,
		}).Error
}

// markSendJobFailure records one failed attempt. Until the attempt budget is
// spent the job goes back to FAILED with its next slot scheduled; the final
// failure moves the job to send_job_deads and flips the review request to
// FAILED so the pipeline has a terminal answer for this purchase.
func markSendJobFailure(ctx context.Context, logger *logrus.Logger, job *models.SendJob, cause error) {
	cfg := getSendRetryConfig()
	attempts := job.Attempts + 1
	errText := cause.Error()

	exhausted := attempts >= cfg.maxAttempts || errors.Is(cause, ErrNonRetryable)
	if !exhausted {
		nextAt := time.Now().UTC().Add(sendBackoff(attempts, cfg))
		err := config.GetDB().WithContext(ctx).Model(&models.SendJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":          models.SendJobStatusFailed,
				"attempts":        attempts,
				"next_attempt_at": nextAt,
				"locked_at":       nil,
				"locked_by":       nil,
				"last_error":      errText,
			}).Error
		if err != nil {
			config.LogError(logger, "workflow", "markSendJobFailure", "schedule retry", map[string]interface{}{"job_id": job.ID}, err)
		}
		return
	}

	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dead := models.SendJobDead{
			JobId:           job.ID,
			ReviewRequestId: job.ReviewRequestId,
			AccountId:       job.AccountId,
			TargetPhone:     job.TargetPhone,
			CustomerName:    job.CustomerName,
			Attempts:        attempts,
			LastError:       errText,
			FailedAt:        time.Now().UTC(),
			CorrelationId:   job.CorrelationId,
		}
		if err := tx.Create(&dead).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", job.ID).Delete(&models.SendJob{}).Error
	})
	if err != nil {
		config.LogError(logger, "workflow", "markSendJobFailure", "move to dead letter", map[string]interface{}{"job_id": job.ID}, err)
		return
	}

	if err := models.MarkReviewRequestFailed(ctx, job.ReviewRequestId, errText); err != nil {
		config.LogError(logger, "workflow", "markSendJobFailure", "mark review request failed", map[string]interface{}{"review_request_id": job.ReviewRequestId}, err)
	}

	logger.WithFields(logrus.Fields{
		"field":          "SendQueue",
		"job_id":         job.ID,
		"attempts":       attempts,
		"correlation_id": job.CorrelationId,
	}).Error("send job exhausted retries, moved to dead letter queue")
}
