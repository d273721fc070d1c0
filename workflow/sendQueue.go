package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/mmdatafocus/reviews_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnqueueSendJob schedules the actual send for an eligible review request.
// The delay is the cancellation window: a refund webhook arriving inside it
// flips the request off PENDING and the worker later acks without sending.
//
// One job per review request (unique index); a duplicate enqueue from a
// replayed webhook is a no-op.
func EnqueueSendJob(ctx context.Context, request *models.ReviewRequest, targetPhone string, delay time.Duration) (*models.SendJob, error) {
	runAt := time.Now().UTC().Add(delay)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	job := models.SendJob{
		ReviewRequestId: request.ID,
		AccountId:       request.AccountId,
		TargetPhone:     targetPhone,
		CustomerName:    request.CustomerName,
		Status:          models.SendJobStatusPending,
		NextAttemptAt:   &runAt,
		CorrelationId:   correlationId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		if models.IsDuplicateKeyErr(err) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// claimDueSendJobs picks up to batchSize jobs that are ready to run and marks
// them PROCESSING under this worker's name. SKIP LOCKED keeps concurrent
// workers from blocking on each other's batch; each job still goes to exactly
// one claimer.
//
// Ready means: PENDING or FAILED with the backoff elapsed, or PROCESSING with
// a lock older than lockTTL (the previous worker died mid-flight, so the job
// becomes visible again).
func claimDueSendJobs(ctx context.Context, workerId string, batchSize int, lockTTL time.Duration) ([]models.SendJob, error) {
	db := config.GetDB()
	now := time.Now().UTC()
	staleBefore := now.Add(-lockTTL)

	var claimed []models.SendJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var jobs []models.SendJob
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`(status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
				OR (status = ? AND locked_at IS NOT NULL AND locked_at <= ?)`,
				[]string{models.SendJobStatusPending, models.SendJobStatusFailed}, now,
				models.SendJobStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(batchSize).
			Find(&jobs).Error
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		ids := make([]int, 0, len(jobs))
		for _, job := range jobs {
			ids = append(ids, job.ID)
		}
		err = tx.Model(&models.SendJob{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":    models.SendJobStatusProcessing,
				"locked_at": now,
				"locked_by": workerId,
			}).Error
		if err != nil {
			return err
		}

		for i := range jobs {
			jobs[i].Status = models.SendJobStatusProcessing
			jobs[i].LockedAt = &now
			jobs[i].LockedBy = &workerId
		}
		claimed = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// claimSendJobById is the push-delivery variant: claim one specific job if it
// is currently due. Returns nil when some other worker beat us to it or the
// job is not ready, which is a normal outcome for duplicate wake-ups.
func claimSendJobById(ctx context.Context, workerId string, jobId int, lockTTL time.Duration) (*models.SendJob, error) {
	db := config.GetDB()
	now := time.Now().UTC()
	staleBefore := now.Add(-lockTTL)

	var claimed *models.SendJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.SendJob
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id = ?", jobId).
			Where(`(status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
				OR (status = ? AND locked_at IS NOT NULL AND locked_at <= ?)`,
				[]string{models.SendJobStatusPending, models.SendJobStatusFailed}, now,
				models.SendJobStatusProcessing, staleBefore).
			Take(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		err = tx.Model(&models.SendJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":    models.SendJobStatusProcessing,
				"locked_at": now,
				"locked_by": workerId,
			}).Error
		if err != nil {
			return err
		}

		job.Status = models.SendJobStatusProcessing
		job.LockedAt = &now
		job.LockedBy = &workerId
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
