package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"gorm.io/gorm"
)

// Send-queue job statuses. FAILED means "waiting for its backoff retry";
// exhausted jobs leave this table entirely and land in send_job_deads.
const (
	SendJobStatusPending    = "PENDING"
	SendJobStatusProcessing = "PROCESSING"
	SendJobStatusSucceeded  = "SUCCEEDED"
	SendJobStatusFailed     = "FAILED"
)

// SendJob is one deferred "attempt to send for ReviewRequest X". TargetPhone
// and CustomerName are snapshotted at enqueue; the message body is rendered
// from the account's settings at send time, so tone and template edits still
// reach jobs sitting in the queue.
type SendJob struct {
	ID              int    `gorm:"primary_key" json:"id"`
	ReviewRequestId int    `gorm:"not null;uniqueIndex" json:"review_request_id"`
	AccountId       string `gorm:"size:64;not null;index" json:"account_id"`

	// TargetPhone may differ from the customer phone in test mode.
	TargetPhone  string `gorm:"size:32;not null" json:"target_phone"`
	CustomerName string `gorm:"size:255" json:"customer_name"`

	Status        string     `gorm:"size:20;not null;index" json:"status"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at"`
	LockedAt      *time.Time `json:"locked_at"`
	LockedBy      *string    `gorm:"size:64" json:"locked_by"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	CorrelationId string     `gorm:"size:64" json:"correlation_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SendJobDead is the dead-letter queue: jobs that exhausted every retry,
// parked with their failure metadata for manual inspection and replay.
type SendJobDead struct {
	ID              int    `gorm:"primary_key" json:"id"`
	JobId           int    `gorm:"not null;index" json:"job_id"`
	ReviewRequestId int    `gorm:"not null;index" json:"review_request_id"`
	AccountId       string `gorm:"size:64;not null;index" json:"account_id"`
	TargetPhone     string `gorm:"size:32;not null" json:"target_phone"`
	CustomerName    string `gorm:"size:255" json:"customer_name"`

	Attempts      int       `gorm:"not null" json:"attempts"`
	LastError     string    `gorm:"type:text" json:"last_error"`
	FailedAt      time.Time `gorm:"not null" json:"failed_at"`
	CorrelationId string    `gorm:"size:64" json:"correlation_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SendQueueStats is the ops view of both queues.
type SendQueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
}

func GetSendQueueStats(ctx context.Context) (*SendQueueStats, error) {
	db := config.GetDB()
	stats := SendQueueStats{}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := db.WithContext(ctx).Model(&SendJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		switch row.Status {
		case SendJobStatusPending:
			stats.Pending = row.Count
		case SendJobStatusProcessing:
			stats.Processing = row.Count
		case SendJobStatusSucceeded:
			stats.Succeeded = row.Count
		case SendJobStatusFailed:
			stats.Failed = row.Count
		}
	}

	if err := db.WithContext(ctx).Model(&SendJobDead{}).Count(&stats.Dead).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// RequeueDeadSendJob moves one dead-lettered job back onto the main queue for
// a manual retry. The fresh job starts with a clean attempt counter.
func RequeueDeadSendJob(ctx context.Context, deadId int) (*SendJob, error) {
	db := config.GetDB()
	now := time.Now().UTC()

	var job SendJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dead SendJobDead
		if err := tx.Where("id = ?", deadId).Take(&dead).Error; err != nil {
			return err
		}

		job = SendJob{
			ReviewRequestId: dead.ReviewRequestId,
			AccountId:       dead.AccountId,
			TargetPhone:     dead.TargetPhone,
			CustomerName:    dead.CustomerName,
			Status:          SendJobStatusPending,
			NextAttemptAt:   &now,
			CorrelationId:   dead.CorrelationId,
		}
		if err := tx.Create(&job).Error; err != nil {
			if IsDuplicateKeyErr(err) {
				return errors.New("a live job already exists for this review request")
			}
			return err
		}
		return tx.Where("id = ?", dead.ID).Delete(&SendJobDead{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}
