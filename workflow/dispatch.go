package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/mmdatafocus/reviews_backend/sms"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const sendCallTimeout = 15 * time.Second

// ProcessSendJob runs one claimed job end to end: cancellation check, quota
// reservation, render, provider call, bookkeeping. A nil return means the job
// is done (sent or legitimately not sent); an error means the queue's retry
// policy applies.
//
// Ordering is deliberate: quota is reserved immediately before the send, not
// at enqueue, so a purchase cancelled during the delay window never consumes
// an allowance slot.
func ProcessSendJob(ctx context.Context, logger *logrus.Logger, sender sms.Sender, job *models.SendJob) error {
	request, err := models.GetReviewRequest(ctx, job.ReviewRequestId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: review request %d missing", ErrNonRetryable, job.ReviewRequestId)
		}
		return err
	}

	// Post-hoc cancellation: a refund (or an earlier attempt) may have moved
	// the request off PENDING while this job sat in the queue.
	if request.Status != models.RequestStatusPending {
		logger.WithFields(logrus.Fields{
			"field":          "Dispatch",
			"job_id":         job.ID,
			"request_status": request.Status,
			"correlation_id": job.CorrelationId,
		}).Info("review request no longer pending, skipping send")
		return nil
	}

	account, err := models.GetAccount(ctx, request.AccountId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: account %s missing", ErrNonRetryable, request.AccountId)
		}
		return err
	}

	decision, err := models.ReserveQuota(ctx, request.AccountId, 1)
	if err != nil {
		return err
	}
	if !decision.CanSend {
		if err := models.MarkReviewRequestSkipped(ctx, request.ID, models.SkipReasonLimitReached); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"field":          "Dispatch",
			"job_id":         job.ID,
			"account_id":     request.AccountId,
			"correlation_id": job.CorrelationId,
		}).Info("monthly limit reached, send skipped")
		return nil
	}

	reservation := decision.Reservation
	defer func() {
		// Safety net for panics and early returns: an unresolved hold is a
		// failed send, never a silently consumed slot.
		if !reservation.Resolved() {
			reservation.Release(false)
		}
	}()

	body := RenderMessage(account.MessageTone, account.CustomTemplate, job.CustomerName, account.BusinessName(), account.ReviewLink)

	sendCtx, cancel := context.WithTimeout(ctx, sendCallTimeout)
	defer cancel()
	messageId, err := sender.Send(sendCtx, job.TargetPhone, body)
	if err != nil {
		reservation.Release(false)
		return fmt.Errorf("provider send failed: %w", err)
	}
	reservation.Release(true)

	// The message is out; everything past here is bookkeeping and must not
	// trigger a resend.
	if err := models.MarkReviewRequestSent(ctx, request.ID, messageId); err != nil {
		config.LogError(logger, "workflow", "ProcessSendJob", "mark sent", map[string]interface{}{"review_request_id": request.ID}, err)
	}
	if request.CustomerPhone != nil && *request.CustomerPhone == job.TargetPhone {
		// Test-mode sends go to the merchant's own phone and don't count as
		// contacting the customer.
		models.MarkContacted(request.AccountId, *request.CustomerPhone)
	}

	logger.WithFields(logrus.Fields{
		"field":               "Dispatch",
		"job_id":              job.ID,
		"review_request_id":   request.ID,
		"provider_message_id": messageId,
		"correlation_id":      job.CorrelationId,
	}).Info("review request sent")
	return nil
}

// ProcessSendJobById is the push-delivery entry point: claim the named job if
// due and run it. Duplicate wake-ups for the same job are acked quietly.
func ProcessSendJobById(ctx context.Context, logger *logrus.Logger, sender sms.Sender, workerId string, jobId int, lockTTL time.Duration) error {
	job, err := claimSendJobById(ctx, workerId, jobId, lockTTL)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	if err := ProcessSendJob(ctx, logger, sender, job); err != nil {
		markSendJobFailure(ctx, logger, job, err)
		return nil
	}
	return markSendJobSuccess(ctx, job)
}
