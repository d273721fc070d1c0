package workflow

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/sms"
	"github.com/mmdatafocus/reviews_backend/utils"
	"github.com/sirupsen/logrus"
)

// SendQueueProcessor polls the send queue directly against the database. It
// runs in every instance regardless of whether Pub/Sub wake-ups are
// configured, so a dropped or delayed wake-up can delay a send but never
// lose it.
type SendQueueProcessor struct {
	Logger    *logrus.Logger
	Sender    sms.Sender
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewSendQueueProcessor(logger *logrus.Logger, sender sms.Sender) *SendQueueProcessor {
	p := &SendQueueProcessor{
		Logger:    logger,
		Sender:    sender,
		WorkerID:  fmt.Sprintf("send-worker-%s", time.Now().UTC().Format("20060102-150405.000")),
		BatchSize: 25,
		Interval:  2 * time.Second,
		LockTTL:   2 * time.Minute,
	}
	if v, err := strconv.Atoi(os.Getenv("SEND_QUEUE_BATCH_SIZE")); err == nil && v > 0 {
		p.BatchSize = v
	}
	if v, err := strconv.Atoi(os.Getenv("SEND_QUEUE_POLL_SECONDS")); err == nil && v > 0 {
		p.Interval = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(os.Getenv("SEND_QUEUE_LOCK_TTL_SECONDS")); err == nil && v > 0 {
		p.LockTTL = time.Duration(v) * time.Second
	}
	return p
}

func (p *SendQueueProcessor) Run(ctx context.Context) {
	p.Logger.WithFields(logrus.Fields{
		"field":     "SendQueueProcessor",
		"worker_id": p.WorkerID,
	}).Info("send queue processor started")

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Logger.WithFields(logrus.Fields{
				"field":     "SendQueueProcessor",
				"worker_id": p.WorkerID,
			}).Info("send queue processor stopped")
			return
		case <-ticker.C:
			p.processOnce(ctx)
		}
	}
}

func (p *SendQueueProcessor) processOnce(ctx context.Context) {
	jobs, err := claimDueSendJobs(ctx, p.WorkerID, p.BatchSize, p.LockTTL)
	if err != nil {
		config.LogError(p.Logger, "workflow", "processOnce", "claim due send jobs", nil, err)
		return
	}

	for i := range jobs {
		if ctx.Err() != nil {
			// Shutting down; claimed jobs become visible again after LockTTL.
			return
		}
		job := &jobs[i]

		jobCtx := utils.SetCorrelationIdInContext(ctx, job.CorrelationId)
		jobCtx = utils.SetAccountIdInContext(jobCtx, job.AccountId)

		if err := ProcessSendJob(jobCtx, p.Logger, p.Sender, job); err != nil {
			config.LogError(p.Logger, "workflow", "processOnce", "process send job", map[string]interface{}{"job_id": job.ID}, err)
			markSendJobFailure(jobCtx, p.Logger, job, err)
			continue
		}
		if err := markSendJobSuccess(jobCtx, job); err != nil {
			config.LogError(p.Logger, "workflow", "processOnce", "mark send job success", map[string]interface{}{"job_id": job.ID}, err)
		}
	}
}
