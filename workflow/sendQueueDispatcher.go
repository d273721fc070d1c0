package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/sirupsen/logrus"
)

const sendQueueDispatcherLockKey = "send-queue-dispatcher"

// SendQueueDispatcher publishes Pub/Sub wake-ups for jobs whose delay has
// elapsed, so pushes reach a worker faster than the poll interval. A Redis
// lease keeps a single instance publishing at a time; delivery stays at-least-
// once and the claim query is what guarantees each job runs exactly once.
//
// This is an optimization layer only. When SEND_QUEUE_TOPIC is unset the
// dispatcher exits immediately and the direct processor carries all traffic.
type SendQueueDispatcher struct {
	Logger       *logrus.Logger
	DispatcherID string
	BatchSize    int
	PollInterval time.Duration
	LockTTL      time.Duration
}

func NewSendQueueDispatcher(logger *logrus.Logger) *SendQueueDispatcher {
	d := &SendQueueDispatcher{
		Logger:       logger,
		DispatcherID: fmt.Sprintf("send-dispatcher-%s", time.Now().UTC().Format("20060102-150405.000")),
		BatchSize:    100,
		PollInterval: 2 * time.Second,
		LockTTL:      15 * time.Second,
	}
	if v, err := strconv.Atoi(os.Getenv("SEND_DISPATCHER_BATCH_SIZE")); err == nil && v > 0 {
		d.BatchSize = v
	}
	if v, err := strconv.Atoi(os.Getenv("SEND_DISPATCHER_POLL_SECONDS")); err == nil && v > 0 {
		d.PollInterval = time.Duration(v) * time.Second
	}
	return d
}

func (d *SendQueueDispatcher) Run(ctx context.Context) {
	if config.SendQueueTopicName() == "" {
		d.Logger.WithFields(logrus.Fields{
			"field": "SendQueueDispatcher",
		}).Info("SEND_QUEUE_TOPIC not configured, dispatcher disabled")
		return
	}

	d.ensureTopology(ctx)

	d.Logger.WithFields(logrus.Fields{
		"field":         "SendQueueDispatcher",
		"dispatcher_id": d.DispatcherID,
	}).Info("send queue dispatcher started")

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchOnce(ctx)
		}
	}
}

// ensureTopology creates the wake-up topic, and the push subscription when an
// endpoint is configured, so a fresh environment needs no manual Pub/Sub
// setup. Failures are logged and retried implicitly: the first publish errors
// until the topic exists and the poller carries traffic meanwhile.
func (d *SendQueueDispatcher) ensureTopology(ctx context.Context) {
	client, err := config.GetClient(ctx)
	if err != nil {
		config.LogError(d.Logger, "workflow", "ensureTopology", "pubsub client", nil, err)
		return
	}
	topic, err := config.CreateTopicIfNotExists(client, config.SendQueueTopicName())
	if err != nil {
		config.LogError(d.Logger, "workflow", "ensureTopology", "create topic", nil, err)
		return
	}

	subName := os.Getenv("SEND_QUEUE_SUBSCRIPTION")
	pushEndpoint := os.Getenv("SEND_QUEUE_PUSH_ENDPOINT")
	if subName == "" || pushEndpoint == "" {
		return
	}
	if _, err := config.CreateSubscriptionIfNotExists(client, subName, topic, pushEndpoint); err != nil {
		config.LogError(d.Logger, "workflow", "ensureTopology", "create subscription", map[string]interface{}{"subscription": subName}, err)
	}
}

func (d *SendQueueDispatcher) dispatchOnce(ctx context.Context) {
	locker := config.GetRedisLock()
	if locker == nil {
		return
	}
	lock, err := locker.Obtain(ctx, sendQueueDispatcherLockKey, d.LockTTL, nil)
	if err != nil {
		if !errors.Is(err, redislock.ErrNotObtained) {
			config.LogError(d.Logger, "workflow", "dispatchOnce", "obtain dispatcher lease", nil, err)
		}
		return
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	now := time.Now().UTC()
	var jobs []models.SendJob
	err = config.GetDB().WithContext(ctx).
		Select("id", "account_id", "correlation_id").
		Where("status IN ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?",
			[]string{models.SendJobStatusPending, models.SendJobStatusFailed}, now).
		Order("next_attempt_at ASC").
		Limit(d.BatchSize).
		Find(&jobs).Error
	if err != nil {
		config.LogError(d.Logger, "workflow", "dispatchOnce", "list due send jobs", nil, err)
		return
	}

	for _, job := range jobs {
		msg := config.SendQueueMessage{
			JobId:         job.ID,
			AccountId:     job.AccountId,
			CorrelationId: job.CorrelationId,
		}
		if _, err := config.PublishSendQueueWithResult(ctx, msg); err != nil {
			// Wake-up lost, poller picks the job up on its next tick.
			config.LogError(d.Logger, "workflow", "dispatchOnce", "publish wake-up", map[string]interface{}{"job_id": job.ID}, err)
			return
		}
	}
}
