package main

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/mmdatafocus/reviews_backend/sms"
	"github.com/mmdatafocus/reviews_backend/utils"
	"github.com/mmdatafocus/reviews_backend/webhooks"
	"github.com/mmdatafocus/reviews_backend/workflow"
)

// opsAuthMiddleware protects the internal ops surface with a shared token.
// No OPS_TOKEN configured means no ops access at all.
func opsAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(os.Getenv("OPS_TOKEN"))
		provided := c.GetHeader("X-Ops-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(provided)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

type circuitStater interface {
	CircuitState() string
}

// opsHealthHandler reports dependency readiness and the SMS circuit state.
func opsHealthHandler(sender sms.Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbReady := config.GetDB() != nil
		redisReady := false
		if rdb := config.GetRedisDB(); rdb != nil {
			redisReady = rdb.Ping(config.GetRedisContext()).Err() == nil
		}

		circuit := "unknown"
		if cs, ok := sender.(circuitStater); ok {
			circuit = cs.CircuitState()
		}

		status := http.StatusOK
		if !dbReady {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"db_ready":    dbReady,
			"redis_ready": redisReady,
			"sms_circuit": circuit,
		})
	}
}

func queueStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := models.GetSendQueueStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

type dlqRequeueRequest struct {
	DeadId int `json:"dead_id" binding:"required"`
}

// dlqRequeueHandler puts one dead-lettered send job back on the queue after an
// operator has looked at the failure.
func dlqRequeueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dlqRequeueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dead_id is required"})
			return
		}

		job, err := models.RequeueDeadSendJob(c.Request.Context(), req.DeadId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Best-effort wake-up so the operator's replay runs now instead of on
		// the next poll tick.
		if config.SendQueueTopicName() != "" {
			msg := config.SendQueueMessage{
				JobId:         job.ID,
				AccountId:     job.AccountId,
				CorrelationId: job.CorrelationId,
			}
			if err := config.PublishSendQueue(msg); err != nil {
				config.LogError(config.GetLogger(), "server.go", "dlqRequeueHandler", "publish wake-up", map[string]interface{}{"job_id": job.ID}, err)
			}
		}

		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"dead_id":        req.DeadId,
			"job_id":         job.ID,
			"status":         job.Status,
			"correlation_id": cid,
		})
	}
}

// sendQueuePushHandler receives Pub/Sub push wake-ups for due send jobs.
// Malformed messages are acked and dropped; real processing failures return
// non-2xx so Pub/Sub redelivers.
func sendQueuePushHandler(sender sms.Sender, workerId string) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "sendQueuePushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		var envelope webhooks.PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "server.go", "sendQueuePushHandler", "unmarshal envelope", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var msg config.SendQueueMessage
		if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
			config.LogError(logger, "server.go", "sendQueuePushHandler", "unmarshal message", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		if msg.JobId <= 0 {
			c.Status(http.StatusNoContent)
			return
		}

		correlationId := msg.CorrelationId
		if correlationId == "" {
			correlationId = envelope.Message.MessageId
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		ctx = utils.SetAccountIdInContext(ctx, msg.AccountId)

		if err := workflow.ProcessSendJobById(ctx, logger, sender, workerId, msg.JobId, 2*time.Minute); err != nil {
			config.LogError(logger, "server.go", "sendQueuePushHandler", "process send job", map[string]interface{}{"job_id": msg.JobId}, err)
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
