package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/mmdatafocus/reviews_backend/sms"
	"github.com/mmdatafocus/reviews_backend/utils"
	"github.com/mmdatafocus/reviews_backend/workflow"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Standalone queue worker. Runs the direct processor (and the wake-up
// dispatcher) without any webhook surface, for deployments that separate
// ingestion from sending.
func main() {
	port := os.Getenv("SEND_WORKER_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		utils.ErrorPanic(models.MigrateTable())
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	sender, err := sms.NewTwilioClient(logger)
	var s sms.Sender = sender
	if err != nil {
		logger.WithFields(logrus.Fields{
			"field": "sms",
		}).Warn("twilio not configured, using log-only sender: " + err.Error())
		s = sms.NewLogSender(logger)
	}

	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go workflow.NewSendQueueProcessor(logger, s).Run(workersCtx)
	go workflow.NewSendQueueDispatcher(logger).Run(workersCtx)

	select {
	case <-sigCtx.Done():
		cancelWorkers()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}
