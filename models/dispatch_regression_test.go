package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/mmdatafocus/reviews_backend/webhooks"
	"github.com/mmdatafocus/reviews_backend/workflow"
)

type failingSender struct {
	calls int
}

func (s *failingSender) Send(ctx context.Context, toPhone, body string) (string, error) {
	s.calls++
	return "", errors.New("provider unavailable")
}

func TestSendRetryExhaustionMovesJobToDeadLetter(t *testing.T) {
	ctx := setupPipelineTest(t)
	logger := config.GetLogger()

	account, err := models.CreateAccount(ctx, &models.NewAccount{
		Name:       "Exhaustion Cafe",
		ReviewLink: "https://g.page/r/exhaustion/review",
		QuotaLimit: 100,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	accountId := account.ID.String()

	phone := "+14155552671"
	request := &models.ReviewRequest{
		AccountId:     accountId,
		IntegrationId: 7,
		ExternalId:    "pay_exhaust",
		Provider:      models.ProviderSquare,
		CustomerName:  "Jordan Avery",
		CustomerPhone: &phone,
		Status:        models.RequestStatusPending,
	}
	if created, err := models.CreateReviewRequest(ctx, request); err != nil || !created {
		t.Fatalf("create request: created=%v err=%v", created, err)
	}

	job, err := workflow.EnqueueSendJob(ctx, request, phone, 0)
	if err != nil || job == nil {
		t.Fatalf("enqueue: job=%v err=%v", job, err)
	}

	// Every provider call fails; drive the job through its full attempt
	// budget, forcing each backoff slot due.
	sender := &failingSender{}
	db := config.GetDB()
	for attempt := 1; attempt <= 3; attempt++ {
		past := time.Now().UTC().Add(-time.Second)
		if err := db.Model(&models.SendJob{}).Where("id = ?", job.ID).
			Update("next_attempt_at", past).Error; err != nil {
			t.Fatalf("force attempt %d due: %v", attempt, err)
		}
		if err := workflow.ProcessSendJobById(ctx, logger, sender, "test-worker", job.ID, 2*time.Minute); err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
	}
	if sender.calls != 3 {
		t.Fatalf("expected 3 provider calls, got %d", sender.calls)
	}

	var liveCount int64
	if err := db.Model(&models.SendJob{}).Where("id = ?", job.ID).Count(&liveCount).Error; err != nil {
		t.Fatalf("count live jobs: %v", err)
	}
	if liveCount != 0 {
		t.Fatal("exhausted job must leave the live queue")
	}

	var dead models.SendJobDead
	if err := db.Where("job_id = ?", job.ID).Take(&dead).Error; err != nil {
		t.Fatalf("load dead letter row: %v", err)
	}
	if dead.Attempts != 3 {
		t.Fatalf("expected attempts=3 in dead letter, got %d", dead.Attempts)
	}

	reloaded, err := models.GetReviewRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if reloaded.Status != models.RequestStatusFailed {
		t.Fatalf("expected FAILED request after exhaustion, got %s", reloaded.Status)
	}
	if reloaded.SkipReason == nil || *reloaded.SkipReason == "" {
		t.Fatal("expected the provider error recorded on the request")
	}

	var after models.Account
	if err := db.Where("id = ?", accountId).Take(&after).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if after.UsedCount != 0 {
		t.Fatalf("failed sends must not consume quota, got used_count=%d", after.UsedCount)
	}
}

func TestRedeliveryAfterPartialFailureEnqueuesJob(t *testing.T) {
	ctx := setupPipelineTest(t)
	logger := config.GetLogger()

	account, err := models.CreateAccount(ctx, &models.NewAccount{
		Name:       "Repair Cafe",
		ReviewLink: "https://g.page/r/repair/review",
		QuotaLimit: 100,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	consent := true
	integration := models.Integration{
		AccountId:        account.ID.String(),
		Provider:         models.ProviderSquare,
		MerchantId:       "sq-merchant-repair",
		Status:           models.IntegrationStatusConnected,
		ConsentConfirmed: &consent,
	}
	db := config.GetDB()
	if err := db.Create(&integration).Error; err != nil {
		t.Fatalf("create integration: %v", err)
	}

	// The first delivery wrote the request row but died before enqueueing its
	// job; the claim was released, so the provider's retry runs the pipeline
	// again from the top.
	phone := "+14155552671"
	orphan := &models.ReviewRequest{
		AccountId:     account.ID.String(),
		IntegrationId: integration.ID,
		ExternalId:    "pay_repair",
		Provider:      models.ProviderSquare,
		CustomerName:  "Jordan Avery",
		CustomerPhone: &phone,
		Status:        models.RequestStatusPending,
	}
	if created, err := models.CreateReviewRequest(ctx, orphan); err != nil || !created {
		t.Fatalf("seed orphan request: created=%v err=%v", created, err)
	}

	ev := webhooks.PurchaseEvent{
		Provider:      models.ProviderSquare,
		EventId:       "evt_repair_retry",
		EventType:     "payment.updated",
		MerchantId:    "sq-merchant-repair",
		ExternalId:    "pay_repair",
		CustomerName:  "Jordan Avery",
		CustomerPhone: "(415) 555-2671",
	}
	if err := webhooks.HandlePurchase(ctx, logger, ev); err != nil {
		t.Fatalf("HandlePurchase: %v", err)
	}

	var job models.SendJob
	if err := db.Where("review_request_id = ?", orphan.ID).Take(&job).Error; err != nil {
		t.Fatalf("redelivery must enqueue the missing job: %v", err)
	}
	if job.Status != models.SendJobStatusPending {
		t.Fatalf("expected a fresh PENDING job, got %s", job.Status)
	}
	if job.TargetPhone != phone {
		t.Fatalf("expected target phone %s, got %s", phone, job.TargetPhone)
	}

	// A further redelivery with the job already in place stays a no-op.
	ev.EventId = "evt_repair_retry_2"
	if err := webhooks.HandlePurchase(ctx, logger, ev); err != nil {
		t.Fatalf("second HandlePurchase: %v", err)
	}
	var jobCount int64
	if err := db.Model(&models.SendJob{}).Where("review_request_id = ?", orphan.ID).Count(&jobCount).Error; err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if jobCount != 1 {
		t.Fatalf("expected exactly one job for the request, got %d", jobCount)
	}
}
