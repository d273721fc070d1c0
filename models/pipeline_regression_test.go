package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
)

func setupPipelineTest(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "reviews_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return context.Background()
}

func TestReserveQuotaConcurrencyGrantsExactlyRemaining(t *testing.T) {
	ctx := setupPipelineTest(t)

	account, err := models.CreateAccount(ctx, &models.NewAccount{
		Name:       "Quota Cafe",
		ReviewLink: "https://g.page/r/quota/review",
		QuotaLimit: 10,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	accountId := account.ID.String()

	db := config.GetDB()
	if err := db.Model(&models.Account{}).Where("id = ?", accountId).
		Update("used_count", 9).Error; err != nil {
		t.Fatalf("seed used_count: %v", err)
	}
	_ = models.InvalidateAccountCache(accountId)

	// One slot left, five concurrent claimants: exactly one may win.
	const claimants = 5
	var wg sync.WaitGroup
	decisions := make([]*models.QuotaDecision, claimants)
	errs := make([]error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = models.ReserveQuota(ctx, accountId, 1)
		}(i)
	}
	wg.Wait()

	granted := 0
	var winner *models.QuotaReservation
	for i := 0; i < claimants; i++ {
		if errs[i] != nil {
			t.Fatalf("ReserveQuota[%d]: %v", i, errs[i])
		}
		if decisions[i].CanSend {
			granted++
			winner = decisions[i].Reservation
		} else if decisions[i].Reason != models.SkipReasonLimitReached {
			t.Fatalf("denied reservation has reason %q", decisions[i].Reason)
		}
	}
	if granted != 1 {
		t.Fatalf("expected exactly 1 grant, got %d", granted)
	}

	var after models.Account
	if err := db.Where("id = ?", accountId).Take(&after).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if after.UsedCount != 10 {
		t.Fatalf("expected used_count=10 after single grant, got %d", after.UsedCount)
	}

	// Failed send gives the slot back; releasing twice must not double-credit.
	winner.Release(false)
	winner.Release(false)
	if err := db.Where("id = ?", accountId).Take(&after).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if after.UsedCount != 9 {
		t.Fatalf("expected used_count=9 after release, got %d", after.UsedCount)
	}
}

func TestReserveQuotaMonthlyRollover(t *testing.T) {
	ctx := setupPipelineTest(t)

	account, err := models.CreateAccount(ctx, &models.NewAccount{
		Name:       "Rollover Cafe",
		QuotaLimit: 5,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	accountId := account.ID.String()

	db := config.GetDB()
	lastMonth := time.Now().UTC().AddDate(0, -1, 0).Format("2006-01")
	if err := db.Model(&models.Account{}).Where("id = ?", accountId).
		Updates(map[string]interface{}{"used_count": 5, "quota_period": lastMonth}).Error; err != nil {
		t.Fatalf("seed stale period: %v", err)
	}
	_ = models.InvalidateAccountCache(accountId)

	decision, err := models.ReserveQuota(ctx, accountId, 1)
	if err != nil {
		t.Fatalf("ReserveQuota: %v", err)
	}
	if !decision.CanSend {
		t.Fatalf("expected grant after month rollover, got denial (%s)", decision.Reason)
	}
	decision.Reservation.Release(true)

	var after models.Account
	if err := db.Where("id = ?", accountId).Take(&after).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if after.UsedCount != 1 {
		t.Fatalf("expected rolled-over used_count=1, got %d", after.UsedCount)
	}
	if after.QuotaPeriod != time.Now().UTC().Format("2006-01") {
		t.Fatalf("expected current quota period, got %q", after.QuotaPeriod)
	}
}

func TestWebhookEventClaimIsIdempotent(t *testing.T) {
	ctx := setupPipelineTest(t)

	claimed, err := models.ClaimWebhookEvent(ctx, models.ProviderSquare, "evt_abc", "payment.updated")
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = models.ClaimWebhookEvent(ctx, models.ProviderSquare, "evt_abc", "payment.updated")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("duplicate delivery must not claim")
	}

	// Same event id from a different provider is a distinct event.
	claimed, err = models.ClaimWebhookEvent(ctx, models.ProviderClover, "evt_abc", "PAYMENT_PROCESSED")
	if err != nil || !claimed {
		t.Fatalf("cross-provider claim: claimed=%v err=%v", claimed, err)
	}

	// Release frees the id for the provider's retry after a processing failure.
	if err := models.ReleaseWebhookEvent(ctx, models.ProviderSquare, "evt_abc"); err != nil {
		t.Fatalf("release: %v", err)
	}
	claimed, err = models.ClaimWebhookEvent(ctx, models.ProviderSquare, "evt_abc", "payment.updated")
	if err != nil || !claimed {
		t.Fatalf("reclaim after release: claimed=%v err=%v", claimed, err)
	}
}

func TestReviewRequestDedupeAndDeadRequeue(t *testing.T) {
	ctx := setupPipelineTest(t)

	account, err := models.CreateAccount(ctx, &models.NewAccount{
		Name:       "Dedupe Cafe",
		ReviewLink: "https://g.page/r/dedupe/review",
		QuotaLimit: 100,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	accountId := account.ID.String()

	phone := "+14155552671"
	first := &models.ReviewRequest{
		AccountId:     accountId,
		IntegrationId: 1,
		ExternalId:    "pay_1",
		Provider:      models.ProviderSquare,
		CustomerName:  "Jordan Avery",
		CustomerPhone: &phone,
		Status:        models.RequestStatusPending,
	}
	created, err := models.CreateReviewRequest(ctx, first)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	dup := &models.ReviewRequest{
		AccountId:     accountId,
		IntegrationId: 1,
		ExternalId:    "pay_1",
		Provider:      models.ProviderSquare,
		Status:        models.RequestStatusPending,
	}
	created, err = models.CreateReviewRequest(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created || dup.ID != first.ID {
		t.Fatalf("duplicate must resolve to the original row: created=%v id=%d want %d", created, dup.ID, first.ID)
	}

	// Simulate a job that exhausted retries and landed in the DLQ.
	db := config.GetDB()
	dead := models.SendJobDead{
		JobId:           999,
		ReviewRequestId: first.ID,
		AccountId:       accountId,
		TargetPhone:     phone,
		CustomerName:    "Jordan Avery",
		Attempts:        3,
		LastError:       "twilio returned status 500",
		FailedAt:        time.Now().UTC(),
	}
	if err := db.Create(&dead).Error; err != nil {
		t.Fatalf("seed dead job: %v", err)
	}

	job, err := models.RequeueDeadSendJob(ctx, dead.ID)
	if err != nil {
		t.Fatalf("RequeueDeadSendJob: %v", err)
	}
	if job.Status != models.SendJobStatusPending || job.Attempts != 0 {
		t.Fatalf("requeued job should be fresh: %+v", job)
	}

	var deadCount int64
	if err := db.Model(&models.SendJobDead{}).Where("id = ?", dead.ID).Count(&deadCount).Error; err != nil {
		t.Fatalf("count dead rows: %v", err)
	}
	if deadCount != 0 {
		t.Fatal("dead row must be removed after requeue")
	}

	// A second requeue of the same request must refuse while a live job exists.
	dead2 := dead
	dead2.ID = 0
	if err := db.Create(&dead2).Error; err != nil {
		t.Fatalf("seed second dead job: %v", err)
	}
	if _, err := models.RequeueDeadSendJob(ctx, dead2.ID); err == nil {
		t.Fatal("expected error when a live job already exists for the request")
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("reviews-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("reviews-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=reviews_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
