package webhooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/mmdatafocus/reviews_backend/utils"
	"github.com/mmdatafocus/reviews_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PurchaseEvent is a provider-neutral completed purchase, built by the
// per-provider routing before the shared pipeline runs.
type PurchaseEvent struct {
	Provider   models.Provider
	EventId    string
	EventType  string
	MerchantId string

	ExternalId    string // payment/order id, the idempotency anchor downstream
	CustomerId    string
	CustomerName  string
	CustomerPhone string
	LocationId    string
	LocationLabel string
	Amount        decimal.Decimal
	Currency      string
}

// HandlePurchase is the ingestion pipeline for one completed purchase:
// claim the event, resolve integration and account, complete the customer
// contact, run eligibility, persist the audit row, enqueue when eligible.
//
// A non-nil return means processing failed after the claim; the claim is
// released so the provider's redelivery can run the whole thing again.
func HandlePurchase(ctx context.Context, logger *logrus.Logger, ev PurchaseEvent) error {
	claimed, err := models.ClaimWebhookEvent(ctx, ev.Provider, ev.EventId, ev.EventType)
	if err != nil {
		// Fail closed: without a claim we cannot rule out double processing.
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if !claimed {
		logger.WithFields(logrus.Fields{
			"field":    "Ingest",
			"provider": ev.Provider,
			"event_id": ev.EventId,
		}).Debug("duplicate webhook delivery, skipping")
		return nil
	}

	if err := processPurchase(ctx, logger, ev); err != nil {
		if relErr := models.ReleaseWebhookEvent(ctx, ev.Provider, ev.EventId); relErr != nil {
			config.LogError(logger, "webhooks", "HandlePurchase", "release claim", map[string]interface{}{"event_id": ev.EventId}, relErr)
		}
		return err
	}
	return nil
}

func processPurchase(ctx context.Context, logger *logrus.Logger, ev PurchaseEvent) error {
	integration, err := models.GetIntegrationByMerchant(ctx, ev.Provider, ev.MerchantId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No integration for this merchant: nothing to do, and retrying
			// won't create one. Keep the claim and ack.
			logger.WithFields(logrus.Fields{
				"field":       "Ingest",
				"provider":    ev.Provider,
				"merchant_id": ev.MerchantId,
			}).Warn("webhook for unknown merchant, ignored")
			return nil
		}
		return err
	}
	if integration.Status != models.IntegrationStatusConnected {
		return nil
	}

	account, err := models.GetAccount(ctx, integration.AccountId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			config.LogError(logger, "webhooks", "processPurchase", "integration without account",
				map[string]interface{}{"integration_id": integration.ID, "account_id": integration.AccountId}, err)
			return nil
		}
		return err
	}

	ctx = utils.SetAccountIdInContext(ctx, integration.AccountId)
	ctx = utils.SetIntegrationIdInContext(ctx, integration.ID)

	// Payment webhooks usually omit contact details; fetch the profile when
	// we have a customer id and no phone yet. Transient API failures bubble
	// up so the provider redelivers.
	if ev.CustomerPhone == "" && ev.CustomerId != "" {
		contact, err := fetchCustomerContact(ctx, integration, ev)
		if err != nil {
			return fmt.Errorf("fetch customer contact: %w", err)
		}
		if contact != nil {
			if ev.CustomerName == "" {
				ev.CustomerName = contact.Name
			}
			ev.CustomerPhone = contact.Phone
		}
	}

	recentlyContacted := false
	if p, err := utils.ParsePhone(ev.CustomerPhone); err == nil {
		recentlyContacted, err = models.RecentlyContacted(ctx, integration.AccountId, utils.FormatE164(p))
		if err != nil {
			return fmt.Errorf("recently contacted lookup: %w", err)
		}
	}

	candidate := workflow.RequestCandidate{
		ExternalId:    ev.ExternalId,
		CustomerName:  ev.CustomerName,
		CustomerPhone: ev.CustomerPhone,
		LocationId:    ev.LocationId,
		LocationLabel: ev.LocationLabel,
		Amount:        ev.Amount,
		Currency:      ev.Currency,
	}
	verdict := workflow.CheckEligibility(candidate, account, integration, recentlyContacted)

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	request := &models.ReviewRequest{
		AccountId:     integration.AccountId,
		IntegrationId: integration.ID,
		ExternalId:    ev.ExternalId,
		Provider:      ev.Provider,
		CustomerName:  ev.CustomerName,
		Amount:        ev.Amount,
		Currency:      ev.Currency,
		LocationLabel: ev.LocationLabel,
		CorrelationId: correlationId,
	}
	if verdict.PhoneE164 != "" {
		phone := verdict.PhoneE164
		request.CustomerPhone = &phone
	}
	if verdict.Eligible {
		request.Status = models.RequestStatusPending
	} else {
		reason := string(verdict.Skip)
		request.Status = models.StatusForSkip(verdict.Skip)
		request.SkipReason = &reason
	}

	created, err := models.CreateReviewRequest(ctx, request)
	if err != nil {
		return fmt.Errorf("create review request: %w", err)
	}
	if !created && request.Status != models.RequestStatusPending {
		// A different event id covered the same purchase (order + payment
		// both firing) and recorded a terminal verdict. The first writer won.
		return nil
	}

	if !verdict.Eligible {
		if created {
			logger.WithFields(logrus.Fields{
				"field":             "Ingest",
				"review_request_id": request.ID,
				"skip_reason":       verdict.Skip,
				"correlation_id":    correlationId,
			}).Info("purchase not eligible for review request")
		}
		return nil
	}

	// When created is false the row is still PENDING: an earlier delivery may
	// have died between writing the row and enqueueing its job. The one-job-
	// per-request index makes this enqueue the repair in that case, and a
	// no-op when the job already exists.
	if _, err := workflow.EnqueueSendJob(ctx, request, verdict.TargetPhone, config.SendDispatchDelay()); err != nil {
		return fmt.Errorf("enqueue send job: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"field":             "Ingest",
		"review_request_id": request.ID,
		"correlation_id":    correlationId,
	}).Info("review request queued")
	return nil
}

func fetchCustomerContact(ctx context.Context, integration *models.Integration, ev PurchaseEvent) (*CustomerContact, error) {
	switch ev.Provider {
	case models.ProviderSquare:
		return FetchSquareCustomer(ctx, integration.AccessToken, ev.CustomerId)
	case models.ProviderClover:
		return FetchCloverCustomer(ctx, integration.AccessToken, ev.MerchantId, ev.CustomerId)
	default:
		return nil, nil
	}
}

// HandleRefund cancels a still-pending review request when its purchase is
// refunded. Arriving before the purchase event, or after the send, are both
// normal; the pending-only guard makes the update safe either way.
func HandleRefund(ctx context.Context, logger *logrus.Logger, provider models.Provider, eventId, merchantId, externalId string) error {
	claimed, err := models.ClaimWebhookEvent(ctx, provider, eventId, "refund")
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if !claimed {
		return nil
	}

	integration, err := models.GetIntegrationByMerchant(ctx, provider, merchantId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if relErr := models.ReleaseWebhookEvent(ctx, provider, eventId); relErr != nil {
			config.LogError(logger, "webhooks", "HandleRefund", "release claim", map[string]interface{}{"event_id": eventId}, relErr)
		}
		return err
	}

	ctx = utils.SetAccountIdInContext(ctx, integration.AccountId)
	cancelled, err := models.MarkReviewRequestRefunded(ctx, integration.ID, externalId)
	if err != nil {
		if relErr := models.ReleaseWebhookEvent(ctx, provider, eventId); relErr != nil {
			config.LogError(logger, "webhooks", "HandleRefund", "release claim", map[string]interface{}{"event_id": eventId}, relErr)
		}
		return err
	}
	if cancelled {
		logger.WithFields(logrus.Fields{
			"field":       "Ingest",
			"provider":    provider,
			"external_id": externalId,
		}).Info("pending review request cancelled by refund")
	}
	return nil
}

// HandleOAuthRevoked marks the integration disconnected so later webhooks and
// queued work for this merchant become no-ops.
func HandleOAuthRevoked(ctx context.Context, logger *logrus.Logger, provider models.Provider, eventId, merchantId string) error {
	claimed, err := models.ClaimWebhookEvent(ctx, provider, eventId, "oauth.revoked")
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if !claimed {
		return nil
	}

	if err := models.MarkIntegrationDisconnected(ctx, provider, merchantId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if relErr := models.ReleaseWebhookEvent(ctx, provider, eventId); relErr != nil {
			config.LogError(logger, "webhooks", "HandleOAuthRevoked", "release claim", map[string]interface{}{"event_id": eventId}, relErr)
		}
		return err
	}

	logger.WithFields(logrus.Fields{
		"field":       "Ingest",
		"provider":    provider,
		"merchant_id": merchantId,
	}).Warn("integration disconnected by provider oauth revocation")
	return nil
}
