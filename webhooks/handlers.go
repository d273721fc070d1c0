package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/shopspring/decimal"
)

// SquareWebhookHandler verifies and routes Square event notifications.
//
// Signature verification fails closed: a missing SQUARE_WEBHOOK_SIGNATURE_KEY
// rejects every delivery rather than accepting unverified ones. Unrecognized
// event types are acked with 200 so Square stops redelivering them.
func SquareWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		signatureKey := os.Getenv("SQUARE_WEBHOOK_SIGNATURE_KEY")
		signature := c.GetHeader("X-Square-HmacSha256-Signature")
		if !VerifySquareSignature(signature, squareNotificationURL(c), body, signatureKey) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		var envelope SquareEnvelope
		if err := binding.JSON.BindBody(body, &envelope); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		switch envelope.Type {
		case SquareEventPaymentUpdated:
			var wrapper squarePaymentWrapper
			if err := json.Unmarshal(envelope.Data.Object, &wrapper); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payment object"})
				return
			}
			payment := wrapper.Payment
			if payment.Status != "COMPLETED" {
				c.JSON(http.StatusOK, gin.H{"status": "ignored"})
				return
			}
			ev := PurchaseEvent{
				Provider:   models.ProviderSquare,
				EventId:    envelope.EventId,
				EventType:  envelope.Type,
				MerchantId: envelope.MerchantId,
				ExternalId: payment.Id,
				CustomerId: payment.CustomerId,
				LocationId: payment.LocationId,
				Amount:     decimal.New(payment.AmountMoney.Amount, -2),
				Currency:   payment.AmountMoney.Currency,
			}
			if err := HandlePurchase(ctx, logger, ev); err != nil {
				config.LogError(logger, "webhooks", "SquareWebhookHandler", "handle purchase", map[string]interface{}{"event_id": envelope.EventId}, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
				return
			}

		case SquareEventRefundCreated:
			var wrapper squareRefundWrapper
			if err := json.Unmarshal(envelope.Data.Object, &wrapper); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed refund object"})
				return
			}
			if err := HandleRefund(ctx, logger, models.ProviderSquare, envelope.EventId, envelope.MerchantId, wrapper.Refund.PaymentId); err != nil {
				config.LogError(logger, "webhooks", "SquareWebhookHandler", "handle refund", map[string]interface{}{"event_id": envelope.EventId}, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
				return
			}

		case SquareEventOAuthRevoked:
			if err := HandleOAuthRevoked(ctx, logger, models.ProviderSquare, envelope.EventId, envelope.MerchantId); err != nil {
				config.LogError(logger, "webhooks", "SquareWebhookHandler", "handle oauth revoked", map[string]interface{}{"event_id": envelope.EventId}, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
				return
			}

		case SquareEventOrderUpdated, SquareEventCustomerUpdated, SquareEventLocationUpdated:
			// Payments drive ingestion; these carry nothing we act on yet.

		default:
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// CloverWebhookHandler verifies and routes Clover event notifications. Same
// fail-closed rule with CLOVER_WEBHOOK_SECRET and CLOVER_APP_ID.
func CloverWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		appSecret := os.Getenv("CLOVER_WEBHOOK_SECRET")
		appId := os.Getenv("CLOVER_APP_ID")
		signature := c.GetHeader("X-Clover-Signature")
		if appId == "" || !VerifyCloverSignature(signature, appId, body, appSecret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		var envelope CloverEnvelope
		if err := binding.JSON.BindBody(body, &envelope); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		switch envelope.Type {
		case CloverEventPaymentProcessed:
			if envelope.Payment == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing payment object"})
				return
			}
			ev := PurchaseEvent{
				Provider:   models.ProviderClover,
				EventId:    envelope.EventId,
				EventType:  envelope.Type,
				MerchantId: envelope.MerchantId,
				ExternalId: envelope.Payment.Id,
				Amount:     decimal.New(envelope.Payment.Amount, -2),
				Currency:   envelope.Payment.Currency,
			}
			if customer := envelope.Payment.Customer; customer != nil {
				ev.CustomerId = customer.Id
				ev.CustomerName = strings.TrimSpace(customer.FirstName + " " + customer.LastName)
				if len(customer.PhoneNumbers) > 0 {
					ev.CustomerPhone = customer.PhoneNumbers[0].PhoneNumber
				}
			}
			if err := HandlePurchase(ctx, logger, ev); err != nil {
				config.LogError(logger, "webhooks", "CloverWebhookHandler", "handle purchase", map[string]interface{}{"event_id": envelope.EventId}, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
				return
			}

		case CloverEventRefundIssued:
			if envelope.Refund == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing refund object"})
				return
			}
			if err := HandleRefund(ctx, logger, models.ProviderClover, envelope.EventId, envelope.MerchantId, envelope.Refund.PaymentId); err != nil {
				config.LogError(logger, "webhooks", "CloverWebhookHandler", "handle refund", map[string]interface{}{"event_id": envelope.EventId}, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
				return
			}

		case CloverEventOrderCreated:
			// Payments drive ingestion.

		default:
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// squareNotificationURL is the URL Square signed: the configured public
// endpoint, or reconstructed from the request when not pinned by env.
func squareNotificationURL(c *gin.Context) string {
	if url := strings.TrimSpace(os.Getenv("SQUARE_WEBHOOK_NOTIFICATION_URL")); url != "" {
		return url
	}
	scheme := "https"
	if c.Request.TLS == nil {
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
