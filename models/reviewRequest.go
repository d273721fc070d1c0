package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReviewRequest is one purchase event that may generate a review-request
// message. Rejected candidates are logged too: the skip trail is the
// account's activity log and is required for support/compliance review.
//
// Unique constraint: (integration_id, external_id). Re-delivery of the same
// provider event resolves to the same row, never a duplicate.
type ReviewRequest struct {
	ID            int      `gorm:"primary_key" json:"id"`
	AccountId     string   `gorm:"size:64;not null;index" json:"account_id"`
	IntegrationId int      `gorm:"not null;index:uniq_review_request_ext,unique,priority:1" json:"integration_id"`
	ExternalId    string   `gorm:"size:191;not null;index:uniq_review_request_ext,unique,priority:2" json:"external_id"`
	Provider      Provider `gorm:"size:20;not null" json:"provider"`

	CustomerName string `gorm:"size:255" json:"customer_name"`
	// CustomerPhone is E.164 once normalized; nil when the provider had none.
	CustomerPhone *string         `gorm:"size:32;index" json:"customer_phone"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency      string          `gorm:"size:3" json:"currency"`
	LocationLabel string          `gorm:"size:255" json:"location_label"`

	Status     RequestStatus `gorm:"size:40;not null;index" json:"status"`
	SkipReason *string       `gorm:"type:text" json:"skip_reason"`

	ProviderMessageId string     `gorm:"size:191" json:"provider_message_id"`
	SentAt            *time.Time `json:"sent_at"`
	CorrelationId     string     `gorm:"size:64" json:"correlation_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateReviewRequest inserts the row, resolving duplicate provider deliveries
// to the existing row instead of erroring. Returns created=false when a row
// for (integration_id, external_id) already exists.
func CreateReviewRequest(ctx context.Context, rr *ReviewRequest) (created bool, err error) {
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(rr).Error; err == nil {
		return true, nil
	} else if !IsDuplicateKeyErr(err) {
		return false, err
	}

	var existing ReviewRequest
	if err := db.WithContext(ctx).
		Where("integration_id = ? AND external_id = ?", rr.IntegrationId, rr.ExternalId).
		Take(&existing).Error; err != nil {
		return false, err
	}
	*rr = existing
	return false, nil
}

func GetReviewRequest(ctx context.Context, id int) (*ReviewRequest, error) {
	var rr ReviewRequest
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&rr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("review request %d not found: %w", id, gorm.ErrRecordNotFound)
		}
		return nil, err
	}
	return &rr, nil
}

// MarkReviewRequestSent transitions PENDING -> SENT. Terminal states are never
// overwritten; the WHERE guard makes the transition a no-op if a refund (or a
// concurrent worker) got there first.
func MarkReviewRequestSent(ctx context.Context, id int, providerMessageId string) error {
	now := time.Now().UTC()
	db := config.GetDB()
	return db.WithContext(ctx).Model(&ReviewRequest{}).
		Where("id = ? AND status = ?", id, RequestStatusPending).
		Updates(map[string]interface{}{
			"status":              RequestStatusSent,
			"provider_message_id": providerMessageId,
			"sent_at":             &now,
			"skip_reason":         nil,
		}).Error
}

// MarkReviewRequestFailed records a terminal delivery failure (retries
// exhausted or structural error). The provider error lands in skip_reason so
// the activity log shows why nothing was sent.
func MarkReviewRequestFailed(ctx context.Context, id int, cause string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&ReviewRequest{}).
		Where("id = ? AND status = ?", id, RequestStatusPending).
		Updates(map[string]interface{}{
			"status":      RequestStatusFailed,
			"skip_reason": &cause,
		}).Error
}

// MarkReviewRequestSkipped sets a skip verdict chosen after the row was
// created PENDING (limit_reached at dispatch time).
func MarkReviewRequestSkipped(ctx context.Context, id int, reason SkipReason) error {
	reasonStr := string(reason)
	db := config.GetDB()
	return db.WithContext(ctx).Model(&ReviewRequest{}).
		Where("id = ? AND status = ?", id, RequestStatusPending).
		Updates(map[string]interface{}{
			"status":      StatusForSkip(reason),
			"skip_reason": &reasonStr,
		}).Error
}

// MarkReviewRequestRefunded flips a still-pending transaction when the
// purchase is refunded. Already-sent messages stay SENT; the in-flight job
// no-ops on its cancellation check.
func MarkReviewRequestRefunded(ctx context.Context, integrationId int, externalId string) (bool, error) {
	reasonStr := string(SkipReasonRefunded)
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&ReviewRequest{}).
		Where("integration_id = ? AND external_id = ? AND status = ?", integrationId, externalId, RequestStatusPending).
		Updates(map[string]interface{}{
			"status":      RequestStatusSkippedRefunded,
			"skip_reason": &reasonStr,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecentlyContacted reports whether this account already messaged the phone
// inside the dedup window. Redis is the fast path (set on every send); the
// sent-requests table is the durable fallback after cache loss.
func RecentlyContacted(ctx context.Context, accountId, phoneE164 string) (bool, error) {
	if phoneE164 == "" {
		return false, nil
	}
	key := contactedKey(accountId, phoneE164)
	if _, hit, err := config.GetRedisValue(key); err == nil && hit {
		return true, nil
	}

	window := config.ContactDedupWindow()
	since := time.Now().UTC().Add(-window)
	var count int64
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&ReviewRequest{}).
		Where("account_id = ? AND customer_phone = ? AND status = ? AND sent_at >= ?",
			accountId, phoneE164, RequestStatusSent, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkContacted refreshes the dedup fast path after a successful send.
func MarkContacted(accountId, phoneE164 string) {
	if phoneE164 == "" {
		return
	}
	_ = config.SetRedisValue(contactedKey(accountId, phoneE164), time.Now().UTC().Format(time.RFC3339), config.ContactDedupWindow())
}

func contactedKey(accountId, phoneE164 string) string {
	return "contacted:" + accountId + ":" + phoneE164
}
