package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/reviews_backend/config"
)

// WebhookEvent is the idempotency ledger: one row per distinct provider event.
// Inserting the row IS the claim; a duplicate-key failure means some other
// delivery of the same event already owns (or finished) processing.
//
// Unique constraint: (provider, event_id).
type WebhookEvent struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Provider  Provider  `gorm:"size:20;not null;index:uniq_webhook_event,unique,priority:1" json:"provider"`
	EventId   string    `gorm:"size:191;not null;index:uniq_webhook_event,unique,priority:2" json:"event_id"`
	EventType string    `gorm:"size:100;not null" json:"event_type"`
	ClaimedAt time.Time `gorm:"autoCreateTime" json:"claimed_at"`
}

// IsDuplicateKeyErr reports a MySQL unique-constraint violation. Exported
// because the idempotent-insert idiom is used on several tables.
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// ClaimWebhookEvent atomically takes ownership of processing one event.
// claimed=false means duplicate delivery; the caller must skip without side
// effects. Any store error fails closed: we refuse to process rather than
// risk handling the same event twice.
func ClaimWebhookEvent(ctx context.Context, provider Provider, eventId, eventType string) (claimed bool, err error) {
	db := config.GetDB()
	event := WebhookEvent{
		Provider:  provider,
		EventId:   eventId,
		EventType: eventType,
	}
	if err := db.WithContext(ctx).Create(&event).Error; err == nil {
		return true, nil
	} else if IsDuplicateKeyErr(err) {
		return false, nil
	} else {
		return false, err
	}
}

// ReleaseWebhookEvent deletes the claim so the provider's retry of the same
// event can succeed later. Callers invoke this ONLY when processing failed;
// successful claims are retained as the dedup record.
func ReleaseWebhookEvent(ctx context.Context, provider Provider, eventId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventId).
		Delete(&WebhookEvent{}).Error
}

// PruneWebhookEvents deletes claims older than the retention window. Run from
// a maintenance job; dedup only needs to outlive the provider's retry horizon.
func PruneWebhookEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	db := config.GetDB()
	res := db.WithContext(ctx).
		Where("claimed_at < ?", cutoff).
		Delete(&WebhookEvent{})
	return res.RowsAffected, res.Error
}
