package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"gorm.io/gorm"
)

// Integration is one account's connection to one POS provider. Access tokens
// are opaque stored strings; the OAuth exchange that minted them lives in the
// dashboard service.
type Integration struct {
	ID         int      `gorm:"primary_key" json:"id"`
	AccountId  string   `gorm:"size:64;not null;index:uniq_integration_merchant,unique,priority:3" json:"account_id"`
	Provider   Provider `gorm:"size:20;not null;index:uniq_integration_merchant,unique,priority:1" json:"provider"`
	MerchantId string   `gorm:"size:191;not null;index:uniq_integration_merchant,unique,priority:2" json:"merchant_id"`

	Status      string `gorm:"size:20;not null;default:'CONNECTED'" json:"status"`
	AccessToken string `gorm:"size:512" json:"-"`

	// ConsentConfirmed records the merchant's attestation that customers
	// agreed to receive messages. No confirmation, no sends.
	ConsentConfirmed *bool  `gorm:"not null;default:false" json:"consent_confirmed"`
	TestMode         *bool  `gorm:"not null;default:false" json:"test_mode"`
	TestPhone        string `gorm:"size:32" json:"test_phone"`

	// EnabledLocationsJSON is a JSON array of provider location ids.
	// Empty means all locations generate review requests.
	EnabledLocationsJSON []byte `gorm:"type:json" json:"enabled_locations"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *Integration) IsTestMode() bool {
	return i.TestMode != nil && *i.TestMode
}

func (i *Integration) HasConsent() bool {
	return i.ConsentConfirmed != nil && *i.ConsentConfirmed
}

// LocationEnabled reports whether a provider location may generate review
// requests. An empty or unparseable list means no restriction.
func (i *Integration) LocationEnabled(locationId string) bool {
	if len(i.EnabledLocationsJSON) == 0 {
		return true
	}
	var enabled []string
	if err := json.Unmarshal(i.EnabledLocationsJSON, &enabled); err != nil {
		return true
	}
	if len(enabled) == 0 {
		return true
	}
	for _, id := range enabled {
		if id == locationId {
			return true
		}
	}
	return false
}

// GetIntegrationByMerchant routes an inbound webhook to its integration.
// Cached in Redis because every webhook hits this lookup.
func GetIntegrationByMerchant(ctx context.Context, provider Provider, merchantId string) (*Integration, error) {
	var integration Integration
	cacheKey := fmt.Sprintf("Integration:%s:%s", provider, merchantId)
	exists, err := config.GetRedisObject(cacheKey, &integration)
	if err == nil && exists {
		return &integration, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("provider = ? AND merchant_id = ?", provider, merchantId).
		Take(&integration).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no integration for %s merchant %s: %w", provider, merchantId, gorm.ErrRecordNotFound)
		}
		return nil, err
	}
	_ = config.SetRedisObject(cacheKey, &integration, 5*time.Minute)
	return &integration, nil
}

func InvalidateIntegrationCache(provider Provider, merchantId string) error {
	return config.RemoveRedisKey(fmt.Sprintf("Integration:%s:%s", provider, merchantId))
}

// MarkIntegrationDisconnected handles provider-side OAuth revocation. The
// integration stops receiving sends until the merchant reconnects.
func MarkIntegrationDisconnected(ctx context.Context, provider Provider, merchantId string) error {
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Integration{}).
		Where("provider = ? AND merchant_id = ?", provider, merchantId).
		Updates(map[string]interface{}{
			"status": IntegrationStatusDisconnected,
		})
	if res.Error != nil {
		return res.Error
	}
	_ = InvalidateIntegrationCache(provider, merchantId)
	return nil
}
