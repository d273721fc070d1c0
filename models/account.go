package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/reviews_backend/config"
	"gorm.io/gorm"
)

// Account is a tenant business. Quota fields are only ever mutated by the
// quota reservation path (see quota.go); everything else treats them as reads.
type Account struct {
	ID          uuid.UUID   `gorm:"primary_key" json:"id"`
	Name        string      `gorm:"size:255;not null" json:"name"`
	DisplayName string      `gorm:"size:255" json:"display_name"`
	Email       string      `gorm:"size:255" json:"email"`
	ReviewLink  string      `gorm:"size:512" json:"review_link"`
	MessageTone MessageTone `gorm:"size:20;not null;default:'FRIENDLY'" json:"message_tone"`
	// CustomTemplate is used only when MessageTone is CUSTOM.
	CustomTemplate string `gorm:"type:text" json:"custom_template"`

	QuotaLimit int `gorm:"not null;default:0" json:"quota_limit"`
	UsedCount  int `gorm:"not null;default:0" json:"used_count"`
	// QuotaPeriod is the UTC month ("2006-01") UsedCount belongs to. The
	// reservation transaction rolls UsedCount to zero when the month changes.
	QuotaPeriod string `gorm:"size:7" json:"quota_period"`

	SubscriptionStatus string    `gorm:"size:20;not null;default:'ACTIVE'" json:"subscription_status"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BusinessName is what customers see in outbound messages.
func (a *Account) BusinessName() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}

type NewAccount struct {
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	ReviewLink  string `json:"review_link"`
	QuotaLimit  int    `json:"quota_limit"`
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {
	db := config.GetDB()
	account := Account{
		ID:                 uuid.New(),
		Name:               input.Name,
		DisplayName:        input.DisplayName,
		Email:              input.Email,
		ReviewLink:         input.ReviewLink,
		MessageTone:        ToneFriendly,
		QuotaLimit:         input.QuotaLimit,
		QuotaPeriod:        time.Now().UTC().Format("2006-01"),
		SubscriptionStatus: SubscriptionStatusActive,
	}
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount loads an account, serving repeated reads from Redis. The cached
// copy may lag on quota counters; quota math always re-reads the row under lock.
func GetAccount(ctx context.Context, accountId string) (*Account, error) {
	var account Account
	cacheKey := "Account:" + accountId
	exists, err := config.GetRedisObject(cacheKey, &account)
	if err == nil && exists {
		return &account, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", accountId).Take(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %s not found: %w", accountId, gorm.ErrRecordNotFound)
		}
		return nil, err
	}
	_ = config.SetRedisObject(cacheKey, &account, 5*time.Minute)
	return &account, nil
}

func InvalidateAccountCache(accountId string) error {
	return config.RemoveRedisKey("Account:" + accountId)
}
