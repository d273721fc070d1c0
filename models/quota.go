package models

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mmdatafocus/reviews_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaDecision is the outcome of a reservation attempt. When CanSend is true
// the caller holds Reservation and MUST resolve it with Release exactly once,
// on every path including panics caught upstream.
type QuotaDecision struct {
	CanSend   bool
	Remaining int
	Reason    SkipReason
	// Reservation is nil when CanSend is false.
	Reservation *QuotaReservation
}

// QuotaReservation is an in-flight hold against an account's monthly
// allowance. The optimistic form: used_count was already incremented inside
// the row lock, so Release(false) compensates with a decrement and
// Release(true) simply keeps the increment.
type QuotaReservation struct {
	AccountId string
	Amount    int
	Period    string

	released int32
	logger   *logrus.Logger
}

// ReserveQuota atomically checks and consumes quota for one send.
//
// This is the only place where "check limit" and "consume limit" happen
// together; the row-level lock on the account row is what closes the
// check-then-act race (two concurrent sends both seeing remaining=1). The
// critical section is a single read-modify-write of one counter; no network
// call ever happens under this lock.
func ReserveQuota(ctx context.Context, accountId string, amount int) (*QuotaDecision, error) {
	if amount <= 0 {
		return nil, errors.New("reserve amount must be positive")
	}

	db := config.GetDB()
	decision := &QuotaDecision{}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", accountId).
			Take(&account).Error; err != nil {
			return err
		}

		period := time.Now().UTC().Format("2006-01")
		used := account.UsedCount
		if used < 0 {
			// Corrupted counter; clamp before comparing so a bad row can't
			// grant unlimited sends.
			used = 0
		}
		if account.QuotaPeriod != period {
			// New month, counter rolls over under the same lock.
			used = 0
		}

		remaining := account.QuotaLimit - used
		if remaining < amount {
			if remaining < 0 {
				remaining = 0
			}
			decision.CanSend = false
			decision.Remaining = remaining
			decision.Reason = SkipReasonLimitReached
			return nil
		}

		if err := tx.Model(&Account{}).
			Where("id = ?", accountId).
			Updates(map[string]interface{}{
				"used_count":   used + amount,
				"quota_period": period,
			}).Error; err != nil {
			return err
		}

		decision.CanSend = true
		decision.Remaining = remaining - amount
		decision.Reservation = &QuotaReservation{
			AccountId: accountId,
			Amount:    amount,
			Period:    period,
			logger:    config.GetLogger(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if decision.CanSend {
		_ = InvalidateAccountCache(accountId)
	}
	return decision, nil
}

// Release resolves the reservation. success=true commits the hold (the eager
// increment stands); success=false returns the slot. Both the success path
// and the error-handling path may call this, so a second call is a logged
// no-op; a naive double decrement would undercount usage.
func (r *QuotaReservation) Release(success bool) {
	if r == nil {
		return
	}
	if !atomic.CompareAndSwapInt32(&r.released, 0, 1) {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"field":      "QuotaReservation",
				"account_id": r.AccountId,
			}).Warn("quota reservation released twice; second call ignored")
		}
		return
	}
	if success {
		return
	}

	db := config.GetDB()
	// Guard on quota_period: if the month rolled over since the reservation,
	// the counter was reset and there is nothing to give back.
	err := db.Model(&Account{}).
		Where("id = ? AND quota_period = ?", r.AccountId, r.Period).
		Update("used_count", gorm.Expr("GREATEST(used_count - ?, 0)", r.Amount)).Error
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"field":      "QuotaReservation",
				"account_id": r.AccountId,
			}).Error("failed to release quota reservation: " + err.Error())
		}
		return
	}
	_ = InvalidateAccountCache(r.AccountId)
}

// Resolved reports whether Release has been called (for tests and sweeps).
func (r *QuotaReservation) Resolved() bool {
	return r != nil && atomic.LoadInt32(&r.released) == 1
}
