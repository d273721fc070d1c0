package workflow

import (
	"strings"

	"github.com/mmdatafocus/reviews_backend/models"
	"github.com/mmdatafocus/reviews_backend/utils"
	"github.com/shopspring/decimal"
)

// RequestCandidate is the normalized purchase data the eligibility checks run
// against, independent of which provider shape it came from.
type RequestCandidate struct {
	ExternalId    string
	CustomerName  string
	CustomerPhone string // raw provider value, any shape
	LocationId    string
	LocationLabel string
	Amount        decimal.Decimal
	Currency      string
}

// Verdict is the eligibility decision. PhoneE164 is filled whenever the phone
// parsed, even if a later check rejected the candidate, so the audit row
// still records who would have been messaged.
type Verdict struct {
	Eligible bool
	Skip     models.SkipReason

	PhoneE164 string
	// TargetPhone is where the message actually goes; differs from PhoneE164
	// when the integration is in test mode.
	TargetPhone string
}

// CheckEligibility runs the ordered checks; the first failing check wins.
// recentlyContacted is the store lookup's answer, computed by the caller
// before any check runs; it still ranks below the cheaper checks, so a
// candidate failing one of those reports the cheaper reason.
//
// Every verdict this returns, skip or not, must be persisted by the caller
// as a ReviewRequest row. Silent drops are not allowed.
func CheckEligibility(candidate RequestCandidate, account *models.Account, integration *models.Integration, recentlyContacted bool) Verdict {
	v := Verdict{}

	if !integration.LocationEnabled(candidate.LocationId) {
		v.Skip = models.SkipReasonLocationDisabled
		return v
	}

	p, err := utils.ParsePhone(candidate.CustomerPhone)
	if err != nil {
		v.Skip = models.SkipReasonNoPhone
		return v
	}
	v.PhoneE164 = utils.FormatE164(p)

	if !utils.IsRegionNumber(p) {
		v.Skip = models.SkipReasonNonUSNumber
		return v
	}

	if !integration.HasConsent() {
		v.Skip = models.SkipReasonNoConsent
		return v
	}

	if strings.TrimSpace(account.ReviewLink) == "" {
		v.Skip = models.SkipReasonNoReviewLink
		return v
	}

	// Independent of the monthly quota: even with quota to spare, the same
	// customer is not messaged twice inside the dedup window.
	if recentlyContacted {
		v.Skip = models.SkipReasonRecentlyContacted
		return v
	}

	if integration.IsTestMode() {
		testPhone := strings.TrimSpace(integration.TestPhone)
		if testPhone == "" {
			v.Skip = models.SkipReasonTestModeMisconfigured
			return v
		}
		v.TargetPhone = testPhone
	} else {
		v.TargetPhone = v.PhoneE164
	}

	v.Eligible = true
	return v
}
