package workflow

import (
	"testing"

	"github.com/mmdatafocus/reviews_backend/models"
)

func boolPtr(v bool) *bool { return &v }

func eligibleFixture() (RequestCandidate, *models.Account, *models.Integration) {
	candidate := RequestCandidate{
		ExternalId:    "pay_123",
		CustomerName:  "Jordan Avery",
		CustomerPhone: "(415) 555-2671",
		LocationId:    "loc_1",
	}
	account := &models.Account{
		Name:       "Blue Bottle Cafe",
		ReviewLink: "https://g.page/r/blue-bottle/review",
	}
	integration := &models.Integration{
		ConsentConfirmed: boolPtr(true),
		TestMode:         boolPtr(false),
	}
	return candidate, account, integration
}

func TestCheckEligibilityEligible(t *testing.T) {
	candidate, account, integration := eligibleFixture()
	v := CheckEligibility(candidate, account, integration, false)
	if !v.Eligible {
		t.Fatalf("expected eligible, got skip %q", v.Skip)
	}
	if v.PhoneE164 != "+14155552671" {
		t.Fatalf("expected normalized phone +14155552671, got %q", v.PhoneE164)
	}
	if v.TargetPhone != v.PhoneE164 {
		t.Fatalf("expected target phone = customer phone outside test mode, got %q", v.TargetPhone)
	}
}

func TestCheckEligibilitySkipReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RequestCandidate, *models.Account, *models.Integration)
		want   models.SkipReason
	}{
		{
			name: "location disabled",
			mutate: func(c *RequestCandidate, a *models.Account, i *models.Integration) {
				i.EnabledLocationsJSON = []byte(`["loc_other"]`)
			},
			want: models.SkipReasonLocationDisabled,
		},
		{
			name: "no phone",
			mutate: func(c *RequestCandidate, a *models.Account, i *models.Integration) {
				c.CustomerPhone = ""
			},
			want: models.SkipReasonNoPhone,
		},
		{
			name: "unparseable phone",
			mutate: func(c *RequestCandidate, a *models.Account, i *models.Integration) {
				c.CustomerPhone = "not a number"
			},
			want: models.SkipReasonNoPhone,
		},
		{
			name: "non us number",
			mutate: func(c *RequestCandidate, a *models.Account, i *models.Integration) {
				c.CustomerPhone = "+447911123456"
			},
			want: models.SkipReasonNonUSNumber,
		},
		{
			name: "no consent",
			mutate: func(c *RequestCandidate, a *models.Account, i *models.Integration) {
				i.ConsentConfirmed = boolPtr(false)
			},
			want: models.SkipReasonNoConsent,
		},
		{
			name: "no review link",
			mutate: func(c *RequestCandidate, a *models.Account, i *models.Integration) {
				a.ReviewLink = "  "
			},
			want: models.SkipReasonNoReviewLink,
		},
		{
			name: "test mode without test phone",
			mutate: func(c *RequestCandidate, a *models.Account, i *models.Integration) {
				i.TestMode = boolPtr(true)
				i.TestPhone = ""
			},
			want: models.SkipReasonTestModeMisconfigured,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			candidate, account, integration := eligibleFixture()
			tc.mutate(&candidate, account, integration)
			v := CheckEligibility(candidate, account, integration, false)
			if v.Eligible {
				t.Fatalf("expected skip %q, got eligible", tc.want)
			}
			if v.Skip != tc.want {
				t.Fatalf("expected skip %q, got %q", tc.want, v.Skip)
			}
		})
	}
}

func TestCheckEligibilityRecentlyContacted(t *testing.T) {
	candidate, account, integration := eligibleFixture()
	v := CheckEligibility(candidate, account, integration, true)
	if v.Eligible || v.Skip != models.SkipReasonRecentlyContacted {
		t.Fatalf("expected recently_contacted, got eligible=%v skip=%q", v.Eligible, v.Skip)
	}
	if v.PhoneE164 != "+14155552671" {
		t.Fatalf("normalized phone should survive a recency skip, got %q", v.PhoneE164)
	}
}

func TestCheckEligibilityOrdering(t *testing.T) {
	// With several violations at once the first check in the order wins.
	candidate, account, integration := eligibleFixture()
	candidate.CustomerPhone = ""
	integration.ConsentConfirmed = boolPtr(false)
	account.ReviewLink = ""

	v := CheckEligibility(candidate, account, integration, true)
	if v.Skip != models.SkipReasonNoPhone {
		t.Fatalf("expected no_phone to win, got %q", v.Skip)
	}
}

func TestCheckEligibilityTestModeRedirectsTarget(t *testing.T) {
	candidate, account, integration := eligibleFixture()
	integration.TestMode = boolPtr(true)
	integration.TestPhone = "+14155550199"

	v := CheckEligibility(candidate, account, integration, false)
	if !v.Eligible {
		t.Fatalf("expected eligible, got skip %q", v.Skip)
	}
	if v.TargetPhone != "+14155550199" {
		t.Fatalf("expected test phone target, got %q", v.TargetPhone)
	}
	if v.PhoneE164 != "+14155552671" {
		t.Fatalf("customer phone should still be recorded, got %q", v.PhoneE164)
	}
}

func TestCheckEligibilityEmptyLocationListAllowsAll(t *testing.T) {
	candidate, account, integration := eligibleFixture()
	integration.EnabledLocationsJSON = []byte(`[]`)
	v := CheckEligibility(candidate, account, integration, false)
	if !v.Eligible {
		t.Fatalf("empty enabled-locations list must allow every location, got skip %q", v.Skip)
	}
}
