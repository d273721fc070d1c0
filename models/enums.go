package models

// Provider identifies the POS system an integration connects to.
type Provider string

const (
	ProviderSquare Provider = "SQUARE"
	ProviderClover Provider = "CLOVER"
)

// RequestStatus is the lifecycle state of a ReviewRequest.
// PENDING is the only non-terminal state; skip states are set before enqueue,
// SENT/FAILED are set by the dispatch worker.
type RequestStatus string

const (
	RequestStatusPending RequestStatus = "PENDING"
	RequestStatusSent    RequestStatus = "SENT"
	RequestStatusFailed  RequestStatus = "FAILED"

	RequestStatusSkippedNoPhone               RequestStatus = "SKIPPED_NO_PHONE"
	RequestStatusSkippedNonUSNumber           RequestStatus = "SKIPPED_NON_US_NUMBER"
	RequestStatusSkippedNoConsent             RequestStatus = "SKIPPED_NO_CONSENT"
	RequestStatusSkippedNoReviewLink          RequestStatus = "SKIPPED_NO_REVIEW_LINK"
	RequestStatusSkippedLimitReached          RequestStatus = "SKIPPED_LIMIT_REACHED"
	RequestStatusSkippedRecentlyContacted     RequestStatus = "SKIPPED_RECENTLY_CONTACTED"
	RequestStatusSkippedTestModeMisconfigured RequestStatus = "SKIPPED_TEST_MODE_MISCONFIGURED"
	RequestStatusSkippedLocationDisabled      RequestStatus = "SKIPPED_LOCATION_DISABLED"
	RequestStatusSkippedRefunded              RequestStatus = "SKIPPED_REFUNDED"
)

// SkipReason is the typed reason recorded on audited skips. Values are stable
// DB/API tokens; account owners see them in their activity log.
type SkipReason string

const (
	SkipReasonNoPhone               SkipReason = "no_phone"
	SkipReasonNonUSNumber           SkipReason = "non_us_number"
	SkipReasonNoConsent             SkipReason = "no_consent"
	SkipReasonNoReviewLink          SkipReason = "no_review_link"
	SkipReasonLimitReached          SkipReason = "limit_reached"
	SkipReasonRecentlyContacted     SkipReason = "recently_contacted"
	SkipReasonTestModeMisconfigured SkipReason = "test_mode_misconfigured"
	SkipReasonLocationDisabled      SkipReason = "location_disabled"
	SkipReasonRefunded              SkipReason = "refunded"
)

// StatusForSkip maps a skip reason to its terminal request status.
func StatusForSkip(reason SkipReason) RequestStatus {
	switch reason {
	case SkipReasonNoPhone:
		return RequestStatusSkippedNoPhone
	case SkipReasonNonUSNumber:
		return RequestStatusSkippedNonUSNumber
	case SkipReasonNoConsent:
		return RequestStatusSkippedNoConsent
	case SkipReasonNoReviewLink:
		return RequestStatusSkippedNoReviewLink
	case SkipReasonLimitReached:
		return RequestStatusSkippedLimitReached
	case SkipReasonRecentlyContacted:
		return RequestStatusSkippedRecentlyContacted
	case SkipReasonTestModeMisconfigured:
		return RequestStatusSkippedTestModeMisconfigured
	case SkipReasonLocationDisabled:
		return RequestStatusSkippedLocationDisabled
	case SkipReasonRefunded:
		return RequestStatusSkippedRefunded
	default:
		return RequestStatusFailed
	}
}

// MessageTone selects the outbound message template. The set is closed; an
// unknown value renders as FRIENDLY.
type MessageTone string

const (
	ToneFriendly     MessageTone = "FRIENDLY"
	ToneProfessional MessageTone = "PROFESSIONAL"
	ToneGrateful     MessageTone = "GRATEFUL"
	ToneCustom       MessageTone = "CUSTOM"
)

// Subscription statuses for Account.SubscriptionStatus.
// Billing business rules live elsewhere; the pipeline only reads this field.
const (
	SubscriptionStatusActive   = "ACTIVE"
	SubscriptionStatusPastDue  = "PAST_DUE"
	SubscriptionStatusCanceled = "CANCELED"
)

// Integration connection statuses.
const (
	IntegrationStatusConnected    = "CONNECTED"
	IntegrationStatusDisconnected = "DISCONNECTED"
)
