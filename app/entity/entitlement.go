package entity

import "time"

// SubscriptionStatusNone is reported in an EntitlementSnapshot when the user
// has no subscription rows at all.
const SubscriptionStatusNone = "none"

// EntitlementSnapshot is the derived, cacheable answer to "may this user use
// paid features". It is computed from the subscription set on demand and is
// never persisted as a source of truth.
type EntitlementSnapshot struct {
	IsProUser          bool       `json:"is_pro_user"`
	ProSource          string     `json:"pro_source"`
	SubscriptionStatus string     `json:"subscription_status"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}
