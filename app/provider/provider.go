package provider

import (
	"errors"
	"time"
)

var (
	ErrProviderNotSupported = errors.New("provider is not supported")
	ErrSignatureInvalid     = errors.New("signature verification failed")
	ErrPayloadMalformed     = errors.New("payload is malformed")
)

const (
	EventKindPaymentSucceeded = "payment_succeeded"
	EventKindPaymentFailed    = "payment_failed"
	EventKindCancellation     = "cancellation"
	EventKindIgnored          = "ignored"
)

// Event is the canonical, provider-agnostic form of an inbound notification.
// Everything downstream of the normalizer operates on this shape only.
type Event struct {
	Provider        string
	ProviderEventID string

	ExternalInvoiceID      string
	ProviderSubscriptionID string

	// UserHint is a direct internal user id or a customer email. Resolution
	// happens later; an unresolvable hint is a non-fatal skip.
	UserHint string

	PlanType string
	Interval string

	AmountCents int64
	Currency    string

	Kind      string
	Recurring bool

	OccurredAt time.Time
	RawPayload string
}

// Provider authenticates a raw notification and normalizes it into an Event.
// VerifyAndParse must fail closed: no Event is returned unless the signature
// checks out, and nothing is persisted before it does.
type Provider interface {
	Name() string
	VerifyAndParse(payload []byte, signature string) (*Event, error)
}
