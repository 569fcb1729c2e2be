package entity

import "time"

const (
	PaymentStatusPending  = "pending"
	PaymentStatusSuccess  = "success"
	PaymentStatusFailed   = "failed"
	PaymentStatusCanceled = "canceled"
)

const (
	PaymentTypeOneTime      = "one_time"
	PaymentTypeRecurring    = "recurring"
	PaymentTypeSubscription = "subscription"
)

// Payment is a durable ledger row. The (Provider, ExternalInvoiceID) pair is
// its identity and never changes after insert; redeliveries only touch status,
// timestamps, error info and metadata.
type Payment struct {
	ID uint64

	Provider          string
	ExternalInvoiceID string

	UserID         uint64
	SubscriptionID *string

	AmountCents int64
	Currency    string
	Description string

	Status        string
	PaymentType   string
	PaymentMethod string

	RawPayload   string
	ErrorCode    *string
	ErrorMessage *string
	Metadata     map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}
