package entity

import "time"

const (
	SubscriptionStatusPending  = "pending"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusExpired  = "expired"
)

const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

const (
	PlanPro   = "pro"
	PlanUltra = "ultra"
)

// Subscription tracks one paid plan for one user. At most one subscription per
// (UserID, PlanType) may hold SubscriptionStatusActive at a time.
type Subscription struct {
	ID string

	UserID   uint64
	Provider string
	PlanType string

	AmountCents int64
	Currency    string
	Interval    string
	Status      string

	StartedAt          time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time

	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	CancelReason      *string

	LastPaymentID       *uint64
	NextPaymentDate     *time.Time
	FailedPaymentsCount int32

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlanTypes lists every known plan in a stable order.
func PlanTypes() []string {
	return []string{PlanPro, PlanUltra}
}

func IsValidPlanType(plan string) bool {
	switch plan {
	case PlanPro, PlanUltra:
		return true
	default:
		return false
	}
}

func IsValidInterval(interval string) bool {
	switch interval {
	case IntervalMonthly, IntervalYearly:
		return true
	default:
		return false
	}
}

// AddInterval advances a point in time by one billing interval. Extensions are
// anchored at the previous period end, never at "now", so early or late
// delivery does not drift the billing period.
func AddInterval(interval string, from time.Time) time.Time {
	if interval == IntervalYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
