package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type NotificationResponse struct {
	Status string `json:"status"`
}

type EntitlementResponse struct {
	UserID             uint64 `json:"user_id"`
	IsProUser          bool   `json:"is_pro_user"`
	ProSource          string `json:"pro_source,omitempty"`
	SubscriptionStatus string `json:"subscription_status"`
	ExpiresAt          string `json:"expires_at,omitempty"`
}

type SubscriptionResponse struct {
	ID                  string `json:"id"`
	UserID              uint64 `json:"user_id"`
	Provider            string `json:"provider"`
	PlanType            string `json:"plan_type"`
	AmountCents         int64  `json:"amount_cents"`
	Currency            string `json:"currency"`
	Interval            string `json:"interval"`
	Status              string `json:"status"`
	StartedAt           string `json:"started_at"`
	CurrentPeriodStart  string `json:"current_period_start"`
	CurrentPeriodEnd    string `json:"current_period_end"`
	CancelAtPeriodEnd   bool   `json:"cancel_at_period_end"`
	CanceledAt          string `json:"canceled_at,omitempty"`
	CancelReason        string `json:"cancel_reason,omitempty"`
	NextPaymentDate     string `json:"next_payment_date,omitempty"`
	FailedPaymentsCount int32  `json:"failed_payments_count"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

type ListSubscriptionsResponse struct {
	Subscriptions []*SubscriptionResponse `json:"subscriptions"`
}

type PaymentResponse struct {
	ID                uint64 `json:"id"`
	Provider          string `json:"provider"`
	ExternalInvoiceID string `json:"external_invoice_id"`
	UserID            uint64 `json:"user_id"`
	SubscriptionID    string `json:"subscription_id,omitempty"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	Description       string `json:"description,omitempty"`
	Status            string `json:"status"`
	PaymentType       string `json:"payment_type"`
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	PaidAt            string `json:"paid_at,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

type ListPaymentsResponse struct {
	Payments []*PaymentResponse `json:"payments"`
}
