package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
)

const StripeProviderName = "stripe"

type StripeConfig struct {
	WebhookSecret             string
	SignatureToleranceSeconds int64
}

// StripeProvider verifies the Stripe-Signature header (t=<unix>,v1=<hex>) and
// maps invoice/checkout/subscription events into canonical events.
type StripeProvider struct {
	cfg StripeConfig
	now func() time.Time
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	return &StripeProvider{cfg: cfg, now: time.Now}
}

func (p *StripeProvider) Name() string {
	return StripeProviderName
}

func (p *StripeProvider) VerifyAndParse(payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("stripe webhook secret is not configured: %w", ErrSignatureInvalid)
	}
	if !verifyStripeSignature(payload, signature, p.cfg.WebhookSecret, p.cfg.SignatureToleranceSeconds, p.now) {
		return nil, ErrSignatureInvalid
	}

	var event struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if strings.TrimSpace(event.Type) == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrPayloadMalformed)
	}

	result := &Event{
		Provider:        StripeProviderName,
		ProviderEventID: strings.TrimSpace(event.ID),
		RawPayload:      string(payload),
		OccurredAt:      time.Unix(event.Created, 0).UTC(),
	}
	if event.Created <= 0 {
		result.OccurredAt = p.now().UTC()
	}

	switch event.Type {
	case "invoice.paid":
		result.Kind = EventKindPaymentSucceeded
		result.Recurring = true
		if err := assignStripeObjectFields(result, event.Data.Object); err != nil {
			return nil, err
		}
	case "invoice.payment_failed":
		result.Kind = EventKindPaymentFailed
		result.Recurring = true
		if err := assignStripeObjectFields(result, event.Data.Object); err != nil {
			return nil, err
		}
	case "checkout.session.completed":
		result.Kind = EventKindPaymentSucceeded
		if err := assignStripeObjectFields(result, event.Data.Object); err != nil {
			return nil, err
		}
	case "customer.subscription.deleted":
		result.Kind = EventKindCancellation
		if err := assignStripeObjectFields(result, event.Data.Object); err != nil {
			return nil, err
		}
		// A subscription deletion has no invoice of its own; correlate on the
		// provider subscription id instead. Without either id the event has no
		// usable ledger key.
		if result.ExternalInvoiceID == "" {
			if result.ProviderSubscriptionID == "" {
				return nil, fmt.Errorf("%w: subscription deletion carries no invoice or subscription id", ErrPayloadMalformed)
			}
			result.ExternalInvoiceID = "cancel-" + result.ProviderSubscriptionID
		}
	default:
		result.Kind = EventKindIgnored
	}

	return result, nil
}

func assignStripeObjectFields(event *Event, payload json.RawMessage) error {
	var object struct {
		ID                string            `json:"id"`
		Mode              string            `json:"mode"`
		CustomerEmail     string            `json:"customer_email"`
		ClientReferenceID string            `json:"client_reference_id"`
		AmountPaid        int64             `json:"amount_paid"`
		AmountDue         int64             `json:"amount_due"`
		AmountTotal       int64             `json:"amount_total"`
		Currency          string            `json:"currency"`
		Subscription      interface{}       `json:"subscription"`
		Metadata          map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(payload, &object); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}

	event.ExternalInvoiceID = strings.TrimSpace(object.ID)
	event.ProviderSubscriptionID = parseStringish(object.Subscription)
	event.Currency = strings.ToUpper(strings.TrimSpace(object.Currency))

	switch {
	case object.AmountPaid > 0:
		event.AmountCents = object.AmountPaid
	case object.AmountTotal > 0:
		event.AmountCents = object.AmountTotal
	default:
		event.AmountCents = object.AmountDue
	}

	event.PlanType = strings.ToLower(strings.TrimSpace(object.Metadata["plan"]))
	event.Interval = strings.ToLower(strings.TrimSpace(object.Metadata["interval"]))
	if event.Interval == "" && event.Recurring {
		event.Interval = entity.IntervalMonthly
	}
	if object.Mode == "subscription" {
		event.Recurring = true
	}

	event.UserHint = strings.TrimSpace(object.Metadata["user_id"])
	if event.UserHint == "" {
		event.UserHint = strings.TrimSpace(object.ClientReferenceID)
	}
	if event.UserHint == "" {
		event.UserHint = strings.TrimSpace(object.CustomerEmail)
	}

	return nil
}

func verifyStripeSignature(payload []byte, signatureHeader, webhookSecret string, toleranceSeconds int64, now func() time.Time) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	nowUnix := now().Unix()
	if nowUnix-tsUnix > toleranceSeconds || tsUnix-nowUnix > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(strings.ToLower(sig))
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}

func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if raw, ok := t["id"]; ok {
			if s, ok := raw.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
