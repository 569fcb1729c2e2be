package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
	"github.com/vibast-solutions/ms-go-subscriptions/app/provider"
	"github.com/vibast-solutions/ms-go-subscriptions/app/repository"
)

const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
)

type NotificationResult struct {
	Outcome string
	Payment *entity.Payment
}

// HandleNotification runs the full inbound pipeline: verify, normalize,
// resolve the user, upsert the ledger, transition the subscription and
// invalidate the read cache. Signature and parse failures happen before any
// write; once the ledger row is committed, reconciliation errors are logged
// and swallowed so the provider does not redeliver an already-recorded
// payment.
func (s *SubscriptionService) HandleNotification(ctx context.Context, providerName string, payload []byte, signature string) (*NotificationResult, error) {
	providerClient, err := s.providerReg.Get(strings.ToLower(strings.TrimSpace(providerName)))
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	event, err := providerClient.VerifyAndParse(payload, signature)
	if err != nil {
		return nil, err
	}

	if event.Kind == provider.EventKindIgnored {
		return &NotificationResult{Outcome: OutcomeIgnored}, nil
	}

	if err := validateEventPolicy(event); err != nil {
		return nil, err
	}

	userID, resolved, err := s.resolveUser(ctx, event.UserHint)
	if err != nil {
		return nil, err
	}
	if !resolved {
		// Deliberate non-fatal skip: an unauthenticated replay with an
		// arbitrary hint must not force orphaned financial records, and the
		// provider must stop redelivering.
		s.logger.WithFields(map[string]interface{}{
			"provider":            event.Provider,
			"external_invoice_id": event.ExternalInvoiceID,
		}).Warn("User hint did not resolve, acknowledging without writes")
		return &NotificationResult{Outcome: OutcomeSkipped}, nil
	}

	unlock := s.acquireNotificationLocks(userID, event.PlanType)
	defer unlock()

	payment, applied, err := s.upsertLedger(ctx, userID, event)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A previous delivery may have committed the ledger row and then lost
		// the subscription transition. A redelivered row that never got linked
		// to a subscription is reconciled now, so the transition stays
		// re-derivable from the ledger alone.
		if payment.SubscriptionID == nil {
			s.reconcile(ctx, userID, payment, event)
		}
		return &NotificationResult{Outcome: OutcomeDuplicate, Payment: payment}, nil
	}

	s.reconcile(ctx, userID, payment, event)

	return &NotificationResult{Outcome: OutcomeProcessed, Payment: payment}, nil
}

// reconcile runs the subscription transition for an already-committed ledger
// row and refreshes the read cache. Transition errors are logged and
// swallowed; the provider already got its payment recorded and the next
// delivery retries the transition.
func (s *SubscriptionService) reconcile(ctx context.Context, userID uint64, payment *entity.Payment, event *provider.Event) {
	if err := s.applyEvent(ctx, userID, payment, event); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"provider":            event.Provider,
			"external_invoice_id": event.ExternalInvoiceID,
			"user_id":             userID,
		}).Error("Subscription transition failed after ledger write")
	}

	s.invalidateUserCache(ctx, userID)
}

func validateEventPolicy(event *provider.Event) error {
	if strings.TrimSpace(event.ExternalInvoiceID) == "" {
		return fmt.Errorf("%w: missing external invoice id", provider.ErrPayloadMalformed)
	}

	if event.Kind == provider.EventKindCancellation {
		if event.PlanType != "" && !entity.IsValidPlanType(event.PlanType) {
			return fmt.Errorf("%w: plan %q", ErrPolicyViolation, event.PlanType)
		}
		return nil
	}

	if !entity.IsValidPlanType(event.PlanType) {
		return fmt.Errorf("%w: plan %q", ErrPolicyViolation, event.PlanType)
	}
	if event.Recurring && !entity.IsValidInterval(event.Interval) {
		return fmt.Errorf("%w: interval %q", ErrPolicyViolation, event.Interval)
	}
	if event.Interval != "" && !entity.IsValidInterval(event.Interval) {
		return fmt.Errorf("%w: interval %q", ErrPolicyViolation, event.Interval)
	}

	return nil
}

// resolveUser maps the hint to an internal user id: direct id match first,
// then email lookup.
func (s *SubscriptionService) resolveUser(ctx context.Context, hint string) (uint64, bool, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return 0, false, nil
	}

	if id, err := strconv.ParseUint(hint, 10, 64); err == nil && id > 0 {
		exists, err := s.users.Exists(ctx, id)
		if err != nil {
			return 0, false, err
		}
		if exists {
			return id, true, nil
		}
		return 0, false, nil
	}

	id, err := s.users.FindIDByEmail(ctx, hint)
	if err != nil {
		return 0, false, err
	}
	if id == 0 {
		return 0, false, nil
	}
	return id, true, nil
}

// upsertLedger inserts the payment on first delivery and updates only the
// mutable fields on redelivery. The second return value reports whether this
// delivery changed anything; an unchanged redelivery must not touch the
// subscription again.
func (s *SubscriptionService) upsertLedger(ctx context.Context, userID uint64, event *provider.Event) (*entity.Payment, bool, error) {
	now := s.now().UTC()
	newStatus := paymentStatusForKind(event.Kind)

	existing, err := s.payments.FindByProviderInvoiceID(ctx, event.Provider, event.ExternalInvoiceID)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		payment := s.buildPayment(userID, event, newStatus, now)
		if err := s.payments.Create(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrPaymentAlreadyExists) {
				// Lost the race against a concurrent redelivery from another
				// provider connection; re-read and fall through to the update
				// path.
				existing, err = s.payments.FindByProviderInvoiceID(ctx, event.Provider, event.ExternalInvoiceID)
				if err != nil {
					return nil, false, err
				}
				if existing == nil {
					return nil, false, repository.ErrPaymentNotFound
				}
			} else {
				return nil, false, err
			}
		} else {
			return payment, true, nil
		}
	}

	if existing.Status == newStatus {
		return existing, false, nil
	}

	existing.Status = newStatus
	existing.UpdatedAt = now
	if newStatus == entity.PaymentStatusSuccess {
		existing.PaidAt = &now
		existing.ErrorCode = nil
		existing.ErrorMessage = nil
	}
	if newStatus == entity.PaymentStatusFailed {
		code := "payment_failed"
		existing.ErrorCode = &code
	}

	if err := s.payments.Update(ctx, existing); err != nil {
		return nil, false, err
	}

	return existing, true, nil
}

func (s *SubscriptionService) buildPayment(userID uint64, event *provider.Event, status string, now time.Time) *entity.Payment {
	paymentType := entity.PaymentTypeOneTime
	if event.Recurring {
		paymentType = entity.PaymentTypeRecurring
	}

	payment := &entity.Payment{
		Provider:          event.Provider,
		ExternalInvoiceID: event.ExternalInvoiceID,
		UserID:            userID,
		AmountCents:       event.AmountCents,
		Currency:          event.Currency,
		Description:       paymentDescription(event),
		Status:            status,
		PaymentType:       paymentType,
		RawPayload:        event.RawPayload,
		Metadata:          map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if event.ProviderEventID != "" {
		payment.Metadata["provider_event_id"] = event.ProviderEventID
	}
	if status == entity.PaymentStatusSuccess {
		paidAt := now
		payment.PaidAt = &paidAt
	}
	if status == entity.PaymentStatusFailed {
		code := "payment_failed"
		payment.ErrorCode = &code
	}

	return payment
}

func paymentDescription(event *provider.Event) string {
	if event.Kind == provider.EventKindCancellation {
		return "subscription cancellation"
	}
	if event.PlanType == "" {
		return "payment"
	}
	return event.PlanType + " plan payment"
}

func paymentStatusForKind(kind string) string {
	switch kind {
	case provider.EventKindPaymentSucceeded:
		return entity.PaymentStatusSuccess
	case provider.EventKindPaymentFailed:
		return entity.PaymentStatusFailed
	case provider.EventKindCancellation:
		return entity.PaymentStatusCanceled
	default:
		return entity.PaymentStatusPending
	}
}

func notificationLockKey(userID uint64, planType string) string {
	return strconv.FormatUint(userID, 10) + ":" + planType
}

// acquireNotificationLocks serializes processing for the (user, plan) pair. An
// event that names no plan may touch any of the user's subscriptions, so it
// holds every plan key, acquired in a fixed order.
func (s *SubscriptionService) acquireNotificationLocks(userID uint64, planType string) func() {
	plans := []string{planType}
	if planType == "" {
		plans = entity.PlanTypes()
	}

	unlocks := make([]func(), 0, len(plans))
	for _, plan := range plans {
		unlocks = append(unlocks, s.locks.Acquire(notificationLockKey(userID, plan)))
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
