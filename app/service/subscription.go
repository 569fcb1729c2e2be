package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
	"github.com/vibast-solutions/ms-go-subscriptions/app/provider"
)

// applyEvent reconciles the subscription row with an already-recorded payment.
// It runs under the per-user-plan lock held by the notification pipeline.
func (s *SubscriptionService) applyEvent(ctx context.Context, userID uint64, payment *entity.Payment, event *provider.Event) error {
	switch event.Kind {
	case provider.EventKindPaymentSucceeded:
		return s.applySuccessfulPayment(ctx, userID, payment, event)
	case provider.EventKindPaymentFailed:
		return s.applyFailedPayment(ctx, userID, payment, event)
	case provider.EventKindCancellation:
		return s.applyCancellation(ctx, userID, payment, event)
	default:
		return nil
	}
}

// applySuccessfulPayment extends the active subscription, revives an expired
// one, or creates a fresh one. Extension is anchored at the previous period
// end so an early renewal never shortens the paid-for window. A one-time
// purchase yields one bounded interval that will not auto-renew.
func (s *SubscriptionService) applySuccessfulPayment(ctx context.Context, userID uint64, payment *entity.Payment, event *provider.Event) error {
	now := s.now().UTC()
	interval := event.Interval
	if interval == "" {
		interval = entity.IntervalMonthly
	}

	sub, err := s.subs.FindActiveByUserAndPlan(ctx, userID, event.PlanType)
	if err != nil {
		return err
	}

	switch {
	case sub != nil:
		// Anchor at the previous period end so an early renewal keeps the
		// remaining paid-for time. A lapsed row that the sweep has not yet
		// expired anchors at now instead.
		anchor := sub.CurrentPeriodEnd
		if anchor.Before(now) {
			anchor = now
		}
		sub.CurrentPeriodStart = anchor
		sub.CurrentPeriodEnd = entity.AddInterval(interval, anchor)
		sub.FailedPaymentsCount = 0
		sub.LastPaymentID = &payment.ID
		sub.UpdatedAt = now
		if event.Recurring {
			next := sub.CurrentPeriodEnd
			sub.NextPaymentDate = &next
		}
		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}

	default:
		recent, err := s.subs.FindMostRecentByUserAndPlan(ctx, userID, event.PlanType)
		if err != nil {
			return err
		}

		if recent != nil && recent.Status == entity.SubscriptionStatusExpired {
			// Renewal after expiry revives the existing row instead of
			// spawning a second subscription for the same plan.
			sub = recent
			sub.Status = entity.SubscriptionStatusActive
			sub.Interval = interval
			sub.AmountCents = event.AmountCents
			sub.Currency = event.Currency
			sub.CurrentPeriodStart = now
			sub.CurrentPeriodEnd = entity.AddInterval(interval, now)
			sub.FailedPaymentsCount = 0
			sub.CancelAtPeriodEnd = !event.Recurring
			sub.CanceledAt = nil
			sub.CancelReason = nil
			sub.LastPaymentID = &payment.ID
			sub.NextPaymentDate = nil
			sub.UpdatedAt = now
			if event.Recurring {
				next := sub.CurrentPeriodEnd
				sub.NextPaymentDate = &next
			}
			if err := s.subs.Update(ctx, sub); err != nil {
				return err
			}
		} else {
			sub = s.buildSubscription(userID, payment, event, interval, now)
			if err := s.subs.Create(ctx, sub); err != nil {
				return err
			}
		}
	}

	return s.linkPaymentToSubscription(ctx, payment, sub.ID, now)
}

func (s *SubscriptionService) buildSubscription(userID uint64, payment *entity.Payment, event *provider.Event, interval string, now time.Time) *entity.Subscription {
	sub := &entity.Subscription{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Provider:           event.Provider,
		PlanType:           event.PlanType,
		AmountCents:        event.AmountCents,
		Currency:           event.Currency,
		Interval:           interval,
		Status:             entity.SubscriptionStatusActive,
		StartedAt:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   entity.AddInterval(interval, now),
		CancelAtPeriodEnd:  !event.Recurring,
		LastPaymentID:      &payment.ID,
		Metadata:           map[string]string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if event.Recurring {
		next := sub.CurrentPeriodEnd
		sub.NextPaymentDate = &next
	}
	if event.ProviderSubscriptionID != "" {
		sub.Metadata["provider_subscription_id"] = event.ProviderSubscriptionID
	}

	return sub
}

// applyFailedPayment counts the failure against the relevant subscription and
// expires it once the threshold is reached.
func (s *SubscriptionService) applyFailedPayment(ctx context.Context, userID uint64, payment *entity.Payment, event *provider.Event) error {
	now := s.now().UTC()

	sub, err := s.subs.FindActiveByUserAndPlan(ctx, userID, event.PlanType)
	if err != nil {
		return err
	}
	if sub == nil {
		sub, err = s.subs.FindMostRecentByUserAndPlan(ctx, userID, event.PlanType)
		if err != nil {
			return err
		}
	}
	if sub == nil {
		s.logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"plan_type": event.PlanType,
		}).Warn("Failed payment without a matching subscription")
		return nil
	}

	sub.FailedPaymentsCount++
	sub.LastPaymentID = &payment.ID
	sub.UpdatedAt = now
	if sub.Status == entity.SubscriptionStatusActive && sub.FailedPaymentsCount >= s.policy.MaxFailedPayments {
		sub.Status = entity.SubscriptionStatusExpired
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}

	return s.linkPaymentToSubscription(ctx, payment, sub.ID, now)
}

// applyCancellation marks the subscription canceled. Access survives until
// the period end only when the subscription was already flagged to cancel at
// period end; an ordinary cancellation revokes entitlement immediately, so
// the pre-existing flag value is preserved as-is.
func (s *SubscriptionService) applyCancellation(ctx context.Context, userID uint64, payment *entity.Payment, event *provider.Event) error {
	now := s.now().UTC()

	sub, err := s.findCancellationTarget(ctx, userID, event)
	if err != nil {
		return err
	}
	if sub == nil {
		s.logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"plan_type": event.PlanType,
		}).Warn("Cancellation without a matching active subscription")
		return nil
	}

	reason := "provider_cancellation"
	sub.Status = entity.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	sub.CancelReason = &reason
	sub.NextPaymentDate = nil
	sub.UpdatedAt = now
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}

	return s.linkPaymentToSubscription(ctx, payment, sub.ID, now)
}

// findCancellationTarget matches by plan when the event names one, otherwise
// by the provider subscription id recorded at creation time, otherwise the
// most recently started active subscription.
func (s *SubscriptionService) findCancellationTarget(ctx context.Context, userID uint64, event *provider.Event) (*entity.Subscription, error) {
	if event.PlanType != "" {
		return s.subs.FindActiveByUserAndPlan(ctx, userID, event.PlanType)
	}

	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var fallback *entity.Subscription
	for _, sub := range subs {
		if sub.Status != entity.SubscriptionStatusActive {
			continue
		}
		if event.ProviderSubscriptionID != "" && sub.Metadata["provider_subscription_id"] == event.ProviderSubscriptionID {
			return sub, nil
		}
		if fallback == nil || sub.StartedAt.After(fallback.StartedAt) {
			fallback = sub
		}
	}

	return fallback, nil
}

func (s *SubscriptionService) linkPaymentToSubscription(ctx context.Context, payment *entity.Payment, subscriptionID string, now time.Time) error {
	if payment.SubscriptionID != nil && *payment.SubscriptionID == subscriptionID {
		return nil
	}
	payment.SubscriptionID = &subscriptionID
	payment.UpdatedAt = now
	if err := s.payments.Update(ctx, payment); err != nil {
		return fmt.Errorf("link payment %d to subscription %s: %w", payment.ID, subscriptionID, err)
	}
	return nil
}
