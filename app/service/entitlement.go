package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
)

// GetEntitlement answers "what does this user have access to right now". It
// reads through the cache; a miss recomputes from storage and repopulates
// both the snapshot and the boolean pro-status keys.
func (s *SubscriptionService) GetEntitlement(ctx context.Context, userID uint64) (*entity.EntitlementSnapshot, error) {
	if userID == 0 {
		return nil, ErrInvalidRequest
	}

	if snapshot, ok := s.cache.GetSnapshot(ctx, userID); ok {
		return snapshot, nil
	}

	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := s.resolveEntitlement(subs, s.now().UTC())
	s.cache.SetSnapshot(ctx, userID, snapshot)
	s.cache.SetProStatus(ctx, userID, snapshot.IsProUser)

	return snapshot, nil
}

// IsProUser is the cheap boolean variant used by high-traffic callers.
func (s *SubscriptionService) IsProUser(ctx context.Context, userID uint64) (bool, error) {
	if userID == 0 {
		return false, ErrInvalidRequest
	}

	if isPro, ok := s.cache.GetProStatus(ctx, userID); ok {
		return isPro, nil
	}

	snapshot, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		return false, err
	}
	return snapshot.IsProUser, nil
}

// resolveEntitlement picks the subscription that currently grants access.
// Candidates are active rows inside their paid period, expired rows still
// inside the grace window that were not killed by repeated payment failures,
// and canceled rows that keep access until the period end. Ties go to the
// most recently created row.
func (s *SubscriptionService) resolveEntitlement(subs []*entity.Subscription, now time.Time) *entity.EntitlementSnapshot {
	grace := time.Duration(s.policy.GracePeriodDays) * 24 * time.Hour

	var granting *entity.Subscription
	var accessUntil time.Time

	for _, sub := range subs {
		var until time.Time
		switch sub.Status {
		case entity.SubscriptionStatusActive:
			until = sub.CurrentPeriodEnd
		case entity.SubscriptionStatusExpired:
			if sub.FailedPaymentsCount >= s.policy.MaxFailedPayments {
				continue
			}
			until = sub.CurrentPeriodEnd.Add(grace)
		case entity.SubscriptionStatusCanceled:
			if !sub.CancelAtPeriodEnd {
				continue
			}
			until = sub.CurrentPeriodEnd
		default:
			continue
		}

		if !until.After(now) {
			continue
		}
		if granting == nil || sub.CreatedAt.After(granting.CreatedAt) {
			granting = sub
			accessUntil = until
		}
	}

	if granting != nil {
		expiresAt := accessUntil
		return &entity.EntitlementSnapshot{
			IsProUser:          true,
			ProSource:          granting.PlanType,
			SubscriptionStatus: granting.Status,
			ExpiresAt:          &expiresAt,
		}
	}

	snapshot := &entity.EntitlementSnapshot{SubscriptionStatus: entity.SubscriptionStatusNone}
	if recent := mostRecentSubscription(subs); recent != nil {
		snapshot.SubscriptionStatus = recent.Status
	}
	return snapshot
}

func mostRecentSubscription(subs []*entity.Subscription) *entity.Subscription {
	var recent *entity.Subscription
	for _, sub := range subs {
		if recent == nil || sub.CreatedAt.After(recent.CreatedAt) {
			recent = sub
		}
	}
	return recent
}

func (s *SubscriptionService) ListSubscriptions(ctx context.Context, userID uint64) ([]*entity.Subscription, error) {
	if userID == 0 {
		return nil, ErrInvalidRequest
	}
	return s.subs.ListByUser(ctx, userID)
}

func (s *SubscriptionService) ListPayments(ctx context.Context, userID uint64, limit, offset int32) ([]*entity.Payment, error) {
	if userID == 0 {
		return nil, ErrInvalidRequest
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.payments.ListByUser(ctx, userID, limit, offset)
}
