package service

import (
	"context"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
)

// RunExpireSweepBatch flips active subscriptions whose paid period has ended
// to expired and drops their cached entitlements. It returns the number of
// rows transitioned; a partial failure keeps going and reports the first
// error so the scheduler retries the remainder next tick.
func (s *SubscriptionService) RunExpireSweepBatch(ctx context.Context) (int, error) {
	now := s.now().UTC()

	due, err := s.subs.ListDueForExpiry(ctx, now, s.batchSize())
	if err != nil {
		return 0, err
	}

	var firstErr error
	expired := 0
	for _, sub := range due {
		unlock := s.locks.Acquire(notificationLockKey(sub.UserID, sub.PlanType))

		sub.Status = entity.SubscriptionStatusExpired
		sub.NextPaymentDate = nil
		sub.UpdatedAt = now
		if err := s.subs.Update(ctx, sub); err != nil {
			unlock()
			s.logger.WithError(err).WithField("subscription_id", sub.ID).Error("Expire sweep update failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		unlock()

		expired++
		s.invalidateUserCache(ctx, sub.UserID)
	}

	return expired, firstErr
}
