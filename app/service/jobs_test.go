package service

import (
	"context"
	"testing"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
)

func TestRunExpireSweepBatchExpiresLapsedSubscriptions(t *testing.T) {
	fixture := newServiceFixture()

	lapsed := activeSubscription("sub-lapsed", 42, entity.PlanPro, fixture.now.AddDate(0, 0, -1))
	current := activeSubscription("sub-current", 43, entity.PlanPro, fixture.now.AddDate(0, 0, 10))
	fixture.subs.add(lapsed)
	fixture.subs.add(current)

	expired, err := fixture.service.RunExpireSweepBatch(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected one expired subscription, got %d", expired)
	}

	if got := fixture.subs.get("sub-lapsed").Status; got != entity.SubscriptionStatusExpired {
		t.Fatalf("expected lapsed subscription expired, got %s", got)
	}
	if got := fixture.subs.get("sub-current").Status; got != entity.SubscriptionStatusActive {
		t.Fatalf("current subscription must stay active, got %s", got)
	}
	if len(fixture.cache.invalidations) != 1 || fixture.cache.invalidations[0] != 42 {
		t.Fatalf("expected cache invalidation for user 42, got %v", fixture.cache.invalidations)
	}
}

func TestRunExpireSweepBatchReportsFirstErrorAndContinues(t *testing.T) {
	fixture := newServiceFixture()

	fixture.subs.add(activeSubscription("sub-a", 42, entity.PlanPro, fixture.now.AddDate(0, 0, -2)))
	fixture.subs.add(activeSubscription("sub-b", 43, entity.PlanPro, fixture.now.AddDate(0, 0, -1)))
	fixture.subs.updateErr = errStorage

	expired, err := fixture.service.RunExpireSweepBatch(context.Background())
	if err != errStorage {
		t.Fatalf("expected storage error surfaced, got %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected no successful transitions, got %d", expired)
	}
	if fixture.subs.updateCalls != 2 {
		t.Fatalf("sweep must attempt every row, got %d updates", fixture.subs.updateCalls)
	}
}

func TestRunExpireSweepBatchEmpty(t *testing.T) {
	fixture := newServiceFixture()

	expired, err := fixture.service.RunExpireSweepBatch(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected zero expired, got %d", expired)
	}
}
