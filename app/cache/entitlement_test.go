package cache

import (
	"context"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
)

func TestMemoryStoreTTLExpiry(t *testing.T) {
	current := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return current })
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, err := store.Get(ctx, "k")
	if err != nil || value != "v" {
		t.Fatalf("expected fresh value, got %q / %v", value, err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "k"); err != ErrCacheMiss {
		t.Fatalf("expected cache miss after TTL, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_ = store.Set(ctx, "a", "1", 0)
	_ = store.Set(ctx, "b", "2", 0)

	if err := store.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "a"); err != ErrCacheMiss {
		t.Fatalf("expected miss for deleted key, got %v", err)
	}
}

func TestEntitlementCacheSnapshotRoundTrip(t *testing.T) {
	store := NewMemoryStore(nil)
	c := NewEntitlementCache(store, time.Minute, time.Minute)
	ctx := context.Background()

	if _, ok := c.GetSnapshot(ctx, 42); ok {
		t.Fatal("expected miss on empty cache")
	}

	expiresAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	c.SetSnapshot(ctx, 42, &entity.EntitlementSnapshot{
		IsProUser:          true,
		ProSource:          entity.PlanPro,
		SubscriptionStatus: entity.SubscriptionStatusActive,
		ExpiresAt:          &expiresAt,
	})

	snapshot, ok := c.GetSnapshot(ctx, 42)
	if !ok {
		t.Fatal("expected cached snapshot")
	}
	if !snapshot.IsProUser || snapshot.ProSource != entity.PlanPro {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.ExpiresAt == nil || !snapshot.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("unexpected expires at: %v", snapshot.ExpiresAt)
	}
}

func TestEntitlementCacheProStatus(t *testing.T) {
	store := NewMemoryStore(nil)
	c := NewEntitlementCache(store, time.Minute, time.Minute)
	ctx := context.Background()

	if _, ok := c.GetProStatus(ctx, 42); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.SetProStatus(ctx, 42, true)
	isPro, ok := c.GetProStatus(ctx, 42)
	if !ok || !isPro {
		t.Fatalf("expected cached pro status, got %v / %v", isPro, ok)
	}

	c.SetProStatus(ctx, 42, false)
	isPro, ok = c.GetProStatus(ctx, 42)
	if !ok || isPro {
		t.Fatalf("expected cached non-pro status, got %v / %v", isPro, ok)
	}
}

func TestEntitlementCacheInvalidateDropsBothKeys(t *testing.T) {
	store := NewMemoryStore(nil)
	c := NewEntitlementCache(store, time.Minute, time.Minute)
	ctx := context.Background()

	c.SetSnapshot(ctx, 42, &entity.EntitlementSnapshot{IsProUser: true, SubscriptionStatus: entity.SubscriptionStatusActive})
	c.SetProStatus(ctx, 42, true)

	if err := c.Invalidate(ctx, 42); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	if _, ok := c.GetSnapshot(ctx, 42); ok {
		t.Fatal("snapshot must be dropped after invalidation")
	}
	if _, ok := c.GetProStatus(ctx, 42); ok {
		t.Fatal("pro status must be dropped after invalidation")
	}
}

func TestEntitlementCacheCorruptEntryDropped(t *testing.T) {
	store := NewMemoryStore(nil)
	c := NewEntitlementCache(store, time.Minute, time.Minute)
	ctx := context.Background()

	_ = store.Set(ctx, snapshotKey(42), "{not json", time.Minute)

	if _, ok := c.GetSnapshot(ctx, 42); ok {
		t.Fatal("corrupt entry must read as a miss")
	}
	if _, err := store.Get(ctx, snapshotKey(42)); err != ErrCacheMiss {
		t.Fatalf("corrupt entry must be deleted, got %v", err)
	}
}
