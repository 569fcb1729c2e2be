package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
	"github.com/vibast-solutions/ms-go-subscriptions/app/factory"
)

// EntitlementCache holds two independent per-user entries: the full
// entitlement snapshot and a lightweight pro-status boolean. Both are pure
// optimizations; every cache failure degrades to a recompute, never to a
// wrong answer.
type EntitlementCache struct {
	store       Store
	snapshotTTL time.Duration
	proTTL      time.Duration
	logger      logrus.FieldLogger
}

func NewEntitlementCache(store Store, snapshotTTL, proTTL time.Duration) *EntitlementCache {
	if snapshotTTL <= 0 {
		snapshotTTL = 5 * time.Minute
	}
	if proTTL <= 0 {
		proTTL = 2 * time.Minute
	}
	return &EntitlementCache{
		store:       store,
		snapshotTTL: snapshotTTL,
		proTTL:      proTTL,
		logger:      factory.NewModuleLogger("entitlement-cache"),
	}
}

func snapshotKey(userID uint64) string {
	return fmt.Sprintf("subscriptions:user:%d:entitlement", userID)
}

func proStatusKey(userID uint64) string {
	return fmt.Sprintf("subscriptions:user:%d:pro", userID)
}

func (c *EntitlementCache) GetSnapshot(ctx context.Context, userID uint64) (*entity.EntitlementSnapshot, bool) {
	raw, err := c.store.Get(ctx, snapshotKey(userID))
	if err != nil {
		if err != ErrCacheMiss {
			c.logger.WithError(err).Warn("Entitlement snapshot read failed")
		}
		return nil, false
	}

	snapshot := &entity.EntitlementSnapshot{}
	if err := json.Unmarshal([]byte(raw), snapshot); err != nil {
		c.logger.WithError(err).Warn("Entitlement snapshot is not decodable, dropping entry")
		_ = c.store.Delete(ctx, snapshotKey(userID))
		return nil, false
	}
	return snapshot, true
}

func (c *EntitlementCache) SetSnapshot(ctx context.Context, userID uint64, snapshot *entity.EntitlementSnapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.WithError(err).Warn("Entitlement snapshot encode failed")
		return
	}
	if err := c.store.Set(ctx, snapshotKey(userID), string(raw), c.snapshotTTL); err != nil {
		c.logger.WithError(err).Warn("Entitlement snapshot write failed")
	}
}

func (c *EntitlementCache) GetProStatus(ctx context.Context, userID uint64) (bool, bool) {
	raw, err := c.store.Get(ctx, proStatusKey(userID))
	if err != nil {
		if err != ErrCacheMiss {
			c.logger.WithError(err).Warn("Pro status read failed")
		}
		return false, false
	}
	return raw == "1", true
}

func (c *EntitlementCache) SetProStatus(ctx context.Context, userID uint64, isPro bool) {
	value := "0"
	if isPro {
		value = "1"
	}
	if err := c.store.Set(ctx, proStatusKey(userID), value, c.proTTL); err != nil {
		c.logger.WithError(err).Warn("Pro status write failed")
	}
}

// Invalidate drops both entries for the user. Write paths call this before
// reporting success so the next read recomputes from the durable state.
func (c *EntitlementCache) Invalidate(ctx context.Context, userID uint64) error {
	return c.store.Delete(ctx, snapshotKey(userID), proStatusKey(userID))
}
