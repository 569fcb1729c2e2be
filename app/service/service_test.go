package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
	"github.com/vibast-solutions/ms-go-subscriptions/app/provider"
	"github.com/vibast-solutions/ms-go-subscriptions/app/repository"
	"github.com/vibast-solutions/ms-go-subscriptions/config"
)

type fakePaymentRepo struct {
	payments    map[string]*entity.Payment
	nextID      uint64
	createErr   error
	updateErr   error
	findErr     error
	createCalls int
	updateCalls int
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: map[string]*entity.Payment{}}
}

func paymentKey(providerName, invoiceID string) string {
	return providerName + "|" + invoiceID
}

func (r *fakePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	key := paymentKey(payment.Provider, payment.ExternalInvoiceID)
	if _, ok := r.payments[key]; ok {
		return repository.ErrPaymentAlreadyExists
	}
	r.nextID++
	payment.ID = r.nextID
	copied := *payment
	r.payments[key] = &copied
	return nil
}

func (r *fakePaymentRepo) Update(_ context.Context, payment *entity.Payment) error {
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	key := paymentKey(payment.Provider, payment.ExternalInvoiceID)
	if _, ok := r.payments[key]; !ok {
		return repository.ErrPaymentNotFound
	}
	copied := *payment
	r.payments[key] = &copied
	return nil
}

func (r *fakePaymentRepo) FindByProviderInvoiceID(_ context.Context, providerName, externalInvoiceID string) (*entity.Payment, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	payment, ok := r.payments[paymentKey(providerName, externalInvoiceID)]
	if !ok {
		return nil, nil
	}
	copied := *payment
	return &copied, nil
}

func (r *fakePaymentRepo) ListByUser(_ context.Context, userID uint64, limit, offset int32) ([]*entity.Payment, error) {
	var result []*entity.Payment
	for _, payment := range r.payments {
		if payment.UserID == userID {
			copied := *payment
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if int(offset) >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if int(limit) < len(result) {
		result = result[:limit]
	}
	return result, nil
}

type fakeSubscriptionRepo struct {
	subs        map[string]*entity.Subscription
	createErr   error
	updateErr   error
	listErr     error
	createCalls int
	updateCalls int
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: map[string]*entity.Subscription{}}
}

func (r *fakeSubscriptionRepo) add(sub *entity.Subscription) {
	copied := *sub
	r.subs[sub.ID] = &copied
}

func (r *fakeSubscriptionRepo) get(id string) *entity.Subscription {
	sub, ok := r.subs[id]
	if !ok {
		return nil
	}
	copied := *sub
	return &copied
}

func (r *fakeSubscriptionRepo) Create(_ context.Context, sub *entity.Subscription) error {
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.subs[sub.ID]; ok {
		return repository.ErrSubscriptionAlreadyExists
	}
	r.add(sub)
	return nil
}

func (r *fakeSubscriptionRepo) Update(_ context.Context, sub *entity.Subscription) error {
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.subs[sub.ID]; !ok {
		return repository.ErrSubscriptionNotFound
	}
	r.add(sub)
	return nil
}

func (r *fakeSubscriptionRepo) FindActiveByUserAndPlan(_ context.Context, userID uint64, planType string) (*entity.Subscription, error) {
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.PlanType == planType && sub.Status == entity.SubscriptionStatusActive {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSubscriptionRepo) FindMostRecentByUserAndPlan(_ context.Context, userID uint64, planType string) (*entity.Subscription, error) {
	var recent *entity.Subscription
	for _, sub := range r.subs {
		if sub.UserID != userID || sub.PlanType != planType {
			continue
		}
		if recent == nil || sub.CreatedAt.After(recent.CreatedAt) {
			recent = sub
		}
	}
	if recent == nil {
		return nil, nil
	}
	copied := *recent
	return &copied, nil
}

func (r *fakeSubscriptionRepo) ListByUser(_ context.Context, userID uint64) ([]*entity.Subscription, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []*entity.Subscription
	for _, sub := range r.subs {
		if sub.UserID == userID {
			copied := *sub
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *fakeSubscriptionRepo) ListDueForExpiry(_ context.Context, now time.Time, limit int32) ([]*entity.Subscription, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []*entity.Subscription
	for _, sub := range r.subs {
		if sub.Status == entity.SubscriptionStatusActive && !sub.CurrentPeriodEnd.After(now) {
			copied := *sub
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if int(limit) < len(result) {
		result = result[:limit]
	}
	return result, nil
}

type fakeUserDirectory struct {
	ids    map[uint64]bool
	emails map[string]uint64
	err    error
}

func newFakeUserDirectory() *fakeUserDirectory {
	return &fakeUserDirectory{ids: map[uint64]bool{}, emails: map[string]uint64{}}
}

func (d *fakeUserDirectory) Exists(_ context.Context, userID uint64) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.ids[userID], nil
}

func (d *fakeUserDirectory) FindIDByEmail(_ context.Context, email string) (uint64, error) {
	if d.err != nil {
		return 0, d.err
	}
	return d.emails[email], nil
}

type fakeEntitlementCache struct {
	snapshots     map[uint64]*entity.EntitlementSnapshot
	proStatus     map[uint64]bool
	invalidations []uint64
	invalidateErr error
}

func newFakeEntitlementCache() *fakeEntitlementCache {
	return &fakeEntitlementCache{
		snapshots: map[uint64]*entity.EntitlementSnapshot{},
		proStatus: map[uint64]bool{},
	}
}

func (c *fakeEntitlementCache) GetSnapshot(_ context.Context, userID uint64) (*entity.EntitlementSnapshot, bool) {
	snapshot, ok := c.snapshots[userID]
	return snapshot, ok
}

func (c *fakeEntitlementCache) SetSnapshot(_ context.Context, userID uint64, snapshot *entity.EntitlementSnapshot) {
	c.snapshots[userID] = snapshot
}

func (c *fakeEntitlementCache) GetProStatus(_ context.Context, userID uint64) (bool, bool) {
	isPro, ok := c.proStatus[userID]
	return isPro, ok
}

func (c *fakeEntitlementCache) SetProStatus(_ context.Context, userID uint64, isPro bool) {
	c.proStatus[userID] = isPro
}

func (c *fakeEntitlementCache) Invalidate(_ context.Context, userID uint64) error {
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.invalidations = append(c.invalidations, userID)
	delete(c.snapshots, userID)
	delete(c.proStatus, userID)
	return nil
}

// stubProvider hands back a canned event so pipeline tests do not depend on
// real signature material.
type stubProvider struct {
	name  string
	event *provider.Event
	err   error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) VerifyAndParse(payload []byte, _ string) (*provider.Event, error) {
	if p.err != nil {
		return nil, p.err
	}
	event := *p.event
	if event.RawPayload == "" {
		event.RawPayload = string(payload)
	}
	return &event, nil
}

type serviceFixture struct {
	service  *SubscriptionService
	payments *fakePaymentRepo
	subs     *fakeSubscriptionRepo
	users    *fakeUserDirectory
	cache    *fakeEntitlementCache
	now      time.Time
}

func newServiceFixture(providers ...provider.Provider) *serviceFixture {
	payments := newFakePaymentRepo()
	subs := newFakeSubscriptionRepo()
	users := newFakeUserDirectory()
	cache := newFakeEntitlementCache()

	registry := provider.NewRegistry(providers...)

	svc := NewSubscriptionService(payments, subs, users, registry, cache, config.SubscriptionsConfig{
		MaxFailedPayments: 3,
		GracePeriodDays:   3,
	})
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	svc.logger = quiet

	return &serviceFixture{service: svc, payments: payments, subs: subs, users: users, cache: cache, now: now}
}

var errStorage = errors.New("storage unavailable")
