package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
	"github.com/vibast-solutions/ms-go-subscriptions/app/factory"
	"github.com/vibast-solutions/ms-go-subscriptions/app/provider"
	"github.com/vibast-solutions/ms-go-subscriptions/config"
)

const defaultBatchSize = int32(100)

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	FindByProviderInvoiceID(ctx context.Context, provider, externalInvoiceID string) (*entity.Payment, error)
	ListByUser(ctx context.Context, userID uint64, limit, offset int32) ([]*entity.Payment, error)
}

type subscriptionRepository interface {
	Create(ctx context.Context, sub *entity.Subscription) error
	Update(ctx context.Context, sub *entity.Subscription) error
	FindActiveByUserAndPlan(ctx context.Context, userID uint64, planType string) (*entity.Subscription, error)
	FindMostRecentByUserAndPlan(ctx context.Context, userID uint64, planType string) (*entity.Subscription, error)
	ListByUser(ctx context.Context, userID uint64) ([]*entity.Subscription, error)
	ListDueForExpiry(ctx context.Context, now time.Time, limit int32) ([]*entity.Subscription, error)
}

// userDirectory is the narrow view of the account subsystem: existence by id
// and id lookup by email, nothing more.
type userDirectory interface {
	Exists(ctx context.Context, userID uint64) (bool, error)
	FindIDByEmail(ctx context.Context, email string) (uint64, error)
}

type entitlementCache interface {
	GetSnapshot(ctx context.Context, userID uint64) (*entity.EntitlementSnapshot, bool)
	SetSnapshot(ctx context.Context, userID uint64, snapshot *entity.EntitlementSnapshot)
	GetProStatus(ctx context.Context, userID uint64) (bool, bool)
	SetProStatus(ctx context.Context, userID uint64, isPro bool)
	Invalidate(ctx context.Context, userID uint64) error
}

type SubscriptionService struct {
	payments    paymentRepository
	subs        subscriptionRepository
	users       userDirectory
	providerReg *provider.Registry
	cache       entitlementCache
	policy      config.SubscriptionsConfig
	locks       *keyedLocks
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewSubscriptionService(
	payments paymentRepository,
	subs subscriptionRepository,
	users userDirectory,
	providerReg *provider.Registry,
	cache entitlementCache,
	policy config.SubscriptionsConfig,
) *SubscriptionService {
	if policy.MaxFailedPayments <= 0 {
		policy.MaxFailedPayments = 3
	}
	if policy.GracePeriodDays < 0 {
		policy.GracePeriodDays = 0
	}

	return &SubscriptionService{
		payments:    payments,
		subs:        subs,
		users:       users,
		providerReg: providerReg,
		cache:       cache,
		policy:      policy,
		locks:       newKeyedLocks(),
		logger:      factory.NewModuleLogger("subscriptions-service"),
		now:         time.Now,
	}
}

func (s *SubscriptionService) batchSize() int32 {
	if s.policy.JobBatchSize > 0 {
		return s.policy.JobBatchSize
	}
	return defaultBatchSize
}

func (s *SubscriptionService) invalidateUserCache(ctx context.Context, userID uint64) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Cache invalidation failed")
	}
}

// InvalidateUserCache is exposed for external triggers such as administrative
// corrections.
func (s *SubscriptionService) InvalidateUserCache(ctx context.Context, userID uint64) error {
	return s.cache.Invalidate(ctx, userID)
}
