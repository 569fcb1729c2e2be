package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
)

var (
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
)

const subscriptionColumns = `
	id, user_id, provider, plan_type,
	amount_cents, currency, billing_interval, status,
	started_at, current_period_start, current_period_end,
	cancel_at_period_end, canceled_at, cancel_reason,
	last_payment_id, next_payment_date, failed_payments_count,
	metadata_json, created_at, updated_at
`

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *entity.Subscription) error {
	metadataJSON, err := serializeMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO subscriptions (
			id, user_id, provider, plan_type,
			amount_cents, currency, billing_interval, status,
			started_at, current_period_start, current_period_end,
			cancel_at_period_end, canceled_at, cancel_reason,
			last_payment_id, next_payment_date, failed_payments_count,
			metadata_json, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.Provider,
		sub.PlanType,
		sub.AmountCents,
		sub.Currency,
		sub.Interval,
		sub.Status,
		sub.StartedAt,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		nullableTimeValue(sub.CanceledAt),
		nullableStringValue(sub.CancelReason),
		nullableUint64Value(sub.LastPaymentID),
		nullableTimeValue(sub.NextPaymentDate),
		sub.FailedPaymentsCount,
		metadataJSON,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrSubscriptionAlreadyExists
		}
		return err
	}

	return nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *entity.Subscription) error {
	metadataJSON, err := serializeMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE subscriptions SET
			amount_cents = ?,
			currency = ?,
			billing_interval = ?,
			status = ?,
			current_period_start = ?,
			current_period_end = ?,
			cancel_at_period_end = ?,
			canceled_at = ?,
			cancel_reason = ?,
			last_payment_id = ?,
			next_payment_date = ?,
			failed_payments_count = ?,
			metadata_json = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		sub.AmountCents,
		sub.Currency,
		sub.Interval,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		nullableTimeValue(sub.CanceledAt),
		nullableStringValue(sub.CancelReason),
		nullableUint64Value(sub.LastPaymentID),
		nullableTimeValue(sub.NextPaymentDate),
		sub.FailedPaymentsCount,
		metadataJSON,
		sub.UpdatedAt,
		sub.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func (r *SubscriptionRepository) FindActiveByUserAndPlan(ctx context.Context, userID uint64, planType string) (*entity.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = ? AND plan_type = ? AND status = ?
		LIMIT 1
	`

	sub := &entity.Subscription{}
	err := scanSubscription(r.db.QueryRowContext(ctx, query, userID, planType, entity.SubscriptionStatusActive), sub)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return sub, nil
}

// FindMostRecentByUserAndPlan returns the newest subscription row for the pair
// regardless of status, or nil when the user never had one.
func (r *SubscriptionRepository) FindMostRecentByUserAndPlan(ctx context.Context, userID uint64, planType string) (*entity.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = ? AND plan_type = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	sub := &entity.Subscription{}
	err := scanSubscription(r.db.QueryRowContext(ctx, query, userID, planType), sub)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return sub, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID uint64) ([]*entity.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*entity.Subscription, 0)
	for rows.Next() {
		item := &entity.Subscription{}
		if err := scanSubscription(rows, item); err != nil {
			return nil, err
		}
		subs = append(subs, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subs, nil
}

// ListDueForExpiry returns active subscriptions whose current period has ended,
// oldest first, for the expire sweep job.
func (r *SubscriptionRepository) ListDueForExpiry(ctx context.Context, now time.Time, limit int32) ([]*entity.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = ? AND current_period_end <= ?
		ORDER BY current_period_end ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.SubscriptionStatusActive, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*entity.Subscription, 0)
	for rows.Next() {
		item := &entity.Subscription{}
		if err := scanSubscription(rows, item); err != nil {
			return nil, err
		}
		subs = append(subs, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subs, nil
}

func scanSubscription(scan rowScanner, sub *entity.Subscription) error {
	var canceledAt sql.NullTime
	var cancelReason sql.NullString
	var lastPaymentID sql.NullInt64
	var nextPaymentDate sql.NullTime
	var metadataJSON string

	err := scan.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Provider,
		&sub.PlanType,
		&sub.AmountCents,
		&sub.Currency,
		&sub.Interval,
		&sub.Status,
		&sub.StartedAt,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&canceledAt,
		&cancelReason,
		&lastPaymentID,
		&nextPaymentDate,
		&sub.FailedPaymentsCount,
		&metadataJSON,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return err
	}

	sub.CanceledAt = timePtrFromNull(canceledAt)
	sub.CancelReason = stringPtrFromNull(cancelReason)
	sub.LastPaymentID = uint64PtrFromNull(lastPaymentID)
	sub.NextPaymentDate = timePtrFromNull(nextPaymentDate)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	sub.Metadata = metadata

	return nil
}
