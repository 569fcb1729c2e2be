package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

const paymentColumns = `
	id, provider, external_invoice_id, user_id, subscription_id,
	amount_cents, currency, description,
	status, payment_type, payment_method,
	raw_payload, error_code, error_message, metadata_json,
	created_at, updated_at, paid_at
`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			provider, external_invoice_id, user_id, subscription_id,
			amount_cents, currency, description,
			status, payment_type, payment_method,
			raw_payload, error_code, error_message, metadata_json,
			created_at, updated_at, paid_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.Provider,
		payment.ExternalInvoiceID,
		payment.UserID,
		nullableStringValue(payment.SubscriptionID),
		payment.AmountCents,
		payment.Currency,
		payment.Description,
		payment.Status,
		payment.PaymentType,
		payment.PaymentMethod,
		payment.RawPayload,
		nullableStringValue(payment.ErrorCode),
		nullableStringValue(payment.ErrorMessage),
		metadataJSON,
		payment.CreatedAt,
		payment.UpdatedAt,
		nullableTimeValue(payment.PaidAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// Update touches the mutable fields only. The (provider, external_invoice_id)
// identity and the original amount are left alone on purpose.
func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE payments SET
			subscription_id = ?,
			status = ?,
			error_code = ?,
			error_message = ?,
			metadata_json = ?,
			updated_at = ?,
			paid_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(payment.SubscriptionID),
		payment.Status,
		nullableStringValue(payment.ErrorCode),
		nullableStringValue(payment.ErrorMessage),
		metadataJSON,
		payment.UpdatedAt,
		nullableTimeValue(payment.PaidAt),
		payment.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}

	return nil
}

func (r *PaymentRepository) FindByProviderInvoiceID(ctx context.Context, provider, externalInvoiceID string) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE provider = ? AND external_invoice_id = ?
		LIMIT 1
	`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, provider, externalInvoiceID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID uint64, limit, offset int32) ([]*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var subscriptionID sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var metadataJSON string
	var paidAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.Provider,
		&payment.ExternalInvoiceID,
		&payment.UserID,
		&subscriptionID,
		&payment.AmountCents,
		&payment.Currency,
		&payment.Description,
		&payment.Status,
		&payment.PaymentType,
		&payment.PaymentMethod,
		&payment.RawPayload,
		&errorCode,
		&errorMessage,
		&metadataJSON,
		&payment.CreatedAt,
		&payment.UpdatedAt,
		&paidAt,
	)
	if err != nil {
		return err
	}

	payment.SubscriptionID = stringPtrFromNull(subscriptionID)
	payment.ErrorCode = stringPtrFromNull(errorCode)
	payment.ErrorMessage = stringPtrFromNull(errorMessage)
	payment.PaidAt = timePtrFromNull(paidAt)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	payment.Metadata = metadata

	return nil
}
