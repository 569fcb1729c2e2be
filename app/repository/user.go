package repository

import (
	"context"
	"database/sql"
)

// UserRepository is the narrow read-only view of the account subsystem this
// service is allowed to consult for user linkage.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Exists(ctx context.Context, userID uint64) (bool, error) {
	var id uint64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ? LIMIT 1`, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// FindIDByEmail returns (0, nil) when no user carries the email.
func (r *UserRepository) FindIDByEmail(ctx context.Context, email string) (uint64, error) {
	var id uint64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ? LIMIT 1`, email).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return id, nil
}
