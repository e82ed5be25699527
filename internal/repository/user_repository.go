package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/inkstream/inkstream-server/internal/model"
	"github.com/inkstream/inkstream-server/internal/utils"
)

// userColumns is the column list shared by every users SELECT so scans
// stay in one shape.
const userColumns = `id, email, password_hash, role, is_active,
       free_trial_used, free_trial_started_at, free_trial_ended_at,
       subscription_tier, subscription_status, created_at, updated_at`

// UserRepo provides data access to the users table, including the
// entitlement fields consumed by the loan manager and mutated by the
// trial guard.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// Create inserts a user and returns its ID.  New accounts start on the
// free tier with an inactive subscription; entitlement is granted later
// by the trial guard or the billing webhook.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, subscription_tier, subscription_status) VALUES (?,?,?,?,?)",
		email, hash, role, model.TierFree, model.SubscriptionInactive)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
}

// LockForUpdateTx reads a user row inside the given transaction while
// taking a row lock on it.  Every cap-enforcing check-then-write sequence
// (borrow, device registration) serializes on this lock so two concurrent
// requests cannot both observe one free slot.  Returns sql.ErrNoRows when
// the user does not exist.
func (r *UserRepo) LockForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	return r.scanOne(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? FOR UPDATE", id))
}

// ActivateTrialTx flips the entitlement fields for a trial start within
// the provided transaction.  The caller must also insert the matching
// free_trial_records row in the same transaction; a record without the
// entitlement update (or vice versa) is an inconsistent state.
func (r *UserRepo) ActivateTrialTx(ctx context.Context, tx *sql.Tx, id uint64, startedAt, endedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users
		 SET free_trial_used = 1, free_trial_started_at = ?, free_trial_ended_at = ?,
		     subscription_tier = ?, subscription_status = ?
		 WHERE id = ?`,
		startedAt.UTC(), endedAt.UTC(), model.TierFree, model.SubscriptionActive, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// scanOne scans a single user row including nullable trial timestamps.
func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var u model.User
	var startedAt, endedAt sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.FreeTrialUsed, &startedAt, &endedAt,
		&u.SubscriptionTier, &u.SubscriptionStatus, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		u.FreeTrialStartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		u.FreeTrialEndedAt = &t
	}
	return u, nil
}
