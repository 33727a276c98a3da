package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ceylon-smart-citizen/auth-service/internal/database"
	"github.com/ceylon-smart-citizen/auth-service/internal/model"
)

// UserRepo implements UserStore on PostgreSQL.
type UserRepo struct{ db *database.DB }

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *database.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, password_hash, first_name, last_name, nic_number, phone, role, is_active, token_invalid_before, created_at, updated_at`

// Create inserts a user and returns the generated id. Email is normalized
// to lower case before insert; unique violations are mapped to the
// ErrEmailExists / ErrNICExists sentinels.
func (r *UserRepo) Create(ctx context.Context, u *model.User, passwordHash string) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	const q = `
INSERT INTO users (email, password_hash, first_name, last_name, nic_number, phone, role)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	var id uint64
	err := r.db.Pool.QueryRow(ctx, q,
		email, passwordHash, u.FirstName, u.LastName, u.NICNumber, u.Phone, u.Role,
	).Scan(&id)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "users_email_key"):
			return 0, ErrEmailExists
		case database.IsUniqueViolation(err, "users_nic_number_key"):
			return 0, ErrNICExists
		}
		return 0, err
	}
	return id, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the account's active flag. Deactivated accounts keep
// their row; nothing in the token lifecycle hard-deletes users.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET is_active=$2, updated_at=now() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.NICNumber,
		&u.Phone, &u.Role, &u.IsActive, &u.TokenInvalidBefore, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}
