package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/hackathon-admission/internal/model"
	"github.com/iliyamo/hackathon-admission/internal/utils"
)

// UserRepo provides data access to the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = "id,email,name,password_hash,rsvp_verified,token_version,created_at,updated_at"

// Create inserts a user and returns its ID. Emails are normalized to
// lowercase; duplicates map to ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, email, name, password string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, name, password_hash) VALUES (?,?,?)",
		email, name, hash)
	if err != nil {
		// MySQL error 1062: duplicate entry for the unique email index.
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
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.RSVPVerified, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.RSVPVerified, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// TokenVersion returns the current token version for a user. Access tokens
// minted before the last bump carry a stale version and are rejected by
// the token-version middleware.
func (r *UserRepo) TokenVersion(ctx context.Context, id uint64) (uint32, error) {
	var v uint32
	err := r.DB.QueryRowContext(ctx,
		"SELECT token_version FROM users WHERE id=? LIMIT 1", id).Scan(&v)
	return v, err
}

// BumpTokenVersion invalidates every outstanding access token for the user
// by incrementing users.token_version. Returns the new version.
func (r *UserRepo) BumpTokenVersion(ctx context.Context, id uint64) (uint32, error) {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE users SET token_version = token_version + 1 WHERE id=?", id); err != nil {
		return 0, err
	}
	return r.TokenVersion(ctx, id)
}
