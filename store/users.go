package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/campusAuth/model"
)

// Users is the SQL-backed credential store.
type Users struct {
	db *DB
}

func NewUsers(db *DB) *Users {
	return &Users{db: db}
}

const userColumns = `id, username, email, password_hash, role, email_verified,
	failed_login_attempts, locked_until, last_failed_login_at, created_at, updated_at`

func (r *Users) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (r *Users) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

// FindByEmail never matches the empty string. Users without an email are
// stored with a NULL column.
func (r *Users) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, model.ErrNotFound
	}
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

// Save inserts the user or overwrites every mutable column of an existing row.
func (r *Users) Save(ctx context.Context, u *model.User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id required")
	}
	_, err := r.db.exec(ctx, r.db.sql, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username              = excluded.username,
			email                 = excluded.email,
			password_hash         = excluded.password_hash,
			role                  = excluded.role,
			email_verified        = excluded.email_verified,
			failed_login_attempts = excluded.failed_login_attempts,
			locked_until          = excluded.locked_until,
			last_failed_login_at  = excluded.last_failed_login_at,
			updated_at            = excluded.updated_at`,
		u.ID, u.Username, nullString(u.Email), u.PasswordHash, string(u.Role), boolInt(u.EmailVerified),
		u.FailedLoginAttempts, nullMillis(u.LockedUntil), nullMillis(u.LastFailedLoginAt),
		millis(u.CreatedAt), millis(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving user %s: %w", u.ID, err)
	}
	return nil
}

func (r *Users) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	var (
		u                   model.User
		role                string
		email               sql.NullString
		verified            int64
		lockedUntil, lastAt sql.NullInt64
		createdAt, updated  int64
	)
	err := r.db.queryRow(ctx, r.db.sql, query, arg).Scan(
		&u.ID, &u.Username, &email, &u.PasswordHash, &role, &verified,
		&u.FailedLoginAttempts, &lockedUntil, &lastAt, &createdAt, &updated,
	)
	if isNoRows(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}

	u.Email = email.String
	u.Role = model.Role(role)
	u.EmailVerified = verified != 0
	u.LockedUntil = timePtr(lockedUntil)
	u.LastFailedLoginAt = timePtr(lastAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}
