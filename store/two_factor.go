package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/campusAuth/model"
)

// TwoFactor persists TOTP state with backup codes as one row per code.
type TwoFactor struct {
	db *DB
}

func NewTwoFactor(db *DB) *TwoFactor {
	return &TwoFactor{db: db}
}

func (r *TwoFactor) FindByUserID(ctx context.Context, userID string) (*model.TwoFactorRecord, error) {
	var (
		rec               model.TwoFactorRecord
		enrolled, enabled int64
		updated           int64
	)
	err := r.db.queryRow(ctx, r.db.sql,
		"SELECT user_id, secret, enrolled, enabled, updated_at FROM two_factor WHERE user_id = ?", userID,
	).Scan(&rec.UserID, &rec.Secret, &enrolled, &enabled, &updated)
	if isNoRows(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding two-factor record: %w", err)
	}
	rec.Enrolled = enrolled != 0
	rec.Enabled = enabled != 0
	rec.UpdatedAt = fromMillis(updated)

	codes, err := r.db.queryStrings(ctx,
		"SELECT code FROM two_factor_backup_codes WHERE user_id = ? ORDER BY code", userID)
	if err != nil {
		return nil, fmt.Errorf("loading backup codes: %w", err)
	}
	rec.BackupCodes = codes
	return &rec, nil
}

// Save replaces the record and its backup codes in one transaction.
func (r *TwoFactor) Save(ctx context.Context, rec *model.TwoFactorRecord) error {
	if rec == nil || rec.UserID == "" {
		return errors.New("two-factor record requires user id")
	}
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.db.exec(ctx, tx, `
			INSERT INTO two_factor (user_id, secret, enrolled, enabled, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				secret     = excluded.secret,
				enrolled   = excluded.enrolled,
				enabled    = excluded.enabled,
				updated_at = excluded.updated_at`,
			rec.UserID, rec.Secret, boolInt(rec.Enrolled), boolInt(rec.Enabled), millis(rec.UpdatedAt),
		); err != nil {
			return fmt.Errorf("saving two-factor record: %w", err)
		}
		if _, err := r.db.exec(ctx, tx,
			"DELETE FROM two_factor_backup_codes WHERE user_id = ?", rec.UserID,
		); err != nil {
			return fmt.Errorf("clearing backup codes: %w", err)
		}
		for _, code := range rec.BackupCodes {
			if _, err := r.db.exec(ctx, tx,
				"INSERT INTO two_factor_backup_codes (user_id, code) VALUES (?, ?)", rec.UserID, code,
			); err != nil {
				return fmt.Errorf("inserting backup code: %w", err)
			}
		}
		return nil
	})
}

// SetFlags updates the flag columns only.
func (r *TwoFactor) SetFlags(ctx context.Context, userID string, enrolled, enabled bool, at time.Time) error {
	res, err := r.db.exec(ctx, r.db.sql,
		"UPDATE two_factor SET enrolled = ?, enabled = ?, updated_at = ? WHERE user_id = ?",
		boolInt(enrolled), boolInt(enabled), millis(at), userID)
	if err != nil {
		return fmt.Errorf("updating two-factor flags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating two-factor flags: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ReplaceBackupCodes swaps the code rows and bumps updated_at in one
// transaction.
func (r *TwoFactor) ReplaceBackupCodes(ctx context.Context, userID string, codes []string, at time.Time) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := r.db.exec(ctx, tx,
			"UPDATE two_factor SET updated_at = ? WHERE user_id = ?", millis(at), userID)
		if err != nil {
			return fmt.Errorf("updating two-factor record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating two-factor record: %w", err)
		}
		if n == 0 {
			return model.ErrNotFound
		}
		if _, err := r.db.exec(ctx, tx,
			"DELETE FROM two_factor_backup_codes WHERE user_id = ?", userID,
		); err != nil {
			return fmt.Errorf("clearing backup codes: %w", err)
		}
		for _, code := range codes {
			if _, err := r.db.exec(ctx, tx,
				"INSERT INTO two_factor_backup_codes (user_id, code) VALUES (?, ?)", userID, code,
			); err != nil {
				return fmt.Errorf("inserting backup code: %w", err)
			}
		}
		return nil
	})
}

// ConsumeBackupCode deletes the code row. Only the caller whose DELETE
// removed it gets true.
func (r *TwoFactor) ConsumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	res, err := r.db.exec(ctx, r.db.sql,
		"DELETE FROM two_factor_backup_codes WHERE user_id = ? AND code = ?", userID, code)
	if err != nil {
		return false, fmt.Errorf("consuming backup code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consuming backup code: %w", err)
	}
	return n == 1, nil
}
