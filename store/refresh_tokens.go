package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/campusAuth/model"
)

// RefreshTokens persists refresh-token rows. Revocation is a conditional
// UPDATE so concurrent rotations of one token have a single winner.
type RefreshTokens struct {
	db *DB
}

func NewRefreshTokens(db *DB) *RefreshTokens {
	return &RefreshTokens{db: db}
}

const refreshColumns = `id, user_id, token_hash, expires_at, created_at, created_by_ip,
	revoked_at, revoked_reason, revoked_by_ip, replaced_by_token_id`

func (r *RefreshTokens) FindByID(ctx context.Context, id string) (*model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		hash      string
		exp, ca   int64
		revokedAt sql.NullInt64
	)
	err := r.db.queryRow(ctx, r.db.sql,
		"SELECT "+refreshColumns+" FROM refresh_tokens WHERE id = ?", id,
	).Scan(&t.ID, &t.UserID, &hash, &exp, &ca, &t.CreatedByIP,
		&revokedAt, &t.RevokedReason, &t.RevokedByIP, &t.ReplacedByTokenID)
	if isNoRows(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}

	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != len(t.TokenHash) {
		return nil, fmt.Errorf("refresh token %s has corrupt hash", id)
	}
	copy(t.TokenHash[:], raw)
	t.ExpiresAt = fromMillis(exp)
	t.CreatedAt = fromMillis(ca)
	t.RevokedAt = timePtr(revokedAt)
	return &t, nil
}

// Save upserts the row. Once revoked_at is set it is never cleared or moved,
// and neither are the reason and ip recorded with it.
func (r *RefreshTokens) Save(ctx context.Context, t *model.RefreshToken) error {
	if t == nil || t.ID == "" || t.UserID == "" {
		return errors.New("refresh token id and user id required")
	}
	_, err := r.db.exec(ctx, r.db.sql, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			replaced_by_token_id = excluded.replaced_by_token_id,
			revoked_reason = CASE WHEN refresh_tokens.revoked_at IS NULL
				THEN excluded.revoked_reason ELSE refresh_tokens.revoked_reason END,
			revoked_by_ip = CASE WHEN refresh_tokens.revoked_at IS NULL
				THEN excluded.revoked_by_ip ELSE refresh_tokens.revoked_by_ip END,
			revoked_at = COALESCE(refresh_tokens.revoked_at, excluded.revoked_at)`,
		t.ID, t.UserID, hex.EncodeToString(t.TokenHash[:]), millis(t.ExpiresAt), millis(t.CreatedAt),
		t.CreatedByIP, nullMillis(t.RevokedAt), t.RevokedReason, t.RevokedByIP, t.ReplacedByTokenID,
	)
	if err != nil {
		return fmt.Errorf("saving refresh token %s: %w", t.ID, err)
	}
	return nil
}

// RevokeIfActive sets the revocation columns only if they are unset. The bool
// reports whether this call did it.
func (r *RefreshTokens) RevokeIfActive(ctx context.Context, id string, at time.Time, reason, ip string) (bool, error) {
	res, err := r.db.exec(ctx, r.db.sql, `
		UPDATE refresh_tokens
		SET revoked_at = ?, revoked_reason = ?, revoked_by_ip = ?
		WHERE id = ? AND revoked_at IS NULL`,
		millis(at), reason, ip, id,
	)
	if err != nil {
		return false, fmt.Errorf("revoking refresh token %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoking refresh token %s: %w", id, err)
	}
	if n == 1 {
		return true, nil
	}

	var count int
	if err := r.db.queryRow(ctx, r.db.sql,
		"SELECT COUNT(*) FROM refresh_tokens WHERE id = ?", id,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("checking refresh token %s: %w", id, err)
	}
	if count == 0 {
		return false, model.ErrNotFound
	}
	return false, nil
}

// ListForUser returns the ids of every token issued to userID.
func (r *RefreshTokens) ListForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.db.queryStrings(ctx,
		"SELECT id FROM refresh_tokens WHERE user_id = ? ORDER BY created_at", userID)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	return ids, nil
}
