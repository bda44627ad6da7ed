package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrCorruptRecord is returned when a stored row cannot be decoded.
var ErrCorruptRecord = errors.New("refresh token record corrupt")

const (
	revokeStatusNotFound int64 = 0
	revokeStatusAlready  int64 = 1
	revokeStatusRevoked  int64 = 2
)

const (
	fieldUserID     = "uid"
	fieldHash       = "hash"
	fieldExpiresAt  = "exp"
	fieldCreatedAt  = "ca"
	fieldCreatedIP  = "cip"
	fieldRevokedAt  = "rev"
	fieldRevReason  = "rr"
	fieldRevIP      = "rip"
	fieldReplacedBy = "repl"
)

// revokeScript flips the revocation fields only when none are set yet, so
// exactly one of several concurrent callers observes status 2.
const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HEXISTS", KEYS[1], "rev") == 1 then
  return 1
end
redis.call("HSET", KEYS[1], "rev", ARGV[1], "rr", ARGV[2], "rip", ARGV[3])
return 2
`

var revokeLua = redis.NewScript(revokeScript)

// Store keeps refresh-token rows as Redis hashes. Rows outlive their expiry
// by the retention window so revoked chains stay auditable.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore returns a refresh-token store. A zero retention keeps rows forever.
func NewStore(client redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "campus"
	}
	return &Store{redis: client, prefix: prefix, retention: retention}
}

func (s *Store) key(id string) string {
	return s.prefix + ":rt:" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":rtu:" + userID
}

// Save upserts the row. Revocation fields are only ever added, never cleared.
func (s *Store) Save(ctx context.Context, t *model.RefreshToken) error {
	if t == nil || t.ID == "" || t.UserID == "" {
		return errors.New("refresh token id and user id required")
	}
	key := s.key(t.ID)

	fields := map[string]interface{}{
		fieldUserID:     t.UserID,
		fieldHash:       hex.EncodeToString(t.TokenHash[:]),
		fieldExpiresAt:  t.ExpiresAt.UnixMilli(),
		fieldCreatedAt:  t.CreatedAt.UnixMilli(),
		fieldCreatedIP:  t.CreatedByIP,
		fieldReplacedBy: t.ReplacedByTokenID,
	}
	if t.RevokedAt != nil {
		fields[fieldRevokedAt] = t.RevokedAt.UnixMilli()
		fields[fieldRevReason] = t.RevokedReason
		fields[fieldRevIP] = t.RevokedByIP
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, s.userKey(t.UserID), t.ID)
		if s.retention > 0 {
			pipe.PExpireAt(ctx, key, t.ExpiresAt.Add(s.retention))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// FindByID returns model.ErrNotFound for unknown ids.
func (s *Store) FindByID(ctx context.Context, id string) (*model.RefreshToken, error) {
	values, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(values) == 0 {
		return nil, model.ErrNotFound
	}
	return decodeToken(id, values)
}

// RevokeIfActive marks the row revoked unless it already is. The bool is true
// only for the caller that performed the revocation.
func (s *Store) RevokeIfActive(ctx context.Context, id string, at time.Time, reason, ip string) (bool, error) {
	status, err := revokeLua.Run(ctx, s.redis, []string{s.key(id)}, at.UnixMilli(), reason, ip).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case revokeStatusRevoked:
		return true, nil
	case revokeStatusAlready:
		return false, nil
	case revokeStatusNotFound:
		return false, model.ErrNotFound
	default:
		return false, fmt.Errorf("unexpected revoke status %d", status)
	}
}

// ListForUser returns the ids of every token row indexed for userID.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

func decodeToken(id string, v map[string]string) (*model.RefreshToken, error) {
	t := &model.RefreshToken{
		ID:                id,
		UserID:            v[fieldUserID],
		CreatedByIP:       v[fieldCreatedIP],
		RevokedReason:     v[fieldRevReason],
		RevokedByIP:       v[fieldRevIP],
		ReplacedByTokenID: v[fieldReplacedBy],
	}
	if t.UserID == "" {
		return nil, ErrCorruptRecord
	}

	raw, err := hex.DecodeString(v[fieldHash])
	if err != nil || len(raw) != len(t.TokenHash) {
		return nil, ErrCorruptRecord
	}
	copy(t.TokenHash[:], raw)

	if t.ExpiresAt, err = parseMillis(v[fieldExpiresAt]); err != nil {
		return nil, ErrCorruptRecord
	}
	if t.CreatedAt, err = parseMillis(v[fieldCreatedAt]); err != nil {
		return nil, ErrCorruptRecord
	}
	if rev, ok := v[fieldRevokedAt]; ok {
		at, err := parseMillis(rev)
		if err != nil {
			return nil, ErrCorruptRecord
		}
		t.RevokedAt = &at
	}
	return t, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
