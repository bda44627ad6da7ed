package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/redis/go-redis/v9"
)

// TwoFactorStore keeps one hash per user for the secret and flags, plus a set
// of remaining backup codes. SREM on the set is the single-use guarantee.
type TwoFactorStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTwoFactorStore(client redis.UniversalClient, prefix string) *TwoFactorStore {
	if prefix == "" {
		prefix = "campus"
	}
	return &TwoFactorStore{redis: client, prefix: prefix}
}

func (s *TwoFactorStore) key(userID string) string {
	return s.prefix + ":2fa:" + userID
}

func (s *TwoFactorStore) codesKey(userID string) string {
	return s.prefix + ":2fa:" + userID + ":codes"
}

// FindByUserID returns model.ErrNotFound when the user never enrolled.
func (s *TwoFactorStore) FindByUserID(ctx context.Context, userID string) (*model.TwoFactorRecord, error) {
	var (
		hashCmd  *redis.MapStringStringCmd
		codesCmd *redis.StringSliceCmd
	)
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		hashCmd = pipe.HGetAll(ctx, s.key(userID))
		codesCmd = pipe.SMembers(ctx, s.codesKey(userID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	values := hashCmd.Val()
	if len(values) == 0 {
		return nil, model.ErrNotFound
	}

	codes := codesCmd.Val()
	sort.Strings(codes)

	rec := &model.TwoFactorRecord{
		UserID:      userID,
		Secret:      values["secret"],
		Enrolled:    values["enrolled"] == "1",
		Enabled:     values["enabled"] == "1",
		BackupCodes: codes,
	}
	if ms, err := strconv.ParseInt(values["updated"], 10, 64); err == nil {
		rec.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return rec, nil
}

// Save replaces the record and its whole backup-code set in one transaction.
// Enrollment is the only caller.
func (s *TwoFactorStore) Save(ctx context.Context, rec *model.TwoFactorRecord) error {
	if rec == nil || rec.UserID == "" {
		return errors.New("two-factor record requires user id")
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(rec.UserID), map[string]interface{}{
			"secret":   rec.Secret,
			"enrolled": boolFlag(rec.Enrolled),
			"enabled":  boolFlag(rec.Enabled),
			"updated":  rec.UpdatedAt.UnixMilli(),
		})
		pipe.Del(ctx, s.codesKey(rec.UserID))
		if len(rec.BackupCodes) > 0 {
			members := make([]interface{}, len(rec.BackupCodes))
			for i, c := range rec.BackupCodes {
				members[i] = c
			}
			pipe.SAdd(ctx, s.codesKey(rec.UserID), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// setFlagsScript updates the flag fields of an existing record only. The
// backup-code set is left alone.
const setFlagsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "enrolled", ARGV[1], "enabled", ARGV[2], "updated", ARGV[3])
return 1
`

var setFlagsLua = redis.NewScript(setFlagsScript)

// SetFlags updates enrolled and enabled without touching the backup codes.
func (s *TwoFactorStore) SetFlags(ctx context.Context, userID string, enrolled, enabled bool, at time.Time) error {
	n, err := setFlagsLua.Run(ctx, s.redis, []string{s.key(userID)},
		boolFlag(enrolled), boolFlag(enabled), at.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ReplaceBackupCodes swaps the whole code set. Codes of the old set that were
// consumed meanwhile stay gone because none of them are written back.
func (s *TwoFactorStore) ReplaceBackupCodes(ctx context.Context, userID string, codes []string, at time.Time) error {
	n, err := s.redis.Exists(ctx, s.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.codesKey(userID))
		if len(codes) > 0 {
			members := make([]interface{}, len(codes))
			for i, c := range codes {
				members[i] = c
			}
			pipe.SAdd(ctx, s.codesKey(userID), members...)
		}
		pipe.HSet(ctx, s.key(userID), "updated", at.UnixMilli())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ConsumeBackupCode removes code from the user's remaining set. Only the
// caller whose removal succeeds gets true.
func (s *TwoFactorStore) ConsumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	n, err := s.redis.SRem(ctx, s.codesKey(userID), code).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
