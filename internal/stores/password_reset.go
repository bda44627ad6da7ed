package stores

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetSecretMismatch   = errors.New("reset secret mismatch")
	ErrResetAttemptsExceeded = errors.New("reset attempts exceeded")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
	ErrResetCorrupt          = errors.New("reset record corrupt")
)

const (
	resetFieldUserID   = "uid"
	resetFieldHash     = "hash"
	resetFieldExpires  = "exp"
	resetFieldAttempts = "att"
)

// PasswordResetRecord is one outstanding reset challenge. Only the SHA-256 of
// the mailed secret is kept.
type PasswordResetRecord struct {
	UserID     string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   int
}

// PasswordResetStore keeps each challenge as a Redis hash that expires with
// the challenge.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewPasswordResetStore keys records as "<prefix>:apr:<resetID>". A nil now
// uses the wall clock.
func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *PasswordResetStore {
	if prefix == "" {
		prefix = "campus"
	}
	if now == nil {
		now = time.Now
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *PasswordResetStore) key(resetID string) string {
	return s.prefix + ":apr:" + resetID
}

func (s *PasswordResetStore) Save(ctx context.Context, resetID string, record *PasswordResetRecord, ttl time.Duration) error {
	if record == nil || record.UserID == "" {
		return errors.New("reset record requires user id")
	}
	key := s.key(resetID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			resetFieldUserID:   record.UserID,
			resetFieldHash:     hex.EncodeToString(record.SecretHash[:]),
			resetFieldExpires:  record.ExpiresAt,
			resetFieldAttempts: record.Attempts,
		})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume checks providedHash against the stored challenge. A match deletes
// the record and returns it. A mismatch bumps Attempts, and the record is
// deleted once maxAttempts is reached. Expired records are deleted on sight.
func (s *PasswordResetStore) Consume(ctx context.Context, resetID string, providedHash [32]byte, maxAttempts int) (*PasswordResetRecord, error) {
	const maxRetries = 4
	key := s.key(resetID)

	for i := 0; i < maxRetries; i++ {
		var matched *PasswordResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			values, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(values) == 0 {
				return ErrResetNotFound
			}
			record, err := decodeResetRecord(values)
			if err != nil {
				return err
			}

			if s.now().Unix() >= record.ExpiresAt {
				return deleteWatched(ctx, tx, key, ErrResetNotFound)
			}
			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) == 1 {
				matched = record
				return deleteWatched(ctx, tx, key, nil)
			}

			if record.Attempts+1 >= maxAttempts {
				return deleteWatched(ctx, tx, key, ErrResetAttemptsExceeded)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HIncrBy(ctx, key, resetFieldAttempts, 1)
				return nil
			})
			if err != nil {
				return err
			}
			return ErrResetSecretMismatch
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil:
			return matched, nil
		case errors.Is(err, ErrResetNotFound),
			errors.Is(err, ErrResetSecretMismatch),
			errors.Is(err, ErrResetAttemptsExceeded),
			errors.Is(err, ErrResetCorrupt):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
	}

	return nil, ErrResetNotFound
}

// deleteWatched removes key inside the watched transaction and then reports
// result.
func deleteWatched(ctx context.Context, tx *redis.Tx, key string, result error) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return err
	}
	return result
}

func decodeResetRecord(values map[string]string) (*PasswordResetRecord, error) {
	record := &PasswordResetRecord{UserID: values[resetFieldUserID]}
	if record.UserID == "" {
		return nil, ErrResetCorrupt
	}

	raw, err := hex.DecodeString(values[resetFieldHash])
	if err != nil || len(raw) != len(record.SecretHash) {
		return nil, ErrResetCorrupt
	}
	copy(record.SecretHash[:], raw)

	if record.ExpiresAt, err = strconv.ParseInt(values[resetFieldExpires], 10, 64); err != nil {
		return nil, ErrResetCorrupt
	}
	if record.Attempts, err = strconv.Atoi(values[resetFieldAttempts]); err != nil {
		return nil, ErrResetCorrupt
	}
	return record, nil
}
