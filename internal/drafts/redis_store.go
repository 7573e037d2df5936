package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "draft:"

// RedisStore keeps each draft as a JSON value under draft:<user>:<form>.
type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewRedisStore wraps an existing client. A zero retention stores keys
// without expiry.
func NewRedisStore(rdb *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, retention: retention}
}

func redisKey(key Key) string {
	return redisKeyPrefix + key.UserID + ":" + key.FormType
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	val, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	rec.UpdatedAtMs = rec.UpdatedAt.UnixMilli()
	return &rec, nil
}

func (s *RedisStore) Upsert(ctx context.Context, key Key, payload Payload, updatedAt time.Time) error {
	if err := key.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(newRecord(key, payload, updatedAt, s.retention))
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKey(key), b, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
