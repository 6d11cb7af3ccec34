package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/pscheid92/livepulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

var _ domain.StateStore = (*StateStore)(nil)

type StateStore struct {
	rdb goredis.Cmdable
}

func NewStateStore(rdb goredis.Cmdable) *StateStore {
	return &StateStore{rdb: rdb}
}

func (s *StateStore) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis GET %s failed: %w", key, err)
	}
	return v, nil
}

func (s *StateStore) Set(ctx context.Context, key string, value int64) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s failed: %w", key, err)
	}
	return nil
}

func (s *StateStore) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis INCR %s failed: %w", key, err)
	}
	return v, nil
}

func (s *StateStore) Decr(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis DECR %s failed: %w", key, err)
	}
	return v, nil
}

func (s *StateStore) PushCapped(ctx context.Context, list, value string, maxLen int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, list, value)
		pipe.LTrim(ctx, list, 0, maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis LPUSH/LTRIM %s failed: %w", list, err)
	}
	return nil
}

func (s *StateStore) Range(ctx context.Context, list string, start, stop int64) ([]string, error) {
	entries, err := s.rdb.LRange(ctx, list, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE %s failed: %w", list, err)
	}
	return entries, nil
}

func (s *StateStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
