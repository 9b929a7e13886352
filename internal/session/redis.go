package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "guest:"

// RedisStore keeps sessions in Redis, using WATCH/MULTI/EXEC for the
// version check.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisStore) Create(ctx context.Context, data *GuestSession) error {
	now := time.Now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1

	val, err := json.Marshal(data)
	if err != nil {
		return err
	}
	created, err := s.client.SetNX(ctx, s.key(data.ID), val, s.ttl).Result()
	if err != nil {
		return err
	}
	if !created {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*GuestSession, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data GuestSession
	if err := json.Unmarshal(val, &data); err != nil {
		return nil, err
	}

	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return &data, nil
}

func (s *RedisStore) Update(ctx context.Context, data *GuestSession) error {
	key := s.key(data.ID)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored GuestSession
		if err := json.Unmarshal(val, &stored); err != nil {
			return err
		}
		if stored.Version != data.Version {
			return ErrVersionConflict
		}

		next := *data
		next.Version++
		next.UpdatedAt = time.Now()
		newVal, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return ErrVersionConflict
		}
		if err != nil {
			return err
		}
		data.Version = next.Version
		data.UpdatedAt = next.UpdatedAt
		return nil
	}, key)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return sessionKeyPrefix + id
}
