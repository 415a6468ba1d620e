package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps each room key as a plain string value.
//
// Key pattern:
// {prefix}:room:{room_id}:{key}   STRING<json>
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "workspace"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Room(roomID string) RoomStore {
	return &redisRoom{store: s, roomID: roomID}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) keyFor(roomID, key string) string {
	return fmt.Sprintf("%s:room:%s:%s", s.prefix, roomID, key)
}

type redisRoom struct {
	alarm
	store  *RedisStore
	roomID string
}

func (r *redisRoom) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.store.keyFor(r.roomID, k)
	}

	vals, err := r.store.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room %s: %w", r.roomID, err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

func (r *redisRoom) Put(ctx context.Context, key string, value []byte) error {
	if err := r.store.client.Set(ctx, r.store.keyFor(r.roomID, key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s for room %s: %w", key, r.roomID, err)
	}
	return nil
}

func (r *redisRoom) PutMany(ctx context.Context, entries map[string][]byte) error {
	_, err := r.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, r.store.keyFor(r.roomID, k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write room %s: %w", r.roomID, err)
	}
	return nil
}

func (r *redisRoom) Close() error {
	r.stop()
	return nil
}
