package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizcast/internal/game"
)

// RedisStore keeps room records in Redis. Records are JSON strings under
// room:{CODE} with a sliding TTL; active codes live in the active:rooms set.
// Updates run inside WATCH so interference from another writer surfaces as
// ErrConflict instead of a lost write.
type RedisStore struct {
	client *redis.Client
	locks  *keyedMutex
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		locks:  newKeyedMutex(),
		ttl:    ttl,
	}, nil
}

// Create stores a new room record, set-if-absent.
func (s *RedisStore) Create(ctx context.Context, code string, room *game.Room) error {
	room.Version = 1
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room %s: %w", code, err)
	}

	ok, err := s.client.SetNX(ctx, roomKey(code), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create room %s: %w", code, err)
	}
	if !ok {
		return ErrCodeInUse
	}
	if err := s.client.SAdd(ctx, activeRoomsKey, code).Err(); err != nil {
		return fmt.Errorf("register room %s: %w", code, err)
	}
	return nil
}

// Get returns a copy of the room record or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, code string) (*game.Room, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", code, err)
	}

	var room game.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("unmarshal room %s: %w", code, err)
	}
	return &room, nil
}

// Update applies mutate under the per-code lock inside a WATCH transaction
// and writes back with a refreshed TTL.
func (s *RedisStore) Update(ctx context.Context, code string, mutate func(*game.Room) error) (*game.Room, error) {
	unlock := s.locks.lock(code)
	defer unlock()

	key := roomKey(code)
	var updated *game.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get room %s: %w", code, err)
		}

		var room game.Room
		if err := json.Unmarshal(data, &room); err != nil {
			return fmt.Errorf("unmarshal room %s: %w", code, err)
		}
		if err := mutate(&room); err != nil {
			return err
		}
		room.Version++

		out, err := json.Marshal(&room)
		if err != nil {
			return fmt.Errorf("marshal room %s: %w", code, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			pipe.SAdd(ctx, activeRoomsKey, code)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &room
		return nil
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the record and active-set membership.
func (s *RedisStore) Delete(ctx context.Context, code string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(code))
		pipe.SRem(ctx, activeRoomsKey, code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete room %s: %w", code, err)
	}
	return nil
}

// ActiveCodes lists the active-rooms set.
func (s *RedisStore) ActiveCodes(ctx context.Context) ([]string, error) {
	codes, err := s.client.SMembers(ctx, activeRoomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	return codes, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
