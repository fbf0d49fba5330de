// Package session keeps per-document engine state and analysed batches in
// Redis so they survive restarts and are shared between API replicas.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"inkline/api/internal/suggest"
)

const (
	defaultStateTTL = 24 * time.Hour
	defaultBatchTTL = time.Hour
)

// RedisStore persists engine snapshots and the batch cache.
type RedisStore struct {
	client      *redis.Client
	statePrefix string
	batchPrefix string
	stateTTL    time.Duration
	batchTTL    time.Duration
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:      client,
		statePrefix: "engine:",
		batchPrefix: "batch:",
		stateTTL:    defaultStateTTL,
		batchTTL:    defaultBatchTTL,
	}
}

// WithTTL overrides the expiry of engine snapshots and cached batches.
// Non-positive values keep the current setting.
func (s *RedisStore) WithTTL(state, batch time.Duration) *RedisStore {
	if state > 0 {
		s.stateTTL = state
	}
	if batch > 0 {
		s.batchTTL = batch
	}
	return s
}

// SaveEngine stores the engine snapshot of a document.
func (s *RedisStore) SaveEngine(ctx context.Context, documentID string, state suggest.State) error {
	data, err := msgpack.Marshal(&state)
	if err != nil {
		return fmt.Errorf("marshal engine state: %w", err)
	}
	if err := s.client.Set(ctx, s.statePrefix+documentID, data, s.stateTTL).Err(); err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}
	return nil
}

// LoadEngine returns the stored snapshot of a document. ok is false when
// nothing is stored or the snapshot expired.
func (s *RedisStore) LoadEngine(ctx context.Context, documentID string) (state suggest.State, ok bool, err error) {
	data, err := s.client.Get(ctx, s.statePrefix+documentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return suggest.State{}, false, nil
	}
	if err != nil {
		return suggest.State{}, false, fmt.Errorf("load engine state: %w", err)
	}
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return suggest.State{}, false, fmt.Errorf("unmarshal engine state: %w", err)
	}
	return state, true, nil
}

// DeleteEngine removes a document's snapshot.
func (s *RedisStore) DeleteEngine(ctx context.Context, documentID string) error {
	if err := s.client.Del(ctx, s.statePrefix+documentID).Err(); err != nil {
		return fmt.Errorf("delete engine state: %w", err)
	}
	return nil
}

// PutBatch caches a merged suggestion batch under a content key.
func (s *RedisStore) PutBatch(ctx context.Context, key string, batch []suggest.Suggestion) error {
	records, err := suggest.Records(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	data, err := msgpack.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := s.client.Set(ctx, s.batchPrefix+key, data, s.batchTTL).Err(); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

// GetBatch returns a cached batch.
func (s *RedisStore) GetBatch(ctx context.Context, key string) ([]suggest.Suggestion, bool, error) {
	data, err := s.client.Get(ctx, s.batchPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup batch: %w", err)
	}
	var records []suggest.Record
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("unmarshal batch: %w", err)
	}
	batch, err := suggest.FromRecords(records)
	if err != nil {
		return nil, false, fmt.Errorf("decode batch: %w", err)
	}
	return batch, true, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
