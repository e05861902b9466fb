package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

type statusClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// RedisStatusStore keeps the latest RunStatus of each run under <prefix><run_id>
type RedisStatusStore struct {
	client statusClient
	prefix string
	ttl    time.Duration
}

// NewRedisStatusStore connects lazily to addr; nothing is dialed until the first call
func NewRedisStatusStore(addr, prefix string, ttl time.Duration) *RedisStatusStore {
	return newRedisStatusStore(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

func newRedisStatusStore(client statusClient, prefix string, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the Redis client
func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

// PutStatus overwrites the status record of status.RunID
func (s *RedisStatusStore) PutStatus(ctx context.Context, status models.RunStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%w: encoding status: %w", utils.ErrSink, err)
	}
	if err := s.client.Set(ctx, s.key(status.RunID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %w", utils.ErrSink, err)
	}
	return nil
}

// GetStatus reads the status record of runID. The bool is false when no record exists.
func (s *RedisStatusStore) GetStatus(ctx context.Context, runID string) (models.RunStatus, bool, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.RunStatus{}, false, nil
		}
		return models.RunStatus{}, false, fmt.Errorf("%w: redis get: %w", utils.ErrSink, err)
	}

	var status models.RunStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return models.RunStatus{}, false, fmt.Errorf("%w: decoding status: %w", utils.ErrSink, err)
	}
	return status, true, nil
}

func (s *RedisStatusStore) key(runID string) string {
	return s.prefix + runID
}
