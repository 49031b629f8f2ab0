package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/lifecare/billing-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// QueueCache is a short-lived cache for the reconciliation queue snapshot.
// A miss (or any cache failure) falls back to recomputing from the store.
type QueueCache interface {
	Get(ctx context.Context) ([]domain.ReconciliationRecord, bool)
	Set(ctx context.Context, records []domain.ReconciliationRecord) error
}

// RedisQueueCache caches the ranked queue in Redis so several operator
// dashboards refreshing at once share one snapshot instead of each hitting
// the store.
type RedisQueueCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

func NewRedisQueueCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisQueueCache {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "billing"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisQueueCache{
		client: client,
		key:    trimmedPrefix + ":reconciliation_queue",
		ttl:    ttl,
	}
}

func (c *RedisQueueCache) Get(ctx context.Context) ([]domain.ReconciliationRecord, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		return nil, false
	}
	var records []domain.ReconciliationRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, false
	}
	return records, true
}

func (c *RedisQueueCache) Set(ctx context.Context, records []domain.ReconciliationRecord) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, c.ttl).Err()
}
