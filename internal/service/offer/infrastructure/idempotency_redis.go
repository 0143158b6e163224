// internal/service/offer/infrastructure/idempotency_redis.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"flashpromo/internal/service/offer/domain"
)

const idempotencyKeyPrefix = "offer:idempotency:"

// RedisIdempotencyCache 实现了 domain.IdempotencyCache，缓存已完成批次的结果
type RedisIdempotencyCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewRedisIdempotencyCache(client goredis.UniversalClient, ttl time.Duration) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{client: client, ttl: ttl}
}

type cachedBatch struct {
	BatchID     string    `json:"batchId"`
	MerchantID  string    `json:"merchantId"`
	Fingerprint string    `json:"fingerprint"`
	OfferIDs    []string  `json:"offerIds"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c *RedisIdempotencyCache) Get(ctx context.Context, token string) (*domain.Batch, error) {
	data, err := c.client.Get(ctx, idempotencyKeyPrefix+token).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency cache get: %w", err)
	}
	var cb cachedBatch
	if err := json.Unmarshal(data, &cb); err != nil {
		// 无法解析的缓存当作未命中，数据库才是准的
		return nil, nil
	}
	return &domain.Batch{
		ID:          cb.BatchID,
		Token:       token,
		MerchantID:  cb.MerchantID,
		Fingerprint: cb.Fingerprint,
		OfferIDs:    cb.OfferIDs,
		CreatedAt:   cb.CreatedAt,
	}, nil
}

func (c *RedisIdempotencyCache) Put(ctx context.Context, batch *domain.Batch) error {
	data, err := json.Marshal(cachedBatch{
		BatchID:     batch.ID,
		MerchantID:  batch.MerchantID,
		Fingerprint: batch.Fingerprint,
		OfferIDs:    batch.OfferIDs,
		CreatedAt:   batch.CreatedAt,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, idempotencyKeyPrefix+batch.Token, data, c.ttl).Err()
}
