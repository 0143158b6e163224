// internal/service/batchbuilder/infrastructure/redis_store.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/service/batchbuilder/domain"
)

const selectionKeyPrefix = "batchbuilder:selection:"

// RedisStore 把每个会话的选择保存为一个 JSON 字符串。
// 每次 Save 都会刷新 TTL，会话闲置超过 TTL 后选择自动过期。
type RedisStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client goredis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func selectionKey(sessionID string) string {
	return selectionKeyPrefix + sessionID
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (*domain.BatchBuildSelection, error) {
	data, err := r.client.Get(ctx, selectionKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load working selection: %w", err)
	}

	sel, err := decodeSelection(data)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("Discarding unreadable working selection")
		return nil, nil
	}
	return sel, nil
}

func (r *RedisStore) Save(ctx context.Context, sessionID string, sel *domain.BatchBuildSelection) error {
	data, err := encodeSelection(sel)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, selectionKey(sessionID), data, r.ttl).Err()
}

func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, selectionKey(sessionID)).Err()
}
