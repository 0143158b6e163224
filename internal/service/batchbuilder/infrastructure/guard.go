// internal/service/batchbuilder/infrastructure/guard.go
package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/service/batchbuilder/domain"
)

// MemoryGuard 是单实例部署下的提交互斥
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, token string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[token]; ok {
		return nil, domain.ErrSubmissionInFlight
	}
	g.held[token] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, token)
			g.mu.Unlock()
		})
	}, nil
}

func (g *MemoryGuard) InFlight(_ context.Context, token string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[token]
	return ok, nil
}

const submitGuardKeyPrefix = "batchbuilder:submit:"

// releaseScript 只删除自己持有的锁，租约过期后被别人拿到的锁不会被误删
var releaseScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`)

// RedisGuard 是多实例部署下的提交互斥，基于 SET NX PX 租约。
// 租约要比一次提交的超时长，否则进行中的提交可能被当作中断。
type RedisGuard struct {
	client goredis.UniversalClient
	lease  time.Duration
}

func NewRedisGuard(client goredis.UniversalClient, lease time.Duration) *RedisGuard {
	return &RedisGuard{client: client, lease: lease}
}

func (g *RedisGuard) Acquire(ctx context.Context, token string) (func(), error) {
	key := submitGuardKeyPrefix + token
	owner := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, owner, g.lease).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire submit guard: %w", err)
	}
	if !ok {
		return nil, domain.ErrSubmissionInFlight
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 请求可能已被取消，释放必须独立于请求的 context
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, g.client, []string{key}, owner).Err(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("batch_token", token).Msg("Failed to release submit guard, it will expire with its lease")
			}
		})
	}, nil
}

func (g *RedisGuard) InFlight(ctx context.Context, token string) (bool, error) {
	n, err := g.client.Exists(ctx, submitGuardKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check submit guard: %w", err)
	}
	return n > 0, nil
}
