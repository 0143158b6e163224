// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewClient 根据地址数量创建单机或集群客户端，并做一次连通性检查
func NewClient(addrs []string, password string, db int) (goredis.UniversalClient, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    addrs,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis %v: %w", addrs, err)
	}
	log.Info().Strs("addrs", addrs).Msg("Successfully connected to Redis.")
	return client, nil
}
