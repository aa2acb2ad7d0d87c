package redis

import (
	"context"
	"fmt"
	"strings"

	"custodial-wallet-engine/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient connects to Redis and pings it. One endpoint gives a plain client,
// several give a cluster client, and a master name switches to sentinel failover.
// Every store in this package accepts the returned UniversalClient.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (goredis.UniversalClient, error) {
	endpoints := cfg.Endpoints()
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:      endpoints,
		MasterName: cfg.MasterName,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis %s: %w", strings.Join(endpoints, ","), err)
	}

	log.Info().
		Strs("addrs", endpoints).
		Str("master", cfg.MasterName).
		Int("db", cfg.DB).
		Msg("Redis connection established")

	return client, nil
}
