package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients separates command traffic (locks, cache, publish) from the
// long-lived subscriptions held by the websocket hub.
type RedisClients struct {
	Cmd    *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmdClient := redis.NewClient(opt)
	if err := cmdClient.Ping(ctx).Err(); err != nil {
		_ = cmdClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (cmd): %w", err)
	}

	// PubSub client (separate connection pool)
	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		_ = cmdClient.Close()
		_ = pubsubClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Cmd:    cmdClient,
		PubSub: pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	if r == nil {
		return
	}
	_ = r.Cmd.Close()
	_ = r.PubSub.Close()
}
