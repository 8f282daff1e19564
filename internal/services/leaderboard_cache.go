package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"studytracker-backend/internal/models"
)

// LeaderboardCache stores the ranked entries shared by every caller. A miss
// is reported as (nil, nil).
type LeaderboardCache interface {
	Get(ctx context.Context) ([]models.LeaderboardEntry, error)
	Set(ctx context.Context, entries []models.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

type nopLeaderboardCache struct{}

func (nopLeaderboardCache) Get(context.Context) ([]models.LeaderboardEntry, error) { return nil, nil }
func (nopLeaderboardCache) Set(context.Context, []models.LeaderboardEntry) error  { return nil }
func (nopLeaderboardCache) Invalidate(context.Context) error                      { return nil }

const leaderboardKey = "studytracker:leaderboard"

// RedisLeaderboardCache keeps the ranking as a JSON blob with a TTL.
type RedisLeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLeaderboardCache(client *redis.Client, ttl time.Duration) *RedisLeaderboardCache {
	return &RedisLeaderboardCache{client: client, ttl: ttl}
}

func (c *RedisLeaderboardCache) Get(ctx context.Context) ([]models.LeaderboardEntry, error) {
	data, err := c.client.Get(ctx, leaderboardKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	return entries, nil
}

func (c *RedisLeaderboardCache) Set(ctx context.Context, entries []models.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	return c.client.Set(ctx, leaderboardKey, data, c.ttl).Err()
}

func (c *RedisLeaderboardCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, leaderboardKey).Err()
}
