package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"studytracker-backend/internal/models"
)

// EventPublisher delivers session lifecycle events to interested listeners.
type EventPublisher interface {
	Publish(ctx context.Context, userID int64, msg models.WSMessage) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, int64, models.WSMessage) error { return nil }

// UserChannel is the pub/sub channel carrying a user's events.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user_updates:%d", userID)
}

// RedisEventPublisher publishes JSON messages on UserChannel.
type RedisEventPublisher struct {
	client *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{client: client}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, userID int64, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", msg.Type, err)
	}
	return p.client.Publish(ctx, UserChannel(userID), data).Err()
}

func sessionEvent(eventType string, s *models.StudySession) models.WSMessage {
	return models.WSMessage{
		Type: eventType,
		Payload: models.SessionEvent{
			SessionID:       s.ID,
			UserID:          s.UserID,
			Subject:         s.Subject,
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			DurationMinutes: s.DurationMinutes,
		},
	}
}
