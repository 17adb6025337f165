package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"expensync/internal/amqp"
	"expensync/internal/core"
	"expensync/internal/metrics"
	"expensync/internal/storage"
)

const (
	maxTokenLen = 4096
	maxTitleLen = 120
	maxBodyLen  = 1000
)

type PushService struct {
	repo   *storage.Repository
	events events
}

func NewPushService(repo *storage.Repository, pub Publisher, m *metrics.Metrics, logger *slog.Logger) *PushService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushService{repo: repo, events: events{pub: pub, metrics: m, logger: logger}}
}

// Register stores a device token for userID. Tokens move between users
// when a device changes owner.
func (s *PushService) Register(ctx context.Context, userID int64, token, platform string) error {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLen {
		return fmt.Errorf("%w: token must be 1..%d characters", core.ErrInvalidInput, maxTokenLen)
	}
	platform = strings.ToLower(strings.TrimSpace(platform))
	if !core.ValidPlatform(platform) {
		return fmt.Errorf("%w '%s'", core.ErrInvalidPlatform, platform)
	}
	return s.repo.UpsertPushToken(ctx, core.PushToken{UserID: userID, Token: token, Platform: platform})
}

func (s *PushService) Unregister(ctx context.Context, userID int64, token string) error {
	return s.repo.DeletePushToken(ctx, userID, token)
}

// Broadcast queues a notification for every registered device.
func (s *PushService) Broadcast(ctx context.Context, actorID int64, title, body string) error {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" || body == "" {
		return fmt.Errorf("%w: title and body are required", core.ErrInvalidInput)
	}
	if len(title) > maxTitleLen || len(body) > maxBodyLen {
		return fmt.Errorf("%w: title max %d, body max %d characters", core.ErrTooLong, maxTitleLen, maxBodyLen)
	}
	if s.events.pub == nil {
		return fmt.Errorf("event broker not configured: %w", core.ErrUnavailable)
	}

	e := amqp.NewEvent(amqp.EventAdminBroadcast, 0)
	e.Title = title
	e.Body = body
	err := s.events.pub.Publish(ctx, e)
	s.events.metrics.EventPublished(string(e.Type), err)
	if err != nil {
		return fmt.Errorf("publish broadcast: %w: %v", core.ErrUnavailable, err)
	}
	s.events.logger.InfoContext(ctx, "Broadcast queued", "actor_id", actorID, "title", title)
	return nil
}
