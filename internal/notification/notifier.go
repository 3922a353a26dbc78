package notification

import (
	"context"
	"time"

	"github.com/grovia/settlement/pkg/events"
	"github.com/grovia/settlement/pkg/logger"
)

// Notifier is the seam the settlement services emit account activity
// through. Delivery failures are swallowed: a notification must never roll
// back a committed financial transition.
type Notifier interface {
	SendAccountActivity(ctx context.Context, userID, title, message string, data map[string]interface{}, channels []string)
}

type queueNotifier struct {
	redis *events.RedisClient
}

func NewNotifier(redis *events.RedisClient) Notifier {
	return &queueNotifier{redis: redis}
}

func (n *queueNotifier) SendAccountActivity(ctx context.Context, userID, title, message string, data map[string]interface{}, channels []string) {
	event := events.AccountActivityEvent{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Data:      data,
		Channels:  channels,
		Timestamp: time.Now().UTC(),
	}

	if err := n.redis.PublishEvent(ctx, event); err != nil {
		logger.Error("Failed to queue account activity event", logger.Fields{
			"error":   err.Error(),
			"user_id": userID,
			"title":   title,
		})
	}
}
