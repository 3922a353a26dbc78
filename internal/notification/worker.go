package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/grovia/settlement/pkg/events"
	"github.com/grovia/settlement/pkg/logger"
)

// Worker drains the account activity queue and fans events out to the
// delivery channels. In-app notifications are persisted here; push and email
// delivery belong to downstream systems and are only logged.
type Worker struct {
	Repo        Repository
	RedisClient *events.RedisClient
}

func NewWorker(repo Repository, redisClient *events.RedisClient) *Worker {
	return &Worker{Repo: repo, RedisClient: redisClient}
}

func (w *Worker) Start() {
	logger.Info("Starting notification worker...")
	go w.processEvents()
}

func (w *Worker) processEvents() {
	for {
		result, err := w.RedisClient.Client.BLPop(context.Background(), 5*time.Second, events.NotificationQueue).Result()
		if err != nil {
			continue
		}

		eventData := []byte(result[1])
		var event events.AccountActivityEvent
		if err := json.Unmarshal(eventData, &event); err != nil {
			logger.Error("NotificationWorker: Failed to unmarshal event", logger.Fields{"error": err.Error(), "data": string(eventData)})
			w.moveToDLQ(eventData)
			continue
		}

		w.handleEvent(event, eventData)
	}
}

func (w *Worker) handleEvent(event events.AccountActivityEvent, rawData []byte) {
	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		logger.Warn("NotificationWorker: Event without a valid user id", logger.Fields{"user_id": event.UserID})
		w.moveToDLQ(rawData)
		return
	}

	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := w.deliver(userID, event)
		if err == nil {
			return
		}

		logger.Warn("NotificationWorker: Failed to deliver event, retrying", logger.Fields{
			"user_id": event.UserID,
			"title":   event.Title,
			"attempt": i + 1,
			"error":   err.Error(),
		})
		time.Sleep(time.Duration(i+1) * time.Second)
	}

	logger.Error("NotificationWorker: Max retries exhausted, moving to DLQ", logger.Fields{"user_id": event.UserID})
	w.moveToDLQ(rawData)
}

func (w *Worker) deliver(userID uuid.UUID, event events.AccountActivityEvent) error {
	for _, channel := range event.Channels {
		switch channel {
		case ChannelInApp:
			n := &UserNotification{
				UserID:   userID,
				Title:    event.Title,
				Message:  event.Message,
				Data:     event.Data,
				Channels: event.Channels,
			}
			if err := w.Repo.Create(n); err != nil {
				return err
			}
		case ChannelPush, ChannelEmail:
			// handled by the external dispatcher, nothing to persist here
			logger.Debug("NotificationWorker: channel handed off", logger.Fields{"channel": channel, "user_id": event.UserID})
		default:
			logger.Warn("NotificationWorker: Unknown channel", logger.Fields{"channel": channel})
		}
	}
	return nil
}

func (w *Worker) moveToDLQ(data []byte) {
	if err := w.RedisClient.PushToDLQ(context.Background(), data); err != nil {
		logger.Error("NotificationWorker: Failed to push to DLQ", logger.Fields{"error": err.Error()})
	}
}
