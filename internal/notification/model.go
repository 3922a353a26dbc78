package notification

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/grovia/settlement/pkg/database"
)

const (
	ChannelInApp = "in_app"
	ChannelPush  = "push"
	ChannelEmail = "email"
)

type UserNotification struct {
	ID        uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	Title     string           `gorm:"not null" json:"title"`
	Message   string           `gorm:"not null" json:"message"`
	Data      database.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	Channels  pq.StringArray   `gorm:"type:text[]" json:"channels"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
