package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessedWebhook marks an inbound webhook as handled. Rows are write-once.
type ProcessedWebhook struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	WebhookID   string    `gorm:"column:webhook_id;not null;uniqueIndex"`
	ChannelID   uuid.UUID `gorm:"column:channel_id;type:uuid;not null"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

func (ProcessedWebhook) TableName() string { return "processed_webhooks" }

func (w *ProcessedWebhook) BeforeCreate(*gorm.DB) error {
	assignID(&w.ID)
	if w.ProcessedAt.IsZero() {
		w.ProcessedAt = time.Now().UTC()
	}
	return nil
}
