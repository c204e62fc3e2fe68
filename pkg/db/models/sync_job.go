package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
)

// SyncJob is one durable outbound mutation waiting to be applied to a channel.
type SyncJob struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	VariantID    *uuid.UUID       `gorm:"column:variant_id;type:uuid;index"`
	ChannelID    uuid.UUID        `gorm:"column:channel_id;type:uuid;not null;index"`
	Action       enums.SyncAction `gorm:"column:action;not null"`
	Payload      json.RawMessage  `gorm:"column:payload;type:jsonb;not null"`
	Status       enums.SyncStatus `gorm:"column:status;not null;index:idx_sync_queue_status_created,priority:1"`
	RetryCount   int              `gorm:"column:retry_count;not null"`
	ErrorMessage *string          `gorm:"column:error_message"`
	Result       json.RawMessage  `gorm:"column:result;type:jsonb"`
	Sequence     int64            `gorm:"column:sequence;not null"`
	ClaimedBy    *string          `gorm:"column:claimed_by"`
	ClaimedAt    *time.Time       `gorm:"column:claimed_at"`
	CreatedAt    time.Time        `gorm:"column:created_at;not null;index:idx_sync_queue_status_created,priority:2"`
	ProcessedAt  *time.Time       `gorm:"column:processed_at"`
}

func (SyncJob) TableName() string { return "sync_queue" }

func (j *SyncJob) BeforeCreate(*gorm.DB) error {
	assignID(&j.ID)
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	return nil
}
