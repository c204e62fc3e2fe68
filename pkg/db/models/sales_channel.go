package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesChannel is an external marketplace the catalog is listed on. Name is also the adapter kind.
type SalesChannel struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name           string          `gorm:"column:name;not null;uniqueIndex"`
	DisplayName    string          `gorm:"column:display_name;not null"`
	IsActive       bool            `gorm:"column:is_active;not null"`
	APICredentials json.RawMessage `gorm:"column:api_credentials;type:jsonb"`
	Config         json.RawMessage `gorm:"column:config;type:jsonb"`
	LastSyncedAt   *time.Time      `gorm:"column:last_synced_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (SalesChannel) TableName() string { return "sales_channels" }

func (c *SalesChannel) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// ChannelListing binds a variant to a channel with a channel specific price.
type ChannelListing struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VariantID    uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:idx_listing_variant_channel"`
	ChannelID    uuid.UUID       `gorm:"column:channel_id;type:uuid;not null;uniqueIndex:idx_listing_variant_channel;index"`
	ExternalID   *string         `gorm:"column:external_id"`
	ChannelSKU   *string         `gorm:"column:channel_sku"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	IsActive     bool            `gorm:"column:is_active;not null"`
	LastSyncedAt *time.Time      `gorm:"column:last_synced_at"`
	Channel      *SalesChannel   `gorm:"foreignKey:ChannelID"`
	Variant      *Variant        `gorm:"foreignKey:VariantID"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelListing) TableName() string { return "channel_listings" }

func (l *ChannelListing) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}
