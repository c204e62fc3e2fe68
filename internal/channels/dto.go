package channels

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
)

type CreateChannelInput struct {
	Name           string
	DisplayName    string
	IsActive       *bool
	APICredentials json.RawMessage
	Config         json.RawMessage
}

type UpdateChannelInput struct {
	DisplayName    *string
	IsActive       *bool
	APICredentials json.RawMessage
	Config         json.RawMessage
}

type CreateListingInput struct {
	VariantID  uuid.UUID
	ChannelID  uuid.UUID
	Price      decimal.Decimal
	ChannelSKU *string
}

type UpdateListingInput struct {
	Price      *decimal.Decimal
	IsActive   *bool
	ChannelSKU *string
}

// ChannelDTO never exposes credentials, only whether they are configured.
type ChannelDTO struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	DisplayName    string          `json:"displayName"`
	IsActive       bool            `json:"isActive"`
	HasCredentials bool            `json:"hasCredentials"`
	Config         json.RawMessage `json:"config,omitempty"`
	LastSyncedAt   *time.Time      `json:"lastSyncedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ListingDTO struct {
	ID           uuid.UUID       `json:"id"`
	VariantID    uuid.UUID       `json:"variantId"`
	ChannelID    uuid.UUID       `json:"channelId"`
	ChannelName  string          `json:"channelName,omitempty"`
	SKU          string          `json:"sku,omitempty"`
	ExternalID   *string         `json:"externalId,omitempty"`
	ChannelSKU   *string         `json:"channelSku,omitempty"`
	Price        decimal.Decimal `json:"price"`
	IsActive     bool            `json:"isActive"`
	LastSyncedAt *time.Time      `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func ToChannelDTO(c models.SalesChannel) ChannelDTO {
	return ChannelDTO{
		ID:             c.ID,
		Name:           c.Name,
		DisplayName:    c.DisplayName,
		IsActive:       c.IsActive,
		HasCredentials: len(c.APICredentials) > 0 && string(c.APICredentials) != "null",
		Config:         redactConfig(c.Config),
		LastSyncedAt:   c.LastSyncedAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func ToChannelDTOs(channels []models.SalesChannel) []ChannelDTO {
	out := make([]ChannelDTO, 0, len(channels))
	for _, c := range channels {
		out = append(out, ToChannelDTO(c))
	}
	return out
}

func ToListingDTO(l models.ChannelListing) ListingDTO {
	dto := ListingDTO{
		ID:           l.ID,
		VariantID:    l.VariantID,
		ChannelID:    l.ChannelID,
		ExternalID:   l.ExternalID,
		ChannelSKU:   l.ChannelSKU,
		Price:        l.Price,
		IsActive:     l.IsActive,
		LastSyncedAt: l.LastSyncedAt,
		CreatedAt:    l.CreatedAt,
	}
	if l.Channel != nil {
		dto.ChannelName = l.Channel.Name
	}
	if l.Variant != nil {
		dto.SKU = l.Variant.SKU
	}
	return dto
}

func ToListingDTOs(listings []models.ChannelListing) []ListingDTO {
	out := make([]ListingDTO, 0, len(listings))
	for _, l := range listings {
		out = append(out, ToListingDTO(l))
	}
	return out
}

// WebhookSecret returns the per-channel HMAC secret from the channel config, if any.
func WebhookSecret(c models.SalesChannel) string {
	var cfg struct {
		WebhookSecret string `json:"webhookSecret"`
	}
	if len(c.Config) == 0 {
		return ""
	}
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return ""
	}
	return cfg.WebhookSecret
}

func redactConfig(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw
	}
	if _, ok := fields["webhookSecret"]; !ok {
		return raw
	}
	fields["webhookSecret"] = "********"
	out, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return out
}
