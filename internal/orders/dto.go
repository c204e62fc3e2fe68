package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/pagination"
)

// CreateOrderInput is a channel order as received from the channel or an operator.
// TotalAmount is the channel's figure and may include shipping or tax, so it is
// not required to equal the item subtotals.
type CreateOrderInput struct {
	ChannelID       uuid.UUID
	ExternalOrderID string
	TotalAmount     decimal.Decimal
	CustomerInfo    json.RawMessage
	Items           []CreateOrderItemInput
}

type CreateOrderItemInput struct {
	VariantID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

type ListFilters struct {
	ChannelID *uuid.UUID
	Status    *enums.OrderStatus
	Cursor    *pagination.Cursor
}

// OrderList is one page of orders, newest first.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// StatusTotal is one grouped row of the stats query.
type StatusTotal struct {
	Status enums.OrderStatus
	Count  int64
	Amount decimal.Decimal
}

// Stats summarises orders per status. Revenue covers confirmed, shipped and delivered orders.
type Stats struct {
	Total        int64           `json:"total"`
	Pending      int64           `json:"pending"`
	Confirmed    int64           `json:"confirmed"`
	Shipped      int64           `json:"shipped"`
	Delivered    int64           `json:"delivered"`
	Cancelled    int64           `json:"cancelled"`
	Returned     int64           `json:"returned"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

type OrderDTO struct {
	ID              uuid.UUID         `json:"id"`
	ChannelID       uuid.UUID         `json:"channelId"`
	ChannelName     string            `json:"channelName,omitempty"`
	ExternalOrderID string            `json:"externalOrderId"`
	Status          enums.OrderStatus `json:"status"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
	CustomerInfo    json.RawMessage   `json:"customerInfo,omitempty"`
	Items           []OrderItemDTO    `json:"items"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type OrderItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	VariantID uuid.UUID       `json:"variantId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

func ToOrderDTO(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:              order.ID,
		ChannelID:       order.ChannelID,
		ExternalOrderID: order.ExternalOrderID,
		Status:          order.Status,
		TotalAmount:     order.TotalAmount,
		CustomerInfo:    order.CustomerInfo,
		Items:           make([]OrderItemDTO, 0, len(order.Items)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	if order.Channel != nil {
		dto.ChannelName = order.Channel.Name
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:        item.ID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	return dto
}

func ToOrderDTOs(orders []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for _, order := range orders {
		out = append(out, ToOrderDTO(order))
	}
	return out
}
