package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
)

// InventoryChangedEvent is emitted whenever a ledger operation moves stock.
type InventoryChangedEvent struct {
	VariantID         uuid.UUID                      `json:"variant_id"`
	TransactionType   enums.InventoryTransactionType `json:"transaction_type"`
	QuantityChange    int                            `json:"quantity_change"`
	QuantityAvailable int                            `json:"quantity_available"`
	QuantityReserved  int                            `json:"quantity_reserved"`
	QuantitySold      int                            `json:"quantity_sold"`
	ReferenceType     string                         `json:"reference_type,omitempty"`
	ReferenceID       string                         `json:"reference_id,omitempty"`
}

// LowStockDetectedEvent flags a variant at or below its threshold.
type LowStockDetectedEvent struct {
	VariantID         uuid.UUID `json:"variant_id"`
	SKU               string    `json:"sku,omitempty"`
	QuantityAvailable int       `json:"quantity_available"`
	MinStockThreshold int       `json:"min_stock_threshold"`
}

// OrderCreatedEvent is emitted once an order and its reservations commit.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID          `json:"order_id"`
	ChannelID       uuid.UUID          `json:"channel_id"`
	ExternalOrderID string             `json:"external_order_id"`
	TotalAmount     decimal.Decimal    `json:"total_amount"`
	Items           []OrderCreatedItem `json:"items"`
}

type OrderCreatedItem struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

// OrderStatusChangedEvent records a state machine transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	ChannelID  uuid.UUID         `json:"channel_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
}

// SyncJobDeadEvent is emitted when a sync job exhausts its retries.
type SyncJobDeadEvent struct {
	JobID        uuid.UUID        `json:"job_id"`
	ChannelID    uuid.UUID        `json:"channel_id"`
	VariantID    *uuid.UUID       `json:"variant_id,omitempty"`
	Action       enums.SyncAction `json:"action"`
	RetryCount   int              `json:"retry_count"`
	ErrorMessage string           `json:"error_message,omitempty"`
}
