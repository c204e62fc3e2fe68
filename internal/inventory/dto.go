package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
)

const (
	ReferenceOrder  = "order"
	ReferenceManual = "manual"

	systemActor = "system"

	DefaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// AdjustInput is a manual stock correction made by an operator.
type AdjustInput struct {
	VariantID uuid.UUID
	Delta     int
	Reason    string
	Actor     string
}

// InsufficientStockDetails is attached to INSUFFICIENT_STOCK errors.
type InsufficientStockDetails struct {
	VariantID uuid.UUID `json:"variantId"`
	Available int       `json:"available"`
	Requested int       `json:"requested"`
}

// RecordDTO is the API view of an inventory record.
type RecordDTO struct {
	VariantID         uuid.UUID  `json:"variantId"`
	SKU               string     `json:"sku,omitempty"`
	QuantityAvailable int        `json:"quantityAvailable"`
	QuantityReserved  int        `json:"quantityReserved"`
	QuantitySold      int        `json:"quantitySold"`
	MinStockThreshold int        `json:"minStockThreshold"`
	LowStock          bool       `json:"lowStock"`
	WarehouseLocation *string    `json:"warehouseLocation,omitempty"`
	LastRestockedAt   *time.Time `json:"lastRestockedAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// TransactionDTO is the API view of one history row.
type TransactionDTO struct {
	ID              uuid.UUID `json:"id"`
	TransactionType string    `json:"transactionType"`
	QuantityChange  int       `json:"quantityChange"`
	ReferenceType   *string   `json:"referenceType,omitempty"`
	ReferenceID     *string   `json:"referenceId,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedBy       *string   `json:"createdBy,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func ToRecordDTO(r models.InventoryRecord) RecordDTO {
	dto := RecordDTO{
		VariantID:         r.VariantID,
		QuantityAvailable: r.QuantityAvailable,
		QuantityReserved:  r.QuantityReserved,
		QuantitySold:      r.QuantitySold,
		MinStockThreshold: r.MinStockThreshold,
		LowStock:          r.IsLowStock(),
		WarehouseLocation: r.WarehouseLocation,
		LastRestockedAt:   r.LastRestockedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.Variant != nil {
		dto.SKU = r.Variant.SKU
	}
	return dto
}

func ToRecordDTOs(records []models.InventoryRecord) []RecordDTO {
	out := make([]RecordDTO, 0, len(records))
	for _, r := range records {
		out = append(out, ToRecordDTO(r))
	}
	return out
}

func ToTransactionDTOs(rows []models.InventoryTransaction) []TransactionDTO {
	out := make([]TransactionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, TransactionDTO{
			ID:              row.ID,
			TransactionType: row.TransactionType.String(),
			QuantityChange:  row.QuantityChange,
			ReferenceType:   row.ReferenceType,
			ReferenceID:     row.ReferenceID,
			Notes:           row.Notes,
			CreatedBy:       row.CreatedBy,
			CreatedAt:       row.CreatedAt,
		})
	}
	return out
}
