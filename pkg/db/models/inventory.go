package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
)

// DefaultMinStockThreshold applies when an inventory record is created without an explicit threshold.
const DefaultMinStockThreshold = 5

// InventoryRecord holds the three stock counters of a single variant.
type InventoryRecord struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	VariantID         uuid.UUID  `gorm:"column:variant_id;type:uuid;not null;uniqueIndex"`
	QuantityAvailable int        `gorm:"column:quantity_available;not null;check:quantity_available >= 0"`
	QuantityReserved  int        `gorm:"column:quantity_reserved;not null;check:quantity_reserved >= 0"`
	QuantitySold      int        `gorm:"column:quantity_sold;not null;check:quantity_sold >= 0"`
	MinStockThreshold int        `gorm:"column:min_stock_threshold;not null"`
	WarehouseLocation *string    `gorm:"column:warehouse_location"`
	LastRestockedAt   *time.Time `gorm:"column:last_restocked_at"`
	StockVersion      int64      `gorm:"column:stock_version;not null;default:0"`
	Variant           *Variant   `gorm:"foreignKey:VariantID"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRecord) TableName() string { return "inventory" }

func (r *InventoryRecord) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// IsLowStock reports whether available stock is at or below the record threshold.
func (r InventoryRecord) IsLowStock() bool {
	return r.QuantityAvailable <= r.MinStockThreshold
}

// InventoryTransaction is one append-only row of stock history.
type InventoryTransaction struct {
	ID              uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	VariantID       uuid.UUID                      `gorm:"column:variant_id;type:uuid;not null;index"`
	TransactionType enums.InventoryTransactionType `gorm:"column:transaction_type;not null"`
	QuantityChange  int                            `gorm:"column:quantity_change;not null"`
	ReferenceType   *string                        `gorm:"column:reference_type"`
	ReferenceID     *string                        `gorm:"column:reference_id"`
	Notes           *string                        `gorm:"column:notes"`
	CreatedBy       *string                        `gorm:"column:created_by"`
	CreatedAt       time.Time                      `gorm:"column:created_at;autoCreateTime;index"`
}

func (InventoryTransaction) TableName() string { return "inventory_transactions" }

func (t *InventoryTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
