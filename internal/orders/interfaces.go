package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindChannel(ctx context.Context, channelID uuid.UUID) (*models.SalesChannel, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error)
	ListOrders(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error)
	StatusTotals(ctx context.Context) ([]StatusTotal, error)
}

// LedgerOperator is the slice of the inventory ledger that order transitions drive.
// Every call joins the caller's transaction.
type LedgerOperator interface {
	ReserveStock(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error)
	ConfirmSale(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error)
	ReleaseReservation(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error)
	ProcessReturn(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error)
}
