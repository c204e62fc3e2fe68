package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
)

// Delta is a signed change applied to the three stock counters at once.
type Delta struct {
	Available int
	Reserved  int
	Sold      int
}

// Repository persists inventory records and their append-only history.
// It deliberately exposes no way to update or delete a transaction row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.InventoryRecord) error
	FindByVariant(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error)
	LockByVariant(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error)
	ApplyDelta(ctx context.Context, variantID uuid.UUID, delta Delta, restockedAt *time.Time) (bool, error)
	UpdateThreshold(ctx context.Context, variantID uuid.UUID, threshold int) (bool, error)
	List(ctx context.Context, lowStockOnly bool) ([]models.InventoryRecord, error)
	InsertTransaction(ctx context.Context, txn *models.InventoryTransaction) error
	ListTransactions(ctx context.Context, variantID uuid.UUID, limit int) ([]models.InventoryTransaction, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, record *models.InventoryRecord) error {
	return r.DB(ctx).Create(record).Error
}

func (r *repository) FindByVariant(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.DB(ctx).
		Preload("Variant").
		Where("variant_id = ?", variantID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) LockByVariant(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.Locked(ctx).
		Where("variant_id = ?", variantID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ApplyDelta updates the counters only if none of them would go negative and
// bumps stock_version. It returns false when the guard rejected the update.
func (r *repository) ApplyDelta(ctx context.Context, variantID uuid.UUID, delta Delta, restockedAt *time.Time) (bool, error) {
	updates := map[string]any{
		"quantity_available": gorm.Expr("quantity_available + ?", delta.Available),
		"quantity_reserved":  gorm.Expr("quantity_reserved + ?", delta.Reserved),
		"quantity_sold":      gorm.Expr("quantity_sold + ?", delta.Sold),
		"stock_version":      gorm.Expr("stock_version + 1"),
		"updated_at":         time.Now().UTC(),
	}
	if restockedAt != nil {
		updates["last_restocked_at"] = restockedAt.UTC()
	}
	res := r.DB(ctx).
		Model(&models.InventoryRecord{}).
		Where("variant_id = ?", variantID).
		Where("quantity_available + ? >= 0", delta.Available).
		Where("quantity_reserved + ? >= 0", delta.Reserved).
		Where("quantity_sold + ? >= 0", delta.Sold).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateThreshold(ctx context.Context, variantID uuid.UUID, threshold int) (bool, error) {
	res := r.DB(ctx).
		Model(&models.InventoryRecord{}).
		Where("variant_id = ?", variantID).
		Updates(map[string]any{
			"min_stock_threshold": threshold,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, lowStockOnly bool) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	query := r.DB(ctx).Preload("Variant")
	if lowStockOnly {
		query = query.Where("quantity_available <= min_stock_threshold").
			Order("quantity_available ASC")
	}
	if err := query.Order("updated_at DESC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.InventoryTransaction) error {
	return r.DB(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, variantID uuid.UUID, limit int) ([]models.InventoryTransaction, error) {
	var rows []models.InventoryTransaction
	err := r.DB(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
