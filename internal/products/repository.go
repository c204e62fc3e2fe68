package product

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/pagination"
)

// Repository wires together product and variant persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Omit("Variants").Create(product).Error
}

func (r *Repository) UpdateProduct(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	return res.RowsAffected == 1, res.Error
}

// FindProduct loads the product with its variants ordered by sku.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("sku ASC") }).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts pages products newest first.
func (r *Repository) ListProducts(ctx context.Context, params pagination.Params, cursor *pagination.Cursor) ([]models.Product, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("sku ASC") })

	var products []models.Product
	if err := pagination.Newest(query, cursor, limit).Find(&products).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(products, limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

func (r *Repository) CreateVariant(ctx context.Context, variant *models.Variant) error {
	return r.db.WithContext(ctx).Create(variant).Error
}

func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *Repository) UpdateVariant(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Variant{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repository) VariantIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Variant{}).Where("product_id = ?", productID).Pluck("id", &ids).Error
	return ids, err
}

// VariantReferences counts the rows that pin variants in place: listings,
// order lines and ledger history.
func (r *Repository) VariantReferences(ctx context.Context, variantIDs []uuid.UUID) (int64, error) {
	if len(variantIDs) == 0 {
		return 0, nil
	}
	var total int64
	for _, model := range []any{&models.ChannelListing{}, &models.OrderItem{}, &models.InventoryTransaction{}} {
		var n int64
		if err := r.db.WithContext(ctx).Model(model).Where("variant_id IN ?", variantIDs).Count(&n).Error; err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// HeldStock sums the counters of the variants' inventory records.
func (r *Repository) HeldStock(ctx context.Context, variantIDs []uuid.UUID) (int64, error) {
	if len(variantIDs) == 0 {
		return 0, nil
	}
	var held int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Select("COALESCE(SUM(quantity_available + quantity_reserved + quantity_sold), 0)").
		Where("variant_id IN ?", variantIDs).
		Scan(&held).Error
	return held, err
}

// DeleteVariants removes the variants together with their empty inventory records.
func (r *Repository) DeleteVariants(ctx context.Context, variantIDs []uuid.UUID) error {
	if len(variantIDs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("variant_id IN ?", variantIDs).Delete(&models.InventoryRecord{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id IN ?", variantIDs).Delete(&models.Variant{}).Error
}
