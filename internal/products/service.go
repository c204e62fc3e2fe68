package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/pagination"
)

// Service exposes catalog operations. Products only exist to own variants;
// every variant gets its inventory record in the same transaction.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, params pagination.Params) (*ProductList, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
	AddVariant(ctx context.Context, productID uuid.UUID, input CreateVariantInput) (*VariantDTO, error)
	UpdateVariant(ctx context.Context, variantID uuid.UUID, input UpdateVariantInput) (*VariantDTO, error)
	DeleteVariant(ctx context.Context, variantID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// inventoryEnsurer creates the ledger row for a new variant inside the caller's transaction.
type inventoryEnsurer interface {
	EnsureInventory(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, initial, threshold int) (*models.InventoryRecord, error)
}

type service struct {
	repo      *Repository
	tx        txRunner
	inventory inventoryEnsurer
}

// NewService constructs a product service instance.
func NewService(repo *Repository, tx txRunner, inventory inventoryEnsurer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &service{repo: repo, tx: tx, inventory: inventory}, nil
}

// CreateProduct creates the product, its variants and their inventory records.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.BasePrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base price cannot be negative")
	}
	seen := map[string]struct{}{}
	for i, variant := range input.Variants {
		if err := validateVariant(variant); err != nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "variant %d: %s", i, err.Error())
		}
		sku := strings.TrimSpace(variant.SKU)
		if _, dup := seen[sku]; dup {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "duplicate sku %q", sku)
		}
		seen[sku] = struct{}{}
	}

	product := &models.Product{
		Name:        name,
		Description: input.Description,
		BasePrice:   input.BasePrice.Round(2),
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.CreateProduct(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
		}
		for _, variant := range input.Variants {
			if _, err := s.createVariant(ctx, tx, product.ID, variant); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		return nil, mapLoadError(err, "product not found", "load product")
	}
	return NewProductDTO(product), nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params) (*ProductList, error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	products, next, err := s.repo.ListProducts(ctx, params, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	list := &ProductList{Products: make([]ProductDTO, 0, len(products))}
	for i := range products {
		list.Products = append(list.Products, *NewProductDTO(&products[i]))
	}
	if next != nil {
		list.NextCursor = next.Encode()
	}
	return list, nil
}

func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = input.Description
	}
	if input.BasePrice != nil {
		if input.BasePrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "base price cannot be negative")
		}
		updates["base_price"] = input.BasePrice.Round(2)
	}
	if len(updates) > 0 {
		found, err := s.repo.UpdateProduct(ctx, productID, updates)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
		}
		if !found {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
	}
	return s.GetProduct(ctx, productID)
}

// DeleteProduct removes the product and its variants. It is refused while any
// variant is listed, ordered, has ledger history or still holds stock.
func (s *service) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindProduct(ctx, productID); err != nil {
			return mapLoadError(err, "product not found", "load product")
		}
		variantIDs, err := txRepo.VariantIDs(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
		}
		if err := ensureUnreferenced(ctx, txRepo, variantIDs); err != nil {
			return err
		}
		if err := txRepo.DeleteVariants(ctx, variantIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete variants")
		}
		if _, err := txRepo.DeleteProduct(ctx, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
		}
		return nil
	})
}

func (s *service) AddVariant(ctx context.Context, productID uuid.UUID, input CreateVariantInput) (*VariantDTO, error) {
	if err := validateVariant(input); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	var created *models.Variant
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).FindProduct(ctx, productID); err != nil {
			return mapLoadError(err, "product not found", "load product")
		}
		var err error
		created, err = s.createVariant(ctx, tx, productID, input)
		return err
	}); err != nil {
		return nil, err
	}
	dto := NewVariantDTO(*created)
	return &dto, nil
}

func (s *service) UpdateVariant(ctx context.Context, variantID uuid.UUID, input UpdateVariantInput) (*VariantDTO, error) {
	variant, err := s.repo.FindVariant(ctx, variantID)
	if err != nil {
		return nil, mapLoadError(err, "variant not found", "load variant")
	}

	updates := map[string]any{}
	if input.SKU != nil && strings.TrimSpace(*input.SKU) != variant.SKU {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku cannot be changed once assigned")
	}
	if input.Barcode != nil {
		barcode := strings.TrimSpace(*input.Barcode)
		if barcode == "" {
			updates["barcode"] = nil
		} else {
			updates["barcode"] = barcode
		}
	}
	if input.Price != nil {
		if !input.Price.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
		}
		updates["price"] = input.Price.Round(2)
	}
	if len(updates) > 0 {
		if err := s.repo.UpdateVariant(ctx, variantID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update variant")
		}
		variant, err = s.repo.FindVariant(ctx, variantID)
		if err != nil {
			return nil, mapLoadError(err, "variant not found", "load variant")
		}
	}
	dto := NewVariantDTO(*variant)
	return &dto, nil
}

func (s *service) DeleteVariant(ctx context.Context, variantID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindVariant(ctx, variantID); err != nil {
			return mapLoadError(err, "variant not found", "load variant")
		}
		ids := []uuid.UUID{variantID}
		if err := ensureUnreferenced(ctx, txRepo, ids); err != nil {
			return err
		}
		if err := txRepo.DeleteVariants(ctx, ids); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete variant")
		}
		return nil
	})
}

func (s *service) createVariant(ctx context.Context, tx *gorm.DB, productID uuid.UUID, input CreateVariantInput) (*models.Variant, error) {
	variant := &models.Variant{
		ProductID: productID,
		SKU:       strings.TrimSpace(input.SKU),
		Barcode:   input.Barcode,
		Price:     input.Price.Round(2),
	}
	if err := s.repo.WithTx(tx).CreateVariant(ctx, variant); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "sku %q already exists", variant.SKU)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert variant")
	}
	threshold := models.DefaultMinStockThreshold
	if input.MinStockThreshold != nil {
		threshold = *input.MinStockThreshold
	}
	if _, err := s.inventory.EnsureInventory(ctx, tx, variant.ID, input.InitialStock, threshold); err != nil {
		return nil, err
	}
	return variant, nil
}

func ensureUnreferenced(ctx context.Context, txRepo *Repository, variantIDs []uuid.UUID) error {
	refs, err := txRepo.VariantReferences(ctx, variantIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count variant references")
	}
	held, err := txRepo.HeldStock(ctx, variantIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum variant stock")
	}
	if refs > 0 || held > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "variant is referenced by listings, orders or inventory").
			WithDetails(map[string]any{"references": refs, "stock": held})
	}
	return nil
}

func validateVariant(input CreateVariantInput) error {
	if strings.TrimSpace(input.SKU) == "" {
		return fmt.Errorf("sku is required")
	}
	if !input.Price.IsPositive() {
		return fmt.Errorf("price must be greater than zero")
	}
	if input.InitialStock < 0 {
		return fmt.Errorf("initial stock cannot be negative")
	}
	if input.MinStockThreshold != nil && *input.MinStockThreshold < 0 {
		return fmt.Errorf("min stock threshold cannot be negative")
	}
	return nil
}

func mapLoadError(err error, notFound, op string) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
