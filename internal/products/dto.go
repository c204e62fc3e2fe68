package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
)

// CreateProductInput captures a product and the variants created with it.
type CreateProductInput struct {
	Name        string
	Description *string
	BasePrice   decimal.Decimal
	Variants    []CreateVariantInput
}

// CreateVariantInput describes one variant. A nil MinStockThreshold takes the ledger default.
type CreateVariantInput struct {
	SKU               string
	Barcode           *string
	Price             decimal.Decimal
	InitialStock      int
	MinStockThreshold *int
}

type UpdateProductInput struct {
	Name        *string
	Description *string
	BasePrice   *decimal.Decimal
}

// UpdateVariantInput patches a variant. SKU is accepted only when unchanged.
type UpdateVariantInput struct {
	SKU     *string
	Barcode *string
	Price   *decimal.Decimal
}

// ProductDTO is the product payload returned to clients.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	Variants    []VariantDTO    `json:"variants"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type VariantDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"productId"`
	SKU       string          `json:"sku"`
	Barcode   *string         `json:"barcode,omitempty"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ProductList is one page of products, newest first.
type ProductList struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

func NewProductDTO(product *models.Product) *ProductDTO {
	if product == nil {
		return nil
	}
	dto := &ProductDTO{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		BasePrice:   product.BasePrice,
		Variants:    make([]VariantDTO, 0, len(product.Variants)),
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
	for _, variant := range product.Variants {
		dto.Variants = append(dto.Variants, NewVariantDTO(variant))
	}
	return dto
}

func NewVariantDTO(variant models.Variant) VariantDTO {
	return VariantDTO{
		ID:        variant.ID,
		ProductID: variant.ProductID,
		SKU:       variant.SKU,
		Barcode:   variant.Barcode,
		Price:     variant.Price,
		CreatedAt: variant.CreatedAt,
		UpdatedAt: variant.UpdatedAt,
	}
}
