package products

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/api/responses"
	"github.com/angelmondragon/stocksync-backend/api/validators"
	product "github.com/angelmondragon/stocksync-backend/internal/products"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

type variantRequest struct {
	SKU               string          `json:"sku" validate:"required,max=100"`
	Barcode           *string         `json:"barcode,omitempty" validate:"omitempty,max=100"`
	Price             decimal.Decimal `json:"price"`
	InitialStock      int             `json:"initialStock" validate:"gte=0"`
	MinStockThreshold *int            `json:"minStockThreshold,omitempty" validate:"omitempty,gte=0"`
}

type createProductRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description *string          `json:"description,omitempty"`
	BasePrice   decimal.Decimal  `json:"basePrice"`
	Variants    []variantRequest `json:"variants" validate:"dive"`
}

type updateProductRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string          `json:"description,omitempty"`
	BasePrice   *decimal.Decimal `json:"basePrice,omitempty"`
}

type updateVariantRequest struct {
	SKU     *string          `json:"sku,omitempty" validate:"omitempty,max=100"`
	Barcode *string          `json:"barcode,omitempty" validate:"omitempty,max=100"`
	Price   *decimal.Decimal `json:"price,omitempty"`
}

func (v variantRequest) toInput() product.CreateVariantInput {
	return product.CreateVariantInput{
		SKU:               strings.TrimSpace(v.SKU),
		Barcode:           v.Barcode,
		Price:             v.Price,
		InitialStock:      v.InitialStock,
		MinStockThreshold: v.MinStockThreshold,
	}
}

func Create(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createProductRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := product.CreateProductInput{
			Name:        validators.CleanText(body.Name, 255),
			Description: body.Description,
			BasePrice:   body.BasePrice,
		}
		for _, v := range body.Variants {
			input.Variants = append(input.Variants, v.toInput())
		}
		dto, err := svc.CreateProduct(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, dto)
	}
}

func List(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := validators.Page(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListProducts(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Detail(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func Update(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateProductRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.UpdateProduct(r.Context(), productID, product.UpdateProductInput{
			Name:        body.Name,
			Description: body.Description,
			BasePrice:   body.BasePrice,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// Delete refuses while any variant is listed, ordered, or holds stock.
func Delete(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteProduct(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AddVariant creates a variant and its inventory record in one transaction.
func AddVariant(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body variantRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.AddVariant(r.Context(), productID, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, dto)
	}
}

func UpdateVariant(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateVariantRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.UpdateVariant(r.Context(), variantID, product.UpdateVariantInput{
			SKU:     body.SKU,
			Barcode: body.Barcode,
			Price:   body.Price,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func DeleteVariant(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteVariant(r.Context(), variantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
