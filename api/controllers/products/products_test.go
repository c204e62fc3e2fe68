package products

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	product "github.com/angelmondragon/stocksync-backend/internal/products"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

type stubService struct {
	product.Service
	created   *product.CreateProductInput
	deleteErr error
	deleted   bool
}

func (s *stubService) CreateProduct(_ context.Context, input product.CreateProductInput) (*product.ProductDTO, error) {
	s.created = &input
	return &product.ProductDTO{ID: uuid.New(), Name: input.Name, BasePrice: input.BasePrice, Variants: []product.VariantDTO{}}, nil
}

func (s *stubService) DeleteVariant(context.Context, uuid.UUID) error {
	s.deleted = s.deleteErr == nil
	return s.deleteErr
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func TestCreateProduct(t *testing.T) {
	svc := &stubService{}
	body := `{"name":"Tee","basePrice":"12.00","variants":[{"sku":" TEE-S ","price":"12.00","initialStock":5},{"sku":"TEE-M","price":"12.00","initialStock":0,"minStockThreshold":2}]}`

	rec := httptest.NewRecorder()
	Create(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	require.Len(t, svc.created.Variants, 2)
	assert.Equal(t, "TEE-S", svc.created.Variants[0].SKU)
	assert.Equal(t, 5, svc.created.Variants[0].InitialStock)
	assert.Nil(t, svc.created.Variants[0].MinStockThreshold)
	require.NotNil(t, svc.created.Variants[1].MinStockThreshold)
	assert.Equal(t, 2, *svc.created.Variants[1].MinStockThreshold)
}

func TestCreateProductRejectsNegativeStock(t *testing.T) {
	svc := &stubService{}
	body := `{"name":"Tee","basePrice":"12.00","variants":[{"sku":"TEE-S","price":"12.00","initialStock":-1}]}`

	rec := httptest.NewRecorder()
	Create(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.created)
}

func TestDeleteVariant(t *testing.T) {
	request := func() *http.Request {
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("variantId", uuid.NewString())
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	}

	svc := &stubService{}
	rec := httptest.NewRecorder()
	DeleteVariant(svc, testLogger()).ServeHTTP(rec, request())
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, svc.deleted)

	svc = &stubService{deleteErr: pkgerrors.New(pkgerrors.CodeConflict, "variant still holds stock")}
	rec = httptest.NewRecorder()
	DeleteVariant(svc, testLogger()).ServeHTTP(rec, request())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "variant still holds stock")
}
