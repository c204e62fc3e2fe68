package inventory

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

	"github.com/angelmondragon/stocksync-backend/api/middleware"
	internalinventory "github.com/angelmondragon/stocksync-backend/internal/inventory"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

type stubService struct {
	internalinventory.Service
	adjusted  *internalinventory.AdjustInput
	threshold int
	limit     int
	qty       int
}

func (s *stubService) AdjustStock(_ context.Context, input internalinventory.AdjustInput) (*models.InventoryRecord, error) {
	s.adjusted = &input
	return &models.InventoryRecord{VariantID: input.VariantID, QuantityAvailable: 10 + input.Delta}, nil
}

func (s *stubService) UpdateMinStockThreshold(_ context.Context, id uuid.UUID, threshold int) (*models.InventoryRecord, error) {
	s.threshold = threshold
	return &models.InventoryRecord{VariantID: id, MinStockThreshold: threshold}, nil
}

func (s *stubService) GetTransactionHistory(_ context.Context, _ uuid.UUID, limit int) ([]models.InventoryTransaction, error) {
	s.limit = limit
	return nil, nil
}

func (s *stubService) CheckAvailability(_ context.Context, _ uuid.UUID, qty int) (bool, error) {
	s.qty = qty
	return qty <= 5, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func withVariant(req *http.Request, id uuid.UUID) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("variantId", id.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestAdjustAttributesOperator(t *testing.T) {
	svc := &stubService{}
	variantID := uuid.New()
	req := withVariant(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantityChange":-3,"reason":" damaged "}`)), variantID)
	req = req.WithContext(middleware.WithOperator(req.Context(), "ops-7", "staff"))

	rec := httptest.NewRecorder()
	Adjust(svc, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.adjusted)
	assert.Equal(t, variantID, svc.adjusted.VariantID)
	assert.Equal(t, -3, svc.adjusted.Delta)
	assert.Equal(t, "damaged", svc.adjusted.Reason)
	assert.Equal(t, "ops-7", svc.adjusted.Actor)
	assert.Contains(t, rec.Body.String(), `"quantityAvailable":7`)
}

func TestAdjustRejectsZeroDelta(t *testing.T) {
	svc := &stubService{}
	req := withVariant(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantityChange":0,"reason":"noop"}`)), uuid.New())
	rec := httptest.NewRecorder()
	Adjust(svc, testLogger()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.adjusted)
}

func TestUpdateThreshold(t *testing.T) {
	svc := &stubService{}

	rec := httptest.NewRecorder()
	UpdateThreshold(svc, testLogger()).ServeHTTP(rec, withVariant(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{}`)), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	UpdateThreshold(svc, testLogger()).ServeHTTP(rec, withVariant(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"minStockThreshold":0}`)), uuid.New()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, svc.threshold)
}

func TestTransactionsLimit(t *testing.T) {
	svc := &stubService{}

	rec := httptest.NewRecorder()
	Transactions(svc, testLogger()).ServeHTTP(rec, withVariant(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, internalinventory.DefaultHistoryLimit, svc.limit)
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	rec = httptest.NewRecorder()
	Transactions(svc, testLogger()).ServeHTTP(rec, withVariant(httptest.NewRequest(http.MethodGet, "/?limit=9999", nil), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailability(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	Availability(svc, testLogger()).ServeHTTP(rec, withVariant(httptest.NewRequest(http.MethodGet, "/?quantity=6", nil), uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, svc.qty)
	assert.Contains(t, rec.Body.String(), `"available":false`)
}
