package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/internal/orders"
	product "github.com/angelmondragon/stocksync-backend/internal/products"
	"github.com/angelmondragon/stocksync-backend/internal/webhooks"
	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return true, 1, nil
}

func newTestServices(t *testing.T) (*Services, *gorm.DB) {
	t.Helper()
	dsn := "file:app_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	cfg := &config.Config{
		Sync:     config.SyncConfig{MaxRetries: 5, AdapterTimeout: time.Second, ChannelRateLimit: 100, ChannelRateWin: time.Minute},
		Webhooks: config.WebhookConfig{HandlerTimeout: time.Second, GuardTTL: time.Minute},
	}
	svcs, err := NewServices(Params{
		Config: cfg,
		DB:     db.NewFromGorm(conn),
		Store:  &memoryStore{data: map[string]string{}},
	})
	require.NoError(t, err)
	return svcs, conn
}

func TestNewServicesRequiresDependencies(t *testing.T) {
	_, err := NewServices(Params{})
	require.Error(t, err)
}

func TestOrderFlowAcrossServices(t *testing.T) {
	svcs, conn := newTestServices(t)
	ctx := context.Background()

	created, err := svcs.Products.CreateProduct(ctx, product.CreateProductInput{
		Name:      "Mug",
		BasePrice: decimal.RequireFromString("9.00"),
		Variants:  []product.CreateVariantInput{{SKU: "MUG-1", Price: decimal.RequireFromString("9.00"), InitialStock: 10}},
	})
	require.NoError(t, err)
	require.Len(t, created.Variants, 1)
	variantID := created.Variants[0].ID

	creds, _ := json.Marshal(map[string]string{"shopDomain": "demo.myshopify.com", "accessToken": "tok"})
	channel, err := svcs.Channels.CreateChannel(ctx, channels.CreateChannelInput{Name: "shopify", DisplayName: "Shopify", APICredentials: creds})
	require.NoError(t, err)

	_, job, err := svcs.Channels.CreateListing(ctx, channels.CreateListingInput{VariantID: variantID, ChannelID: channel.ID, Price: decimal.RequireFromString("12.00")})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, enums.SyncActionCreateListing, job.Action)

	results, err := svcs.SyncQueue.ProcessSyncQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, results[0].Error)

	order, err := svcs.Orders.CreateOrder(ctx, orders.CreateOrderInput{
		ChannelID:       channel.ID,
		ExternalOrderID: "SHOP-1001",
		TotalAmount:     decimal.RequireFromString("36.00"),
		Items:           []orders.CreateOrderItemInput{{VariantID: variantID, Quantity: 3, UnitPrice: decimal.RequireFromString("12.00")}},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	record, err := svcs.Inventory.GetInventory(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 7, record.QuantityAvailable)
	assert.Equal(t, 3, record.QuantityReserved)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderCreated).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestWebhookDedupesAcrossDeliveries(t *testing.T) {
	svcs, _ := newTestServices(t)
	ctx := context.Background()

	_, err := svcs.Channels.CreateChannel(ctx, channels.CreateChannelInput{Name: "amazon", DisplayName: "Amazon"})
	require.NoError(t, err)

	payload := []byte(`{"id":"amz-evt-1","type":"ORDER_CHANGE"}`)
	first, err := svcs.Webhooks.Receive(ctx, webhooks.ReceiveInput{Channel: "amazon", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, webhooks.StatusProcessed, first.Status)

	second, err := svcs.Webhooks.Receive(ctx, webhooks.ReceiveInput{Channel: "amazon", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, webhooks.StatusAlreadyProcessed, second.Status)
	assert.Equal(t, "amz-evt-1", second.WebhookID)
}
