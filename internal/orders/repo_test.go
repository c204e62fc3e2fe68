package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/pagination"
)

func seedOrder(t *testing.T, conn *gorm.DB, channelID uuid.UUID, ext string, status enums.OrderStatus, createdAt time.Time) models.Order {
	t.Helper()
	order := models.Order{
		ChannelID:       channelID,
		ExternalOrderID: ext,
		Status:          status,
		TotalAmount:     decimal.RequireFromString("12.00"),
		CreatedAt:       createdAt,
		Items: []models.OrderItem{{
			VariantID: uuid.New(),
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("12.00"),
			Subtotal:  decimal.RequireFromString("12.00"),
		}},
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}

func seedChannel(t *testing.T, conn *gorm.DB, name string) uuid.UUID {
	t.Helper()
	channel := models.SalesChannel{Name: name, DisplayName: name, IsActive: true}
	require.NoError(t, conn.Create(&channel).Error)
	return channel.ID
}

func TestRepositoryUpdateStatusIsGuarded(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	channelID := seedChannel(t, conn, "ebay")
	order := seedOrder(t, conn, channelID, "E-1", enums.OrderStatusPending, time.Now().UTC())

	moved, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed, enums.OrderStatusShipped)
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.True(t, moved)

	locked, err := repo.LockOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, locked.Status)
	assert.Len(t, locked.Items, 1)
}

func TestRepositoryListOrdersFiltersAndCursor(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	ebay := seedChannel(t, conn, "ebay")
	etsy := seedChannel(t, conn, "etsy")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	oldest := seedOrder(t, conn, ebay, "E-1", enums.OrderStatusPending, base)
	middle := seedOrder(t, conn, ebay, "E-2", enums.OrderStatusShipped, base.Add(time.Minute))
	newest := seedOrder(t, conn, ebay, "E-3", enums.OrderStatusPending, base.Add(2*time.Minute))
	seedOrder(t, conn, etsy, "T-1", enums.OrderStatusPending, base.Add(3*time.Minute))

	page, next, err := repo.ListOrders(ctx, pagination.Params{Limit: 2}, ListFilters{ChannelID: &ebay})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, newest.ID, page[0].ID)
	assert.Equal(t, middle.ID, page[1].ID)
	require.NotNil(t, next)
	assert.Equal(t, middle.ID, next.ID)

	page, next, err = repo.ListOrders(ctx, pagination.Params{Limit: 2}, ListFilters{ChannelID: &ebay, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, oldest.ID, page[0].ID)
	assert.Nil(t, next)

	pending := enums.OrderStatusPending
	page, _, err = repo.ListOrders(ctx, pagination.Params{}, ListFilters{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestRepositoryStatusTotals(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	channelID := seedChannel(t, conn, "walmart")
	now := time.Now().UTC()
	seedOrder(t, conn, channelID, "W-1", enums.OrderStatusDelivered, now)
	seedOrder(t, conn, channelID, "W-2", enums.OrderStatusDelivered, now)
	seedOrder(t, conn, channelID, "W-3", enums.OrderStatusReturned, now)

	rows, err := repo.StatusTotals(context.Background())
	require.NoError(t, err)

	byStatus := map[enums.OrderStatus]StatusTotal{}
	for _, row := range rows {
		byStatus[row.Status] = row
	}
	require.Contains(t, byStatus, enums.OrderStatusDelivered)
	assert.EqualValues(t, 2, byStatus[enums.OrderStatusDelivered].Count)
	assert.True(t, byStatus[enums.OrderStatusDelivered].Amount.Equal(decimal.RequireFromString("24.00")))
	assert.EqualValues(t, 1, byStatus[enums.OrderStatusReturned].Count)
}
