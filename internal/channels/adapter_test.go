package channels

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
)

type denyLimiter struct {
	allowed bool
	scopes  []string
}

func (l *denyLimiter) FixedWindowAllow(_ context.Context, scope string, _ int64, _ time.Duration) (bool, int64, error) {
	l.scopes = append(l.scopes, scope)
	return l.allowed, 1, nil
}

func fixedNow() time.Time { return time.Unix(1700000000, 42) }

func TestNewAdapterRejectsUnknownKind(t *testing.T) {
	_, err := NewAdapter(enums.ChannelKind("etsy"), nil, Options{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAuthenticateRequiresProfileCredentials(t *testing.T) {
	ctx := context.Background()

	missing, err := NewAdapter(enums.ChannelShopify, json.RawMessage(`{"shopDomain":"demo.myshopify.com"}`), Options{})
	require.NoError(t, err)
	ok, err := missing.Authenticate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, missing.TestConnection(ctx))

	complete, err := NewAdapter(enums.ChannelShopify, json.RawMessage(`{"shopDomain":"demo.myshopify.com","accessToken":"shpat"}`), Options{})
	require.NoError(t, err)
	ok, err = complete.Authenticate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, complete.TestConnection(ctx))
}

func TestCreateListingIssuesDeterministicID(t *testing.T) {
	adapter, err := NewAdapter(enums.ChannelAmazon, nil, Options{Now: fixedNow})
	require.NoError(t, err)

	id, err := adapter.CreateListing(context.Background(), json.RawMessage(`{"variant":{"sku":"TEE-M","inventory":4}}`))
	require.NoError(t, err)
	assert.Equal(t, "amazon_TEE-M_1700000000000000042", id)

	_, err = adapter.CreateListing(context.Background(), json.RawMessage(`{"variant":{}}`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAdapter))
}

func TestAdapterValidatesArguments(t *testing.T) {
	ctx := context.Background()
	adapter, err := NewAdapter(enums.ChannelShein, nil, Options{})
	require.NoError(t, err)

	assert.Error(t, adapter.UpdateStock(ctx, "", 1))
	assert.Error(t, adapter.UpdateStock(ctx, "ext", -1))
	assert.NoError(t, adapter.UpdateStock(ctx, "ext", 0))
	assert.Error(t, adapter.UpdatePrice(ctx, "ext", decimal.Zero))
	assert.NoError(t, adapter.UpdatePrice(ctx, "ext", decimal.RequireFromString("9.99")))
	assert.Error(t, adapter.DeleteListing(ctx, " "))
	assert.Error(t, adapter.HandleWebhook(ctx, json.RawMessage(`[1,2]`)))
	assert.NoError(t, adapter.HandleWebhook(ctx, json.RawMessage(`{"topic":"orders/create"}`)))

	orders, err := adapter.FetchOrders(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestAdapterRateLimitIsScopedPerChannel(t *testing.T) {
	limiter := &denyLimiter{allowed: false}
	adapter, err := NewAdapter(enums.ChannelMercadoLibre, nil, Options{Limiter: limiter, RateLimit: 10, RateWindow: time.Second})
	require.NoError(t, err)

	err = adapter.UpdateStock(context.Background(), "MLA-1", 3)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAdapter))
	assert.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, []string{"channel:mercadolibre"}, limiter.scopes)
}

func TestAdapterLatencyHonoursContext(t *testing.T) {
	adapter, err := NewAdapter(enums.ChannelShopify, nil, Options{Latency: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = adapter.DeleteListing(ctx, "gid-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFactoryOpensCredentials(t *testing.T) {
	opener := openerFunc(func(stored json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"accessToken":"opened"}`), nil
	})
	factory := NewFactory(opener, Options{})

	adapter, err := factory.ForChannel(channelFixture("mercadolibre", json.RawMessage(`"sealed:v1:abc"`)))
	require.NoError(t, err)
	ok, err := adapter.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = factory.ForChannel(channelFixture("etsy", nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
