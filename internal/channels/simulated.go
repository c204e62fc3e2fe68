package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
)

// profile captures what differs between marketplaces as far as the core cares.
type profile struct {
	requiredCredentials []string
	listingLatency      int
}

var profiles = map[enums.ChannelKind]profile{
	enums.ChannelShopify:      {requiredCredentials: []string{"shopDomain", "accessToken"}, listingLatency: 2},
	enums.ChannelMercadoLibre: {requiredCredentials: []string{"accessToken"}, listingLatency: 2},
	enums.ChannelAmazon:       {requiredCredentials: []string{"sellingPartnerId", "marketplaceId"}, listingLatency: 3},
	enums.ChannelShein:        {requiredCredentials: []string{"appKey", "appSecret"}, listingLatency: 2},
}

var errRateLimited = errors.New("channel rate limit exceeded")

// simulatedAdapter stands in for a marketplace API. It validates inputs the
// way a remote would, waits a bounded latency and issues deterministic ids.
type simulatedAdapter struct {
	kind        enums.ChannelKind
	profile     profile
	credentials json.RawMessage
	opts        Options
}

type listingPayload struct {
	ListingID string `json:"listingId"`
	Product   struct {
		Name string `json:"name"`
	} `json:"product"`
	Variant struct {
		SKU       string          `json:"sku"`
		Price     decimal.Decimal `json:"price"`
		Inventory int             `json:"inventory"`
	} `json:"variant"`
}

func (a *simulatedAdapter) Kind() enums.ChannelKind {
	return a.kind
}

func (a *simulatedAdapter) Authenticate(ctx context.Context) (bool, error) {
	if err := a.call(ctx, "authenticate", 1); err != nil {
		return false, err
	}
	fields := map[string]any{}
	if len(a.credentials) > 0 {
		if err := json.Unmarshal(a.credentials, &fields); err != nil {
			return false, AdapterError(a.kind, "authenticate", fmt.Errorf("credentials are not a json object: %w", err))
		}
	}
	for _, key := range a.profile.requiredCredentials {
		value, ok := fields[key].(string)
		if !ok || strings.TrimSpace(value) == "" {
			a.log(ctx, "authenticate", map[string]any{"missing_credential": key})
			return false, nil
		}
	}
	return true, nil
}

func (a *simulatedAdapter) UpdateStock(ctx context.Context, externalID string, quantity int) error {
	if strings.TrimSpace(externalID) == "" {
		return AdapterError(a.kind, "update stock", errors.New("external id required"))
	}
	if quantity < 0 {
		return AdapterError(a.kind, "update stock", errors.New("quantity must not be negative"))
	}
	if err := a.call(ctx, "update stock", 1); err != nil {
		return err
	}
	a.log(ctx, "update stock", map[string]any{"external_id": externalID, "quantity": quantity})
	return nil
}

func (a *simulatedAdapter) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) error {
	if strings.TrimSpace(externalID) == "" {
		return AdapterError(a.kind, "update price", errors.New("external id required"))
	}
	if !price.IsPositive() {
		return AdapterError(a.kind, "update price", errors.New("price must be positive"))
	}
	if err := a.call(ctx, "update price", 1); err != nil {
		return err
	}
	a.log(ctx, "update price", map[string]any{"external_id": externalID, "price": price.StringFixed(2)})
	return nil
}

func (a *simulatedAdapter) CreateListing(ctx context.Context, payload json.RawMessage) (string, error) {
	var listing listingPayload
	if err := json.Unmarshal(payload, &listing); err != nil {
		return "", AdapterError(a.kind, "create listing", fmt.Errorf("decode payload: %w", err))
	}
	sku := strings.TrimSpace(listing.Variant.SKU)
	if sku == "" {
		return "", AdapterError(a.kind, "create listing", errors.New("variant sku required"))
	}
	if err := a.call(ctx, "create listing", a.profile.listingLatency); err != nil {
		return "", err
	}
	externalID := fmt.Sprintf("%s_%s_%d", a.kind, sku, a.opts.Now().UnixNano())
	a.log(ctx, "create listing", map[string]any{"external_id": externalID, "sku": sku, "inventory": listing.Variant.Inventory})
	return externalID, nil
}

func (a *simulatedAdapter) DeleteListing(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return AdapterError(a.kind, "delete listing", errors.New("external id required"))
	}
	if err := a.call(ctx, "delete listing", 1); err != nil {
		return err
	}
	a.log(ctx, "delete listing", map[string]any{"external_id": externalID})
	return nil
}

func (a *simulatedAdapter) FetchOrders(ctx context.Context, since time.Time) ([]json.RawMessage, error) {
	if err := a.call(ctx, "fetch orders", 1); err != nil {
		return nil, err
	}
	a.log(ctx, "fetch orders", map[string]any{"since": since.UTC().Format(time.RFC3339)})
	return []json.RawMessage{}, nil
}

func (a *simulatedAdapter) HandleWebhook(ctx context.Context, payload json.RawMessage) error {
	body := map[string]any{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return AdapterError(a.kind, "handle webhook", fmt.Errorf("payload is not a json object: %w", err))
	}
	if err := a.call(ctx, "handle webhook", 1); err != nil {
		return err
	}
	fields := map[string]any{}
	for _, key := range []string{"topic", "type", "event"} {
		if v, ok := body[key]; ok {
			fields[key] = v
		}
	}
	a.log(ctx, "handle webhook", fields)
	return nil
}

func (a *simulatedAdapter) TestConnection(ctx context.Context) bool {
	ok, err := a.Authenticate(ctx)
	if err != nil {
		a.opts.Logger.Warn(a.opts.Logger.WithChannel(ctx, a.kind.String()), "connection test failed: "+err.Error())
		return false
	}
	return ok
}

// call applies the per-channel rate limit and waits the simulated latency.
func (a *simulatedAdapter) call(ctx context.Context, op string, weight int) error {
	if a.opts.Limiter != nil && a.opts.RateLimit > 0 {
		allowed, _, err := a.opts.Limiter.FixedWindowAllow(ctx, "channel:"+a.kind.String(), a.opts.RateLimit, a.opts.RateWindow)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "channel rate limiter")
		}
		if !allowed {
			return AdapterError(a.kind, op, errRateLimited)
		}
	}
	if a.opts.Latency <= 0 {
		return nil
	}
	timer := time.NewTimer(a.opts.Latency * time.Duration(weight))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return AdapterError(a.kind, op, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (a *simulatedAdapter) log(ctx context.Context, op string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["channel"] = a.kind.String()
	fields["operation"] = op
	a.opts.Logger.Info(a.opts.Logger.WithFields(ctx, fields), "channel call")
}
