// Package app assembles the domain services shared by the api, sync-worker
// and cron-worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/internal/inventory"
	"github.com/angelmondragon/stocksync-backend/internal/orders"
	product "github.com/angelmondragon/stocksync-backend/internal/products"
	"github.com/angelmondragon/stocksync-backend/internal/syncqueue"
	"github.com/angelmondragon/stocksync-backend/internal/webhooks"
	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/idempotency"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	pkgredis "github.com/angelmondragon/stocksync-backend/pkg/redis"
	"github.com/angelmondragon/stocksync-backend/pkg/security"
)

// Store is the redis surface the services need.
type Store interface {
	pkgredis.IdempotencyStore
	channels.RateLimiter
}

type Params struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Store  Store
	// Sync and Webhook metrics are optional.
	SyncMetrics    *metrics.SyncMetrics
	WebhookMetrics *metrics.WebhookMetrics
	// WorkerID is written to claimed sync jobs. Empty uses hostname:pid.
	WorkerID string
}

type Services struct {
	Outbox     *outbox.Service
	OutboxRepo *outbox.Repository
	Adapters   *channels.Factory
	SyncQueue  syncqueue.Service
	Channels   channels.Service
	Inventory  inventory.Service
	Orders     orders.Service
	Products   product.Service
	Webhooks   *webhooks.Service
}

// NewServices wires the domain graph. Sync queue sits at the bottom: channels,
// inventory and orders all enqueue through it.
func NewServices(params Params) (*Services, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Store == nil {
		return nil, errors.New("redis store is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := params.Config
	conn := params.DB.DB()

	sealer, err := security.NewSealer(cfg.Security.CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("credentials sealer: %w", err)
	}
	if !sealer.Enabled() {
		logg.Warn(logg.WithField(context.Background(), "component", "credentials"), "STOCKSYNC_CREDENTIALS_KEY unset; channel credentials are stored in plain text")
	}

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	adapters := channels.NewFactory(sealer, channels.Options{
		Logger:     logg,
		Latency:    cfg.Sync.SimulatedLatency,
		Limiter:    params.Store,
		RateLimit:  int64(cfg.Sync.ChannelRateLimit),
		RateWindow: cfg.Sync.ChannelRateWin,
	})

	syncSvc, err := syncqueue.NewService(syncqueue.ServiceParams{
		Repository:     syncqueue.NewRepository(conn),
		Tx:             params.DB,
		Outbox:         outboxSvc,
		Adapters:       adapters,
		Metrics:        params.SyncMetrics,
		Logger:         logg,
		MaxRetries:     cfg.Sync.MaxRetries,
		AdapterTimeout: cfg.Sync.AdapterTimeout,
		WorkerID:       params.WorkerID,
	})
	if err != nil {
		return nil, fmt.Errorf("sync queue service: %w", err)
	}

	channelSvc, err := channels.NewService(channels.NewRepository(conn), params.DB, syncSvc, adapters, sealer, logg)
	if err != nil {
		return nil, fmt.Errorf("channel service: %w", err)
	}

	inventorySvc, err := inventory.NewService(inventory.NewRepository(conn), params.DB, outboxSvc, syncSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	orderSvc, err := orders.NewService(orders.NewRepository(conn), params.DB, outboxSvc, inventorySvc, logg)
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	productSvc, err := product.NewService(product.NewRepository(conn), params.DB, inventorySvc)
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}

	guard, err := idempotency.NewGuard(params.Store, cfg.Webhooks.GuardTTL)
	if err != nil {
		return nil, fmt.Errorf("webhook guard: %w", err)
	}
	webhookSvc, err := webhooks.NewService(webhooks.ServiceParams{
		Repository:       webhooks.NewRepository(conn),
		Guard:            guard,
		Adapters:         adapters,
		Metrics:          params.WebhookMetrics,
		Logger:           logg,
		Timeout:          cfg.Webhooks.HandlerTimeout,
		RequireSignature: cfg.FeatureFlags.VerifyWebhookSig,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}

	return &Services{
		Outbox:     outboxSvc,
		OutboxRepo: outboxRepo,
		Adapters:   adapters,
		SyncQueue:  syncSvc,
		Channels:   channelSvc,
		Inventory:  inventorySvc,
		Orders:     orderSvc,
		Products:   productSvc,
		Webhooks:   webhookSvc,
	}, nil
}
