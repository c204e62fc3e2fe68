package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stocksync-backend/api/controllers"
	channelcontrollers "github.com/angelmondragon/stocksync-backend/api/controllers/channels"
	inventorycontrollers "github.com/angelmondragon/stocksync-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/stocksync-backend/api/controllers/orders"
	productcontrollers "github.com/angelmondragon/stocksync-backend/api/controllers/products"
	synccontrollers "github.com/angelmondragon/stocksync-backend/api/controllers/syncqueue"
	webhookcontrollers "github.com/angelmondragon/stocksync-backend/api/controllers/webhooks"
	"github.com/angelmondragon/stocksync-backend/api/middleware"
	"github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/internal/inventory"
	"github.com/angelmondragon/stocksync-backend/internal/orders"
	product "github.com/angelmondragon/stocksync-backend/internal/products"
	"github.com/angelmondragon/stocksync-backend/internal/syncqueue"
	"github.com/angelmondragon/stocksync-backend/internal/webhooks"
	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/stocksync-backend/pkg/redis"
)

// Store is the redis surface the HTTP layer needs for idempotency and rate limits.
type Store interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type webhookReceiver interface {
	Receive(ctx context.Context, input webhooks.ReceiveInput) (*webhooks.Result, error)
}

// Dependencies is everything NewRouter mounts. Metrics and HTTPMetrics may be
// nil; Tokens may be nil only when auth is switched off.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	Tokens      middleware.TokenVerifier
	Store       Store
	Health      map[string]controllers.Pinger
	Metrics     http.Handler
	HTTPMetrics *metrics.HTTPMetrics
	Inventory   inventory.Service
	Orders      orders.Service
	Channels    channels.Service
	SyncQueue   syncqueue.Service
	Products    product.Service
	Webhooks    webhookReceiver
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.AccessLog(logg, deps.HTTPMetrics),
		middleware.Recoverer(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Health))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.Webhooks.RateWindow, cfg.Webhooks.IPRateLimit)
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, deps.Store, logg))
		r.Post("/{channel}", webhookcontrollers.Receive(deps.Webhooks, cfg.Webhooks.MaxBodyBytes, logg))
	})

	adminOnly := func(next http.Handler) http.Handler { return next }
	if cfg.FeatureFlags.RequireAuth {
		adminOnly = middleware.RequireRole(logg, enums.OperatorRoleAdmin)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.FeatureFlags.RequireAuth {
			r.Use(middleware.Auth(deps.Tokens, logg))
		}
		r.Use(middleware.Idempotency(deps.Store, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productcontrollers.List(deps.Products, logg))
			r.Post("/", productcontrollers.Create(deps.Products, logg))
			r.Get("/{productId}", productcontrollers.Detail(deps.Products, logg))
			r.Patch("/{productId}", productcontrollers.Update(deps.Products, logg))
			r.With(adminOnly).Delete("/{productId}", productcontrollers.Delete(deps.Products, logg))
			r.Post("/{productId}/variants", productcontrollers.AddVariant(deps.Products, logg))
		})
		r.Route("/variants", func(r chi.Router) {
			r.Patch("/{variantId}", productcontrollers.UpdateVariant(deps.Products, logg))
			r.With(adminOnly).Delete("/{variantId}", productcontrollers.DeleteVariant(deps.Products, logg))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", inventorycontrollers.List(deps.Inventory, logg))
			r.Get("/low-stock", inventorycontrollers.LowStock(deps.Inventory, logg))
			r.Get("/{variantId}", inventorycontrollers.Detail(deps.Inventory, logg))
			r.Get("/{variantId}/availability", inventorycontrollers.Availability(deps.Inventory, logg))
			r.Get("/{variantId}/transactions", inventorycontrollers.Transactions(deps.Inventory, logg))
			r.Post("/{variantId}/adjust", inventorycontrollers.Adjust(deps.Inventory, logg))
			r.Put("/{variantId}/threshold", inventorycontrollers.UpdateThreshold(deps.Inventory, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/stats", ordercontrollers.Stats(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", channelcontrollers.List(deps.Channels, logg))
			r.Get("/{channelId}", channelcontrollers.Detail(deps.Channels, logg))
			r.Post("/{channelId}/test", channelcontrollers.TestConnection(deps.Channels, logg))
			r.Post("/{channelId}/stock", channelcontrollers.PushStock(deps.Channels, logg))
			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", channelcontrollers.Create(deps.Channels, logg))
				r.Patch("/{channelId}", channelcontrollers.Update(deps.Channels, logg))
				r.Delete("/{channelId}", channelcontrollers.Delete(deps.Channels, logg))
			})
		})

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", channelcontrollers.ListListings(deps.Channels, logg))
			r.Post("/", channelcontrollers.CreateListing(deps.Channels, logg))
			r.Get("/{listingId}", channelcontrollers.DetailListing(deps.Channels, logg))
			r.Patch("/{listingId}", channelcontrollers.UpdateListing(deps.Channels, logg))
			r.Delete("/{listingId}", channelcontrollers.DeleteListing(deps.Channels, logg))
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", synccontrollers.Status(deps.SyncQueue, logg))
			r.Get("/dead", synccontrollers.Dead(deps.SyncQueue, logg))
			r.Post("/process", synccontrollers.Process(deps.SyncQueue, logg))
			r.Post("/retry", synccontrollers.Retry(deps.SyncQueue, logg))
			r.Post("/resync", synccontrollers.Resync(deps.SyncQueue, logg))
			r.With(adminOnly).Post("/cleanup", synccontrollers.Cleanup(deps.SyncQueue, logg))
		})
	})

	return r
}
