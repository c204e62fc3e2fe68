package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

// Adapter is the capability contract every sales channel implements. Calls are
// blocking remote operations and must never run inside a database transaction.
type Adapter interface {
	Kind() enums.ChannelKind
	Authenticate(ctx context.Context) (bool, error)
	UpdateStock(ctx context.Context, externalID string, quantity int) error
	UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) error
	CreateListing(ctx context.Context, payload json.RawMessage) (string, error)
	DeleteListing(ctx context.Context, externalID string) error
	FetchOrders(ctx context.Context, since time.Time) ([]json.RawMessage, error)
	HandleWebhook(ctx context.Context, payload json.RawMessage) error
	TestConnection(ctx context.Context) bool
}

// RateLimiter is satisfied by the redis client's fixed window limiter.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Options tune the built-in adapters.
type Options struct {
	Logger *logger.Logger
	// Latency is the simulated round trip of one remote call. Zero disables the wait.
	Latency    time.Duration
	Limiter    RateLimiter
	RateLimit  int64
	RateWindow time.Duration
	Now        func() time.Time
}

// NewAdapter returns the adapter for kind. Unknown kinds are a validation error.
func NewAdapter(kind enums.ChannelKind, credentials json.RawMessage, opts Options) (Adapter, error) {
	profile, ok := profiles[kind]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported channel %q", kind)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &simulatedAdapter{
		kind:        kind,
		profile:     profile,
		credentials: credentials,
		opts:        opts,
	}, nil
}

// AdapterError wraps a failed remote call so it is recorded on the job and retried.
func AdapterError(kind enums.ChannelKind, op string, err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeAdapter {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeAdapter, err, fmt.Sprintf("%s %s", kind, op))
}
