package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/idempotency"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
	"github.com/angelmondragon/stocksync-backend/pkg/security"
)

// webhookAdapter only implements HandleWebhook; any other call panics.
type webhookAdapter struct {
	channels.Adapter
	mu       sync.Mutex
	failWith error
	block    bool
	payloads []json.RawMessage
}

func (a *webhookAdapter) HandleWebhook(ctx context.Context, payload json.RawMessage) error {
	if a.block {
		<-ctx.Done()
		return ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return a.failWith
	}
	a.payloads = append(a.payloads, payload)
	return nil
}

func (a *webhookAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.payloads)
}

type stubProvider struct {
	adapter channels.Adapter
}

func (p stubProvider) ForChannel(models.SalesChannel) (channels.Adapter, error) {
	return p.adapter, nil
}

type memoryStore struct {
	mu   sync.Mutex
	held map[string]bool
}

func (m *memoryStore) Get(context.Context, string) (string, error) { return "", nil }

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "ss:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.held, k)
	}
	return nil
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	adapter *webhookAdapter
	store   *memoryStore
	channel models.SalesChannel
}

func newFixture(t *testing.T, config string, tweak func(*ServiceParams)) *fixture {
	t.Helper()
	dsn := "file:webhooks_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	channel := models.SalesChannel{Name: "shopify", DisplayName: "Shopify", IsActive: true}
	if config != "" {
		channel.Config = json.RawMessage(config)
	}
	require.NoError(t, conn.Create(&channel).Error)

	store := &memoryStore{held: map[string]bool{}}
	guard, err := idempotency.NewGuard(store, time.Minute)
	require.NoError(t, err)

	adapter := &webhookAdapter{}
	params := ServiceParams{
		Repository: NewRepository(conn),
		Guard:      guard,
		Adapters:   stubProvider{adapter: adapter},
		Metrics:    metrics.NewWebhookMetrics(prometheus.NewRegistry()),
		Now:        func() time.Time { return time.UnixMilli(1700000000000).UTC() },
	}
	if tweak != nil {
		tweak(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc, adapter: adapter, store: store, channel: channel}
}

func (f *fixture) processedCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.ProcessedWebhook{}).Count(&n).Error)
	return n
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
}

func TestReceiveProcessesOnceAndDedupesRedelivery(t *testing.T) {
	f := newFixture(t, "", nil)
	ctx := context.Background()
	payload := []byte(`{"id":"evt_123","topic":"orders/create"}`)

	first, err := f.svc.Receive(ctx, ReceiveInput{Channel: "Shopify", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, first.Status)
	assert.Equal(t, "evt_123", first.WebhookID)
	assert.False(t, first.Synthesized)

	second, err := f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyProcessed, second.Status)

	assert.Equal(t, 1, f.adapter.calls())
	assert.EqualValues(t, 1, f.processedCount(t))
	assert.Empty(t, f.store.held, "guard released after processing")
}

func TestReceiveFallsBackToWebhookIDThenSynthesizes(t *testing.T) {
	f := newFixture(t, "", nil)
	ctx := context.Background()

	res, err := f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: []byte(`{"webhook_id":"wh-9"}`)})
	require.NoError(t, err)
	assert.Equal(t, "wh-9", res.WebhookID)

	res, err = f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: []byte(`{"id":4242}`)})
	require.NoError(t, err)
	assert.Equal(t, "4242", res.WebhookID)

	res, err = f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: []byte(`{"topic":"ping"}`)})
	require.NoError(t, err)
	assert.True(t, res.Synthesized)
	assert.True(t, strings.HasPrefix(res.WebhookID, "shopify_1700000000000_"), res.WebhookID)
	assert.Equal(t, StatusProcessed, res.Status)
}

func TestReceiveUnknownChannelIsNotFound(t *testing.T) {
	f := newFixture(t, "", nil)

	_, err := f.svc.Receive(context.Background(), ReceiveInput{Channel: "tiktok", Payload: []byte(`{"id":"x"}`)})
	requireCode(t, err, pkgerrors.CodeNotFound)
	assert.Zero(t, f.adapter.calls())
}

func TestReceiveRejectsNonObjectPayload(t *testing.T) {
	f := newFixture(t, "", nil)

	for _, body := range []string{"", "[1,2]", "not json", "null"} {
		_, err := f.svc.Receive(context.Background(), ReceiveInput{Channel: "shopify", Payload: []byte(body)})
		requireCode(t, err, pkgerrors.CodeValidation)
	}
}

func TestReceiveAdapterFailureLeavesNoMarker(t *testing.T) {
	f := newFixture(t, "", nil)
	ctx := context.Background()
	payload := []byte(`{"id":"evt_fail"}`)
	boom := errors.New("upstream down")
	f.adapter.failWith = boom

	_, err := f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: payload})
	requireCode(t, err, pkgerrors.CodeAdapter)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.processedCount(t))
	assert.Empty(t, f.store.held)

	f.adapter.failWith = nil
	res, err := f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, res.Status)
}

func TestReceiveInFlightDeliveryConflicts(t *testing.T) {
	f := newFixture(t, "", nil)
	f.store.held["ss:idempotency:webhook:shopify:inflight:evt_busy"] = true

	_, err := f.svc.Receive(context.Background(), ReceiveInput{Channel: "shopify", Payload: []byte(`{"id":"evt_busy"}`)})
	requireCode(t, err, pkgerrors.CodeConflict)
	assert.Zero(t, f.adapter.calls())
}

func TestReceiveHandlerTimeout(t *testing.T) {
	f := newFixture(t, "", func(p *ServiceParams) { p.Timeout = 20 * time.Millisecond })
	f.adapter.block = true

	_, err := f.svc.Receive(context.Background(), ReceiveInput{Channel: "shopify", Payload: []byte(`{"id":"evt_slow"}`)})
	requireCode(t, err, pkgerrors.CodeAdapter)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.processedCount(t))
}

func TestReceiveVerifiesSignatureWhenSecretConfigured(t *testing.T) {
	f := newFixture(t, `{"webhookSecret":"s3cret"}`, nil)
	ctx := context.Background()
	payload := []byte(`{"id":"evt_signed"}`)

	_, err := f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: payload, Signature: "deadbeef"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	res, err := f.svc.Receive(ctx, ReceiveInput{
		Channel:   "shopify",
		Payload:   payload,
		Signature: "sha256=" + security.SignPayload("s3cret", payload),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, res.Status)
}

func TestReceiveRequireSignatureWithoutSecret(t *testing.T) {
	f := newFixture(t, "", func(p *ServiceParams) { p.RequireSignature = true })

	_, err := f.svc.Receive(context.Background(), ReceiveInput{Channel: "shopify", Payload: []byte(`{"id":"evt_1"}`)})
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

// racingRepo completes a full redelivery while the outer delivery sits
// between its processed check and taking the guard.
type racingRepo struct {
	Repository
	once      sync.Once
	redeliver func()
}

func (r *racingRepo) FindChannelByName(ctx context.Context, name string) (*models.SalesChannel, error) {
	r.once.Do(r.redeliver)
	return r.Repository.FindChannelByName(ctx, name)
}

func TestReceiveRedeliveryFinishingFirstIsNotReprocessed(t *testing.T) {
	var racing *racingRepo
	f := newFixture(t, "", func(p *ServiceParams) {
		racing = &racingRepo{Repository: p.Repository}
		p.Repository = racing
	})
	ctx := context.Background()
	payload := []byte(`{"id":"evt_race"}`)

	var inner *Result
	racing.redeliver = func() {
		res, err := f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: payload})
		require.NoError(t, err)
		inner = res
	}

	outer, err := f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: payload})
	require.NoError(t, err)

	require.NotNil(t, inner)
	assert.Equal(t, StatusProcessed, inner.Status)
	assert.Equal(t, StatusAlreadyProcessed, outer.Status)
	assert.Equal(t, 1, f.adapter.calls(), "handler runs exactly once")
	assert.EqualValues(t, 1, f.processedCount(t))
	assert.Empty(t, f.store.held)
}

func TestReceiveConcurrentDeliveriesInvokeHandlerOnce(t *testing.T) {
	f := newFixture(t, "", nil)
	pool, err := f.db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)
	ctx := context.Background()
	payload := []byte(`{"id":"evt_burst"}`)

	const deliveries = 8
	var wg sync.WaitGroup
	statuses := make(chan string, deliveries)
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Receive(ctx, ReceiveInput{Channel: "shopify", Payload: payload})
			if err != nil {
				statuses <- string(pkgerrors.As(err).Code())
				return
			}
			statuses <- res.Status
		}()
	}
	wg.Wait()
	close(statuses)

	processed := 0
	for status := range statuses {
		if status == StatusProcessed {
			processed++
			continue
		}
		assert.Contains(t, []string{StatusAlreadyProcessed, string(pkgerrors.CodeConflict)}, status)
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, f.adapter.calls())
	assert.EqualValues(t, 1, f.processedCount(t))
}
