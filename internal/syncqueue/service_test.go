package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/internal/inventory"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
)

type stockCall struct {
	externalID string
	quantity   int
}

type stubAdapter struct {
	kind       enums.ChannelKind
	failWith   error
	stockCalls []stockCall
	prices     []decimal.Decimal
	created    []json.RawMessage
	deleted    []string
}

func (a *stubAdapter) Kind() enums.ChannelKind                   { return a.kind }
func (a *stubAdapter) Authenticate(context.Context) (bool, error) { return true, nil }
func (a *stubAdapter) TestConnection(context.Context) bool        { return true }

func (a *stubAdapter) UpdateStock(_ context.Context, externalID string, quantity int) error {
	if a.failWith != nil {
		return a.failWith
	}
	a.stockCalls = append(a.stockCalls, stockCall{externalID: externalID, quantity: quantity})
	return nil
}

func (a *stubAdapter) UpdatePrice(_ context.Context, _ string, price decimal.Decimal) error {
	if a.failWith != nil {
		return a.failWith
	}
	a.prices = append(a.prices, price)
	return nil
}

func (a *stubAdapter) CreateListing(_ context.Context, payload json.RawMessage) (string, error) {
	if a.failWith != nil {
		return "", a.failWith
	}
	a.created = append(a.created, payload)
	return "ext-created", nil
}

func (a *stubAdapter) DeleteListing(_ context.Context, externalID string) error {
	if a.failWith != nil {
		return a.failWith
	}
	a.deleted = append(a.deleted, externalID)
	return nil
}

func (a *stubAdapter) FetchOrders(context.Context, time.Time) ([]json.RawMessage, error) {
	return nil, nil
}

func (a *stubAdapter) HandleWebhook(context.Context, json.RawMessage) error { return nil }

type stubProvider struct {
	adapters map[string]*stubAdapter
}

func (p *stubProvider) ForChannel(channel models.SalesChannel) (channels.Adapter, error) {
	adapter, ok := p.adapters[channel.Name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no adapter")
	}
	return adapter, nil
}

type queueFixture struct {
	db       *gorm.DB
	svc      Service
	adapters map[string]*stubAdapter
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	dsn := "file:syncqueue_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	adapters := map[string]*stubAdapter{
		"shopify": {kind: enums.ChannelShopify},
		"amazon":  {kind: enums.ChannelAmazon},
		"shein":   {kind: enums.ChannelShein},
	}
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		Tx:         db.NewFromGorm(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Adapters:   &stubProvider{adapters: adapters},
		WorkerID:   "test-worker",
	})
	require.NoError(t, err)
	return &queueFixture{db: conn, svc: svc, adapters: adapters}
}

func (f *queueFixture) seedVariant(t *testing.T, available int) uuid.UUID {
	t.Helper()
	product := models.Product{Name: "Mug", BasePrice: decimal.NewFromInt(8)}
	require.NoError(t, f.db.Create(&product).Error)
	variant := models.Variant{ProductID: product.ID, SKU: "MUG-" + uuid.NewString()[:8], Price: decimal.NewFromInt(8)}
	require.NoError(t, f.db.Create(&variant).Error)
	record := models.InventoryRecord{VariantID: variant.ID, QuantityAvailable: available, MinStockThreshold: 2}
	require.NoError(t, f.db.Create(&record).Error)
	return variant.ID
}

func (f *queueFixture) seedChannel(t *testing.T, name string, active bool) models.SalesChannel {
	t.Helper()
	channel := models.SalesChannel{Name: name, DisplayName: name, IsActive: true}
	require.NoError(t, f.db.Create(&channel).Error)
	if !active {
		require.NoError(t, f.db.Model(&channel).Update("is_active", false).Error)
	}
	return channel
}

func (f *queueFixture) seedListing(t *testing.T, variantID, channelID uuid.UUID, externalID string) models.ChannelListing {
	t.Helper()
	listing := models.ChannelListing{VariantID: variantID, ChannelID: channelID, Price: decimal.NewFromInt(9), IsActive: true}
	if externalID != "" {
		listing.ExternalID = &externalID
	}
	require.NoError(t, f.db.Create(&listing).Error)
	return listing
}

func (f *queueFixture) job(t *testing.T, id uuid.UUID) models.SyncJob {
	t.Helper()
	var job models.SyncJob
	require.NoError(t, f.db.Where("id = ?", id).First(&job).Error)
	return job
}

func (f *queueFixture) listing(t *testing.T, id uuid.UUID) models.ChannelListing {
	t.Helper()
	var listing models.ChannelListing
	require.NoError(t, f.db.Where("id = ?", id).First(&listing).Error)
	return listing
}

func (f *queueFixture) bumpStockVersion(t *testing.T, variantID uuid.UUID) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.InventoryRecord{}).
		Where("variant_id = ?", variantID).
		Update("stock_version", gorm.Expr("stock_version + 1")).Error)
}

func TestQueueSyncValidatesAndSequences(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	channel := f.seedChannel(t, "shopify", true)
	variantID := f.seedVariant(t, 3)

	_, err := f.svc.QueueSync(ctx, nil, nil, channel.ID, enums.SyncAction("UPSERT"), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.QueueSync(ctx, nil, nil, uuid.Nil, enums.SyncActionDeleteListing, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	deleteJob, err := f.svc.QueueSync(ctx, nil, nil, channel.ID, enums.SyncActionDeleteListing, map[string]string{"externalId": "a"})
	require.NoError(t, err)
	assert.Equal(t, enums.SyncStatusPending, deleteJob.Status)
	assert.Zero(t, deleteJob.Sequence)

	first, err := f.svc.QueueSync(ctx, nil, &variantID, channel.ID, enums.SyncActionUpdateStock, stockPayload{ExternalID: "a", Quantity: 3})
	require.NoError(t, err)
	f.bumpStockVersion(t, variantID)
	f.bumpStockVersion(t, variantID)
	second, err := f.svc.QueueSync(ctx, nil, &variantID, channel.ID, enums.SyncActionUpdateStock, stockPayload{ExternalID: "a", Quantity: 3})
	require.NoError(t, err)

	assert.Zero(t, first.Sequence)
	assert.EqualValues(t, 2, second.Sequence)
}

func TestSyncStockToAllChannelsTargetsPublishedActiveListings(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 7)

	shopify := f.seedChannel(t, "shopify", true)
	amazon := f.seedChannel(t, "amazon", false)
	shein := f.seedChannel(t, "shein", true)
	published := f.seedListing(t, variantID, shopify.ID, "gid-1")
	f.seedListing(t, variantID, amazon.ID, "amz-1")
	f.seedListing(t, variantID, shein.ID, "")

	queued, err := f.svc.SyncStockToAllChannels(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	var jobs []models.SyncJob
	require.NoError(t, f.db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, shopify.ID, jobs[0].ChannelID)

	var payload stockPayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, "gid-1", payload.ExternalID)
	assert.Equal(t, 7, payload.Quantity)
	assert.Equal(t, published.ID, *payload.ListingID)

	_, err = f.svc.SyncStockToAllChannels(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	total, err := f.svc.SyncStockForVariants(ctx, []uuid.UUID{variantID, uuid.New()})
	assert.Error(t, err)
	assert.Equal(t, 1, total)
}

func TestProcessAppliesEachActionAndUpdatesListings(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 4)
	channel := f.seedChannel(t, "shopify", true)
	fresh := f.seedListing(t, variantID, channel.ID, "")

	otherVariant := f.seedVariant(t, 1)
	retiring := f.seedListing(t, otherVariant, channel.ID, "gid-9")

	createJob, err := f.svc.QueueSync(ctx, nil, &variantID, channel.ID, enums.SyncActionCreateListing, map[string]any{
		"listingId": fresh.ID,
		"variant":   map[string]any{"sku": "MUG-1", "inventory": 4},
	})
	require.NoError(t, err)
	priceJob, err := f.svc.QueueSync(ctx, nil, &otherVariant, channel.ID, enums.SyncActionUpdatePrice, map[string]any{
		"externalId": "gid-9", "price": decimal.RequireFromString("11.50"), "listingId": retiring.ID,
	})
	require.NoError(t, err)
	deleteJob, err := f.svc.QueueSync(ctx, nil, &otherVariant, channel.ID, enums.SyncActionDeleteListing, map[string]any{
		"externalId": "gid-9", "listingId": retiring.ID,
	})
	require.NoError(t, err)

	results, err := f.svc.ProcessSyncQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success, "job %s: %s", r.Action, r.Error)
		if r.ID == createJob.ID {
			assert.Equal(t, "ext-created", r.ExternalID)
		}
	}

	assert.Equal(t, enums.SyncStatusCompleted, f.job(t, createJob.ID).Status)
	assert.NotNil(t, f.job(t, priceJob.ID).ProcessedAt)
	assert.Equal(t, enums.SyncStatusCompleted, f.job(t, deleteJob.ID).Status)

	created := f.listing(t, fresh.ID)
	require.NotNil(t, created.ExternalID)
	assert.Equal(t, "ext-created", *created.ExternalID)
	assert.NotNil(t, created.LastSyncedAt)

	assert.False(t, f.listing(t, retiring.ID).IsActive)
	adapter := f.adapters["shopify"]
	require.Len(t, adapter.prices, 1)
	assert.True(t, adapter.prices[0].Equal(decimal.RequireFromString("11.50")))
	assert.Equal(t, []string{"gid-9"}, adapter.deleted)
}

func TestProcessIsolatesFailuresPerJob(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 3)
	good := f.seedChannel(t, "shopify", true)
	bad := f.seedChannel(t, "amazon", true)
	f.adapters["amazon"].failWith = channels.AdapterError(enums.ChannelAmazon, "update stock", errors.New("503 from marketplace"))

	okJob, err := f.svc.QueueSync(ctx, nil, &variantID, good.ID, enums.SyncActionUpdateStock, stockPayload{ExternalID: "gid", Quantity: 3})
	require.NoError(t, err)
	badJob, err := f.svc.QueueSync(ctx, nil, &variantID, bad.ID, enums.SyncActionUpdateStock, stockPayload{ExternalID: "amz", Quantity: 3})
	require.NoError(t, err)

	results, err := f.svc.ProcessSyncQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, enums.SyncStatusCompleted, f.job(t, okJob.ID).Status)
	failed := f.job(t, badJob.ID)
	assert.Equal(t, enums.SyncStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "503 from marketplace")
	assert.Equal(t, []stockCall{{externalID: "gid", quantity: 3}}, f.adapters["shopify"].stockCalls)
}

func TestProcessFailsJobsForInactiveChannel(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 3)
	channel := f.seedChannel(t, "shein", false)

	job, err := f.svc.QueueSync(ctx, nil, &variantID, channel.ID, enums.SyncActionUpdateStock, stockPayload{ExternalID: "sh-1", Quantity: 3})
	require.NoError(t, err)

	results, err := f.svc.ProcessSyncQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)

	failed := f.job(t, job.ID)
	assert.Equal(t, enums.SyncStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "inactive")
	assert.Empty(t, f.adapters["shein"].stockCalls)
}

func TestRetryBoundMakesJobsDead(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 3)
	channel := f.seedChannel(t, "amazon", true)
	f.adapters["amazon"].failWith = errors.New("timeout")

	job, err := f.svc.QueueSync(ctx, nil, &variantID, channel.ID, enums.SyncActionUpdateStock, stockPayload{ExternalID: "amz", Quantity: 3})
	require.NoError(t, err)

	for attempt := 1; attempt <= DefaultMaxRetries; attempt++ {
		results, err := f.svc.ProcessSyncQueue(ctx, 10)
		require.NoError(t, err)
		require.Len(t, results, 1, "attempt %d", attempt)
		assert.False(t, results[0].Success)
		_, err = f.svc.RetryFailedSyncs(ctx)
		require.NoError(t, err)
	}

	dead := f.job(t, job.ID)
	assert.Equal(t, enums.SyncStatusFailed, dead.Status)
	assert.Equal(t, DefaultMaxRetries, dead.RetryCount)

	reset, err := f.svc.RetryFailedSyncs(ctx)
	require.NoError(t, err)
	assert.Zero(t, reset)
	results, err := f.svc.ProcessSyncQueue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	status, err := f.svc.GetSyncQueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStatus{Dead: 1}, status)

	deadJobs, err := f.svc.ListDeadJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, deadJobs, 1)
	assert.Equal(t, job.ID, deadJobs[0].ID)

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSyncJobDead).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestOlderStockUpdateIsSupersededByNewer(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 5)
	channel := f.seedChannel(t, "shopify", true)
	listing := f.seedListing(t, variantID, channel.ID, "gid-5")

	older, err := f.svc.QueueSync(ctx, nil, &variantID, channel.ID, enums.SyncActionUpdateStock, stockPayload{ExternalID: "gid-5", Quantity: 5, ListingID: &listing.ID})
	require.NoError(t, err)
	f.bumpStockVersion(t, variantID)
	newer, err := f.svc.QueueSync(ctx, nil, &variantID, channel.ID, enums.SyncActionUpdateStock, stockPayload{ExternalID: "gid-5", Quantity: 2, ListingID: &listing.ID})
	require.NoError(t, err)

	results, err := f.svc.ProcessSyncQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[uuid.UUID]JobResult{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.Equal(t, "superseded", byID[older.ID].Skipped)
	assert.True(t, byID[older.ID].Success)
	assert.Empty(t, byID[newer.ID].Skipped)

	assert.Equal(t, []stockCall{{externalID: "gid-5", quantity: 2}}, f.adapters["shopify"].stockCalls)
	assert.Equal(t, enums.SyncStatusCompleted, f.job(t, older.ID).Status)
}

func TestSupersedeFollowsStockVersionNotCreationTime(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 5)
	channel := f.seedChannel(t, "shopify", true)
	base := time.Now().UTC().Add(-time.Minute)

	insert := func(version int64, quantity int, createdAt time.Time) models.SyncJob {
		raw, err := json.Marshal(stockPayload{ExternalID: "gid-7", Quantity: quantity})
		require.NoError(t, err)
		job := models.SyncJob{
			VariantID: &variantID,
			ChannelID: channel.ID,
			Action:    enums.SyncActionUpdateStock,
			Payload:   raw,
			Status:    enums.SyncStatusPending,
			Sequence:  version,
			CreatedAt: createdAt,
		}
		require.NoError(t, f.db.Create(&job).Error)
		return job
	}
	// the later stock state was queued first
	latest := insert(4, 1, base)
	stale := insert(3, 6, base.Add(time.Second))

	repo := NewRepository(f.db)
	newer, err := repo.HasNewerStockJob(ctx, stale, DefaultMaxRetries)
	require.NoError(t, err)
	assert.True(t, newer)
	newer, err = repo.HasNewerStockJob(ctx, latest, DefaultMaxRetries)
	require.NoError(t, err)
	assert.False(t, newer)

	tied := insert(4, 9, base.Add(2*time.Second))
	newer, err = repo.HasNewerStockJob(ctx, tied, DefaultMaxRetries)
	require.NoError(t, err)
	assert.False(t, newer, "equal versions never supersede each other")
	require.NoError(t, f.db.Delete(&models.SyncJob{}, "id = ?", tied.ID).Error)

	results, err := f.svc.ProcessSyncQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	byID := map[uuid.UUID]JobResult{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.Empty(t, byID[latest.ID].Skipped)
	assert.Equal(t, "superseded", byID[stale.ID].Skipped)
	assert.Equal(t, []stockCall{{externalID: "gid-7", quantity: 1}}, f.adapters["shopify"].stockCalls)
}

func TestLedgerMovesQueueStockJobsInTheSameTransaction(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 5)
	channel := f.seedChannel(t, "shopify", true)
	f.seedListing(t, variantID, channel.ID, "gid-3")

	runner := db.NewFromGorm(f.db)
	ledger, err := inventory.NewService(inventory.NewRepository(f.db), runner, outbox.NewService(outbox.NewRepository(f.db), nil), f.svc, nil)
	require.NoError(t, err)

	record, err := ledger.AdjustStock(ctx, inventory.AdjustInput{VariantID: variantID, Delta: 3, Reason: "cycle count"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, record.StockVersion)

	var jobs []models.SyncJob
	require.NoError(t, f.db.Where("action = ?", enums.SyncActionUpdateStock).Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, record.StockVersion, jobs[0].Sequence)
	var payload stockPayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, 8, payload.Quantity)

	// a failure later in the caller's transaction takes the queued jobs with it
	boom := errors.New("order insert failed")
	err = runner.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := ledger.ReserveStock(ctx, tx, variantID, 2, "order-1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, f.db.Model(&models.SyncJob{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	var stored models.InventoryRecord
	require.NoError(t, f.db.Where("variant_id = ?", variantID).First(&stored).Error)
	assert.Equal(t, 8, stored.QuantityAvailable)
	assert.EqualValues(t, 1, stored.StockVersion)

	_, err = ledger.ReserveStock(ctx, nil, variantID, 2, "order-2")
	require.NoError(t, err)
	require.NoError(t, f.db.Where("action = ?", enums.SyncActionUpdateStock).Order("sequence").Find(&jobs).Error)
	require.Len(t, jobs, 2)
	assert.EqualValues(t, 2, jobs[1].Sequence)
}

func TestClaimIsExclusive(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	channel := f.seedChannel(t, "shein", true)
	job, err := f.svc.QueueSync(ctx, nil, nil, channel.ID, enums.SyncActionDeleteListing, listingRef{ExternalID: "x"})
	require.NoError(t, err)

	repo := NewRepository(f.db)
	won, err := repo.Claim(ctx, job.ID, "worker-a", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, won)
	won, err = repo.Claim(ctx, job.ID, "worker-b", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, won)

	results, err := f.svc.ProcessSyncQueue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	claimed := f.job(t, job.ID)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, "worker-a", *claimed.ClaimedBy)
}

func TestRecoverStuckAndClearCompleted(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	channel := f.seedChannel(t, "shopify", true)

	stuck, err := f.svc.QueueSync(ctx, nil, nil, channel.ID, enums.SyncActionDeleteListing, listingRef{ExternalID: "s"})
	require.NoError(t, err)
	_, err = NewRepository(f.db).Claim(ctx, stuck.ID, "dead-worker", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	recovered, err := f.svc.RecoverStuck(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, recovered)
	assert.Equal(t, enums.SyncStatusFailed, f.job(t, stuck.ID).Status)
	assert.Equal(t, 1, f.job(t, stuck.ID).RetryCount)

	_, err = f.svc.RecoverStuck(ctx, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	old := models.SyncJob{ChannelID: channel.ID, Action: enums.SyncActionDeleteListing, Payload: json.RawMessage(`{}`), Status: enums.SyncStatusCompleted}
	require.NoError(t, f.db.Create(&old).Error)
	require.NoError(t, f.db.Model(&old).Update("processed_at", time.Now().UTC().AddDate(0, 0, -10)).Error)
	recent := models.SyncJob{ChannelID: channel.ID, Action: enums.SyncActionDeleteListing, Payload: json.RawMessage(`{}`), Status: enums.SyncStatusCompleted}
	require.NoError(t, f.db.Create(&recent).Error)
	require.NoError(t, f.db.Model(&recent).Update("processed_at", time.Now().UTC()).Error)

	deleted, err := f.svc.ClearCompletedJobs(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, f.db.Model(&models.SyncJob{}).Where("id = ?", recent.ID).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}
