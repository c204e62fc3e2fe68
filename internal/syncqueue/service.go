package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the durable outbound sync queue.
type Service interface {
	QueueSync(ctx context.Context, tx *gorm.DB, variantID *uuid.UUID, channelID uuid.UUID, action enums.SyncAction, payload any) (*models.SyncJob, error)
	QueueStockSync(ctx context.Context, tx *gorm.DB, record models.InventoryRecord) (int, error)
	SyncStockToAllChannels(ctx context.Context, variantID uuid.UUID) (int, error)
	SyncStockForVariants(ctx context.Context, variantIDs []uuid.UUID) (int, error)
	ProcessSyncQueue(ctx context.Context, limit int) ([]JobResult, error)
	RetryFailedSyncs(ctx context.Context) (int64, error)
	GetSyncQueueStatus(ctx context.Context) (QueueStatus, error)
	ClearCompletedJobs(ctx context.Context, olderThanDays int) (int64, error)
	ListDeadJobs(ctx context.Context, limit int) ([]models.SyncJob, error)
	RecoverStuck(ctx context.Context, lease time.Duration) (int64, error)
}

type ServiceParams struct {
	Repository     Repository
	Tx             txRunner
	Outbox         outboxPublisher
	Adapters       channels.AdapterProvider
	Metrics        *metrics.SyncMetrics
	Logger         *logger.Logger
	MaxRetries     int
	AdapterTimeout time.Duration
	// WorkerID is written to claimed_by. Defaults to hostname:pid.
	WorkerID string
	Now      func() time.Time
}

type service struct {
	repo           Repository
	tx             txRunner
	outbox         outboxPublisher
	adapters       channels.AdapterProvider
	metrics        *metrics.SyncMetrics
	logg           *logger.Logger
	maxRetries     int
	adapterTimeout time.Duration
	workerID       string
	now            func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, errors.New("sync queue repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher is required")
	}
	if params.Adapters == nil {
		return nil, errors.New("adapter provider is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	workerID := params.WorkerID
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	return &service{
		repo:           params.Repository,
		tx:             params.Tx,
		outbox:         params.Outbox,
		adapters:       params.Adapters,
		metrics:        params.Metrics,
		logg:           logg,
		maxRetries:     maxRetries,
		adapterTimeout: params.AdapterTimeout,
		workerID:       workerID,
		now:            now,
	}, nil
}

// QueueSync inserts a PENDING job. With a nil tx the insert runs on its own.
// UPDATE_STOCK jobs take the variant's current stock_version as their sequence.
func (s *service) QueueSync(ctx context.Context, tx *gorm.DB, variantID *uuid.UUID, channelID uuid.UUID, action enums.SyncAction, payload any) (*models.SyncJob, error) {
	var sequence int64
	if action == enums.SyncActionUpdateStock && variantID != nil {
		record, err := s.repo.WithTx(tx).LockInventory(ctx, *variantID)
		switch {
		case err == nil:
			sequence = record.StockVersion
		case !repo.IsNotFound(err):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock version")
		}
	}
	return s.enqueue(ctx, tx, variantID, channelID, action, payload, sequence)
}

func (s *service) enqueue(ctx context.Context, tx *gorm.DB, variantID *uuid.UUID, channelID uuid.UUID, action enums.SyncAction, payload any, sequence int64) (*models.SyncJob, error) {
	if !action.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid sync action %q", action)
	}
	if channelID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode sync payload")
	}
	job := &models.SyncJob{
		VariantID: variantID,
		ChannelID: channelID,
		Action:    action,
		Payload:   raw,
		Status:    enums.SyncStatusPending,
		Sequence:  sequence,
		CreatedAt: s.now(),
	}
	if err := s.repo.WithTx(tx).Insert(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue sync job")
	}
	return job, nil
}

// QueueStockSync queues one UPDATE_STOCK per published listing of the record's
// variant on an active channel. It runs inside tx, which must hold the row
// lock on record, so the jobs commit or roll back with the stock change and
// carry its stock_version as their sequence.
func (s *service) QueueStockSync(ctx context.Context, tx *gorm.DB, record models.InventoryRecord) (int, error) {
	if record.VariantID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	variantID := record.VariantID
	listings, err := s.repo.WithTx(tx).ListSyncableListings(ctx, variantID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
	}
	for i := range listings {
		listing := listings[i]
		payload := stockPayload{
			ExternalID: *listing.ExternalID,
			Quantity:   record.QuantityAvailable,
			ListingID:  &listing.ID,
		}
		if _, err := s.enqueue(ctx, tx, &variantID, listing.ChannelID, enums.SyncActionUpdateStock, payload, record.StockVersion); err != nil {
			return 0, err
		}
	}
	if len(listings) > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"variant_id":    variantID.String(),
			"jobs":          len(listings),
			"stock_version": record.StockVersion,
		})
		s.logg.Debug(logCtx, "stock sync queued")
	}
	return len(listings), nil
}

// SyncStockToAllChannels re-queues the current stock of a variant under the
// inventory row lock. Used for manual resyncs; ledger moves queue their own
// jobs through QueueStockSync.
func (s *service) SyncStockToAllChannels(ctx context.Context, variantID uuid.UUID) (int, error) {
	if variantID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	queued := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := s.repo.WithTx(tx).LockInventory(ctx, variantID)
		if err != nil {
			if repo.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock inventory")
		}
		queued, err = s.QueueStockSync(ctx, tx, *record)
		return err
	})
	if err != nil {
		return 0, err
	}
	return queued, nil
}

// SyncStockForVariants fans out each variant independently; one failure does not stop the rest.
func (s *service) SyncStockForVariants(ctx context.Context, variantIDs []uuid.UUID) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, id := range variantIDs {
		n, err := s.SyncStockToAllChannels(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("variant %s: %w", id, err))
			continue
		}
		total += n
	}
	return total, multierr.Combine(errs...)
}

// ProcessSyncQueue claims up to limit pending jobs and applies each one to its
// channel. Adapter calls run outside any transaction; a failing job never
// affects its siblings.
func (s *service) ProcessSyncQueue(ctx context.Context, limit int) ([]JobResult, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	jobs, err := s.repo.ListClaimable(ctx, limit, s.maxRetries)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending sync jobs")
	}

	results := make([]JobResult, 0, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		claimed, err := s.repo.Claim(ctx, job.ID, s.workerID, s.now())
		if err != nil {
			return results, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim sync job")
		}
		if !claimed {
			continue
		}
		result, err := s.process(ctx, job)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// process runs one claimed job. The returned error is reserved for storage
// failures; adapter failures are recorded on the job and reported in the result.
func (s *service) process(ctx context.Context, job models.SyncJob) (JobResult, error) {
	result := JobResult{ID: job.ID, Action: job.Action, ChannelID: job.ChannelID}
	logCtx := s.logg.WithJobID(ctx, job.ID.String())
	logCtx = s.logg.WithField(logCtx, "action", job.Action.String())

	if job.Action == enums.SyncActionUpdateStock {
		superseded, err := s.repo.HasNewerStockJob(ctx, job, s.maxRetries)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check newer stock job")
		}
		if superseded {
			body, _ := json.Marshal(map[string]string{"skipped": skippedSuperseded})
			if err := s.repo.Complete(ctx, job.ID, body, s.now()); err != nil {
				return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete superseded job")
			}
			s.metrics.ObserveJob("", job.Action.String(), "skipped", 0)
			s.logg.Debug(logCtx, "stock update superseded by a newer job")
			result.Success = true
			result.Skipped = skippedSuperseded
			return result, nil
		}
	}

	channel, err := s.repo.FindChannel(ctx, job.ChannelID)
	if err != nil {
		if !repo.IsNotFound(err) {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel")
		}
		return s.fail(ctx, job, result, "", pkgerrors.New(pkgerrors.CodeNotFound, "channel not found"), 0)
	}
	logCtx = s.logg.WithChannel(logCtx, channel.Name)
	if !channel.IsActive {
		return s.fail(logCtx, job, result, channel.Name, pkgerrors.New(pkgerrors.CodeConflict, "channel is inactive"), 0)
	}

	started := time.Now()
	externalID, listingUpdate, err := s.dispatch(ctx, *channel, job)
	took := time.Since(started)
	if err != nil {
		return s.fail(logCtx, job, result, channel.Name, err, took)
	}

	var body []byte
	if externalID != "" {
		body, _ = json.Marshal(map[string]string{"externalId": externalID})
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)
		if err := repository.Complete(ctx, job.ID, body, s.now()); err != nil {
			return err
		}
		if listingUpdate.id != uuid.Nil {
			return repository.UpdateListing(ctx, listingUpdate.id, listingUpdate.columns)
		}
		return nil
	})
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete sync job")
	}

	s.metrics.ObserveJob(channel.Name, job.Action.String(), "completed", took)
	s.logg.Info(logCtx, "sync job completed")
	result.Success = true
	result.ExternalID = externalID
	return result, nil
}

type listingUpdate struct {
	id      uuid.UUID
	columns map[string]any
}

func (s *service) dispatch(ctx context.Context, channel models.SalesChannel, job models.SyncJob) (string, listingUpdate, error) {
	adapter, err := s.adapters.ForChannel(channel)
	if err != nil {
		return "", listingUpdate{}, err
	}
	if s.adapterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.adapterTimeout)
		defer cancel()
	}
	synced := s.now()

	switch job.Action {
	case enums.SyncActionUpdateStock:
		var p stockPayload
		if err := decodePayload(job, &p); err != nil {
			return "", listingUpdate{}, err
		}
		if err := adapter.UpdateStock(ctx, p.ExternalID, p.Quantity); err != nil {
			return "", listingUpdate{}, channels.AdapterError(adapter.Kind(), "update stock", err)
		}
		return "", stampListing(p.ListingID, map[string]any{"last_synced_at": synced}), nil

	case enums.SyncActionUpdatePrice:
		var p pricePayload
		if err := decodePayload(job, &p); err != nil {
			return "", listingUpdate{}, err
		}
		if err := adapter.UpdatePrice(ctx, p.ExternalID, p.Price); err != nil {
			return "", listingUpdate{}, channels.AdapterError(adapter.Kind(), "update price", err)
		}
		return "", stampListing(p.ListingID, map[string]any{"last_synced_at": synced}), nil

	case enums.SyncActionCreateListing:
		var p listingRef
		if err := decodePayload(job, &p); err != nil {
			return "", listingUpdate{}, err
		}
		externalID, err := adapter.CreateListing(ctx, job.Payload)
		if err != nil {
			return "", listingUpdate{}, channels.AdapterError(adapter.Kind(), "create listing", err)
		}
		return externalID, stampListing(p.ListingID, map[string]any{"external_id": externalID, "last_synced_at": synced}), nil

	case enums.SyncActionDeleteListing:
		var p listingRef
		if err := decodePayload(job, &p); err != nil {
			return "", listingUpdate{}, err
		}
		if err := adapter.DeleteListing(ctx, p.ExternalID); err != nil {
			return "", listingUpdate{}, channels.AdapterError(adapter.Kind(), "delete listing", err)
		}
		return "", stampListing(p.ListingID, map[string]any{"is_active": false, "last_synced_at": synced}), nil
	}
	return "", listingUpdate{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported sync action %q", job.Action)
}

// fail records the error on the job. When the job reaches the retry bound a
// sync_job_dead event is written in the same transaction.
func (s *service) fail(ctx context.Context, job models.SyncJob, result JobResult, channelName string, cause error, took time.Duration) (JobResult, error) {
	message := failureMessage(cause)
	dead := job.RetryCount+1 >= s.maxRetries
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Fail(ctx, job.ID, message, s.now()); err != nil {
			return err
		}
		if !dead {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSyncJobDead,
			AggregateType: enums.AggregateSyncJob,
			AggregateID:   job.ID,
			Actor:         &outbox.ActorRef{Role: string(enums.OperatorRoleSystem), Source: "sync-worker"},
			Data: payloads.SyncJobDeadEvent{
				JobID:        job.ID,
				ChannelID:    job.ChannelID,
				VariantID:    job.VariantID,
				Action:       job.Action,
				RetryCount:   job.RetryCount + 1,
				ErrorMessage: message,
			},
		})
	})
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sync failure")
	}

	outcome := "failed"
	if dead {
		outcome = "dead"
	}
	s.metrics.ObserveJob(channelName, job.Action.String(), outcome, took)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"retry_count": job.RetryCount + 1,
		"dead":        dead,
		"transient":   pkgerrors.Retryable(cause),
	})
	s.logg.Warn(logCtx, "sync job failed: "+message)

	result.Success = false
	result.Error = message
	return result, nil
}

func (s *service) RetryFailedSyncs(ctx context.Context) (int64, error) {
	n, err := s.repo.ResetFailed(ctx, s.maxRetries)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset failed sync jobs")
	}
	if n > 0 {
		s.logg.Info(s.logg.WithField(ctx, "reset", n), "failed sync jobs requeued")
	}
	return n, nil
}

func (s *service) GetSyncQueueStatus(ctx context.Context) (QueueStatus, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return QueueStatus{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count sync jobs")
	}
	dead, err := s.repo.CountDead(ctx, s.maxRetries)
	if err != nil {
		return QueueStatus{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count dead sync jobs")
	}
	status := QueueStatus{
		Pending:    counts[enums.SyncStatusPending],
		Processing: counts[enums.SyncStatusProcessing],
		Failed:     counts[enums.SyncStatusFailed] - dead,
		Completed:  counts[enums.SyncStatusCompleted],
		Dead:       dead,
	}
	s.metrics.SetQueueDepth(map[string]int64{
		"pending":    status.Pending,
		"processing": status.Processing,
		"failed":     status.Failed,
		"completed":  status.Completed,
		"dead":       status.Dead,
	})
	return status, nil
}

func (s *service) ClearCompletedJobs(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = DefaultCleanupAfterDays
	}
	cutoff := s.now().AddDate(0, 0, -olderThanDays)
	n, err := s.repo.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete completed sync jobs")
	}
	return n, nil
}

func (s *service) ListDeadJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	if limit <= 0 {
		limit = DefaultDeadListLimit
	}
	if limit > maxDeadListLimit {
		limit = maxDeadListLimit
	}
	jobs, err := s.repo.ListDead(ctx, s.maxRetries, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead sync jobs")
	}
	return jobs, nil
}

// RecoverStuck fails PROCESSING jobs claimed longer than lease ago, which
// happens when a worker dies mid-job.
func (s *service) RecoverStuck(ctx context.Context, lease time.Duration) (int64, error) {
	if lease <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "lease must be positive")
	}
	n, err := s.repo.FailStuck(ctx, s.now().Add(-lease), leaseExpiredError)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recover stuck sync jobs")
	}
	if n > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "recovered", n), "stuck sync jobs failed back into retry")
	}
	return n, nil
}

func decodePayload(job models.SyncJob, dst any) error {
	if err := json.Unmarshal(job.Payload, dst); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode sync payload")
	}
	return nil
}

func stampListing(id *uuid.UUID, columns map[string]any) listingUpdate {
	if id == nil || *id == uuid.Nil {
		return listingUpdate{}
	}
	return listingUpdate{id: *id, columns: columns}
}

func failureMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	if cause := errors.Unwrap(err); cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return msg
}
