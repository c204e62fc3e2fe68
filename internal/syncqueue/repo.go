package syncqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
)

// Repository persists the sync queue and the listing columns the worker maintains.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, job *models.SyncJob) error
	ListClaimable(ctx context.Context, limit, maxRetries int) ([]models.SyncJob, error)
	Claim(ctx context.Context, id uuid.UUID, worker string, at time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, result []byte, at time.Time) error
	Fail(ctx context.Context, id uuid.UUID, message string, at time.Time) error
	HasNewerStockJob(ctx context.Context, job models.SyncJob, maxRetries int) (bool, error)
	ResetFailed(ctx context.Context, maxRetries int) (int64, error)
	CountByStatus(ctx context.Context) (map[enums.SyncStatus]int64, error)
	CountDead(ctx context.Context, maxRetries int) (int64, error)
	ListDead(ctx context.Context, maxRetries, limit int) ([]models.SyncJob, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FailStuck(ctx context.Context, claimedBefore time.Time, message string) (int64, error)

	LockInventory(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error)
	ListSyncableListings(ctx context.Context, variantID uuid.UUID) ([]models.ChannelListing, error)
	FindChannel(ctx context.Context, id uuid.UUID) (*models.SalesChannel, error)
	UpdateListing(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Insert(ctx context.Context, job *models.SyncJob) error {
	return r.DB(ctx).Create(job).Error
}

// ListClaimable returns pending jobs oldest first. Jobs at the retry bound are never returned.
func (r *repository) ListClaimable(ctx context.Context, limit, maxRetries int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	err := r.DB(ctx).
		Where("status = ? AND retry_count < ?", enums.SyncStatusPending, maxRetries).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Claim moves a job from PENDING to PROCESSING. False means another worker got there first.
func (r *repository) Claim(ctx context.Context, id uuid.UUID, worker string, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", id, enums.SyncStatusPending).
		Updates(map[string]any{
			"status":     enums.SyncStatusProcessing,
			"claimed_by": worker,
			"claimed_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) Complete(ctx context.Context, id uuid.UUID, result []byte, at time.Time) error {
	updates := map[string]any{
		"status":        enums.SyncStatusCompleted,
		"processed_at":  at,
		"error_message": nil,
	}
	if len(result) > 0 {
		updates["result"] = result
	}
	return r.DB(ctx).Model(&models.SyncJob{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) Fail(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	return r.DB(ctx).Model(&models.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.SyncStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": message,
			"processed_at":  at,
		}).Error
}

// HasNewerStockJob reports whether a later UPDATE_STOCK for the same channel and
// variant has applied or can still apply, which makes job obsolete.
func (r *repository) HasNewerStockJob(ctx context.Context, job models.SyncJob, maxRetries int) (bool, error) {
	if job.VariantID == nil {
		return false, nil
	}
	var count int64
	err := r.DB(ctx).Model(&models.SyncJob{}).
		Where("action = ? AND channel_id = ? AND variant_id = ? AND sequence > ? AND id <> ?",
			enums.SyncActionUpdateStock, job.ChannelID, *job.VariantID, job.Sequence, job.ID).
		Where("(status IN ? OR (status = ? AND retry_count < ?))",
			[]enums.SyncStatus{enums.SyncStatusCompleted, enums.SyncStatusPending, enums.SyncStatusProcessing},
			enums.SyncStatusFailed, maxRetries).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ResetFailed(ctx context.Context, maxRetries int) (int64, error) {
	res := r.DB(ctx).Model(&models.SyncJob{}).
		Where("status = ? AND retry_count < ?", enums.SyncStatusFailed, maxRetries).
		Updates(map[string]any{
			"status":     enums.SyncStatusPending,
			"claimed_by": nil,
			"claimed_at": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CountByStatus(ctx context.Context) (map[enums.SyncStatus]int64, error) {
	var rows []struct {
		Status enums.SyncStatus
		Total  int64
	}
	err := r.DB(ctx).Model(&models.SyncJob{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.SyncStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

// CountDead counts failed jobs that reached the retry bound.
func (r *repository) CountDead(ctx context.Context, maxRetries int) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.SyncJob{}).
		Where("status = ? AND retry_count >= ?", enums.SyncStatusFailed, maxRetries).
		Count(&count).Error
	return count, err
}

func (r *repository) ListDead(ctx context.Context, maxRetries, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	err := r.DB(ctx).
		Where("status = ? AND retry_count >= ?", enums.SyncStatusFailed, maxRetries).
		Order("processed_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *repository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).
		Where("status = ? AND processed_at < ?", enums.SyncStatusCompleted, cutoff).
		Delete(&models.SyncJob{})
	return res.RowsAffected, res.Error
}

// FailStuck fails jobs whose claim lease expired so they re-enter the retry cycle.
func (r *repository) FailStuck(ctx context.Context, claimedBefore time.Time, message string) (int64, error) {
	res := r.DB(ctx).Model(&models.SyncJob{}).
		Where("status = ? AND claimed_at < ?", enums.SyncStatusProcessing, claimedBefore).
		Updates(map[string]any{
			"status":        enums.SyncStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": message,
			"processed_at":  time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) LockInventory(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.Locked(ctx).
		Where("variant_id = ?", variantID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListSyncableListings returns active, published listings of the variant on active channels.
func (r *repository) ListSyncableListings(ctx context.Context, variantID uuid.UUID) ([]models.ChannelListing, error) {
	var listings []models.ChannelListing
	err := r.DB(ctx).
		Joins("Channel").
		Where("channel_listings.variant_id = ?", variantID).
		Where("channel_listings.is_active = ?", true).
		Where("channel_listings.external_id IS NOT NULL AND channel_listings.external_id <> ''").
		Where(`"Channel"."is_active" = ?`, true).
		Order("channel_listings.created_at ASC").
		Find(&listings).Error
	return listings, err
}

func (r *repository) FindChannel(ctx context.Context, id uuid.UUID) (*models.SalesChannel, error) {
	var channel models.SalesChannel
	if err := r.DB(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *repository) UpdateListing(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.DB(ctx).Model(&models.ChannelListing{}).Where("id = ?", id).Updates(updates).Error
}
