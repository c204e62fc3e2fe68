package channels

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
)

// ListingFilters narrows ListListings.
type ListingFilters struct {
	ChannelID *uuid.UUID
	VariantID *uuid.UUID
}

// Repository persists sales channels and their listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateChannel(ctx context.Context, channel *models.SalesChannel) error
	UpdateChannel(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	DeleteChannel(ctx context.Context, id uuid.UUID) (bool, error)
	FindChannel(ctx context.Context, id uuid.UUID) (*models.SalesChannel, error)
	FindChannelByName(ctx context.Context, name string) (*models.SalesChannel, error)
	ListChannels(ctx context.Context, activeOnly bool) ([]models.SalesChannel, error)
	CountReferences(ctx context.Context, channelID uuid.UUID) (int64, error)

	CreateListing(ctx context.Context, listing *models.ChannelListing) error
	FindListing(ctx context.Context, id uuid.UUID) (*models.ChannelListing, error)
	FindListingByPair(ctx context.Context, variantID, channelID uuid.UUID) (*models.ChannelListing, error)
	UpdateListing(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	ListListings(ctx context.Context, filters ListingFilters) ([]models.ChannelListing, error)
	FindVariant(ctx context.Context, variantID uuid.UUID) (*models.Variant, *models.InventoryRecord, error)
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

func (r *repository) CreateChannel(ctx context.Context, channel *models.SalesChannel) error {
	return r.DB(ctx).Create(channel).Error
}

func (r *repository) UpdateChannel(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := r.DB(ctx).Model(&models.SalesChannel{}).Where("id = ?", id).Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) DeleteChannel(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).Where("id = ?", id).Delete(&models.SalesChannel{})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) FindChannel(ctx context.Context, id uuid.UUID) (*models.SalesChannel, error) {
	var channel models.SalesChannel
	if err := r.DB(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *repository) FindChannelByName(ctx context.Context, name string) (*models.SalesChannel, error) {
	var channel models.SalesChannel
	if err := r.DB(ctx).Where("name = ?", name).First(&channel).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *repository) ListChannels(ctx context.Context, activeOnly bool) ([]models.SalesChannel, error) {
	var channels []models.SalesChannel
	query := r.DB(ctx)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("name ASC").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// CountReferences counts listings and orders that still point at the channel.
func (r *repository) CountReferences(ctx context.Context, channelID uuid.UUID) (int64, error) {
	var listings, orders int64
	if err := r.DB(ctx).Model(&models.ChannelListing{}).Where("channel_id = ?", channelID).Count(&listings).Error; err != nil {
		return 0, err
	}
	if err := r.DB(ctx).Model(&models.Order{}).Where("channel_id = ?", channelID).Count(&orders).Error; err != nil {
		return 0, err
	}
	return listings + orders, nil
}

func (r *repository) CreateListing(ctx context.Context, listing *models.ChannelListing) error {
	return r.DB(ctx).Create(listing).Error
}

func (r *repository) FindListing(ctx context.Context, id uuid.UUID) (*models.ChannelListing, error) {
	var listing models.ChannelListing
	err := r.DB(ctx).
		Preload("Channel").
		Preload("Variant").
		Where("id = ?", id).
		First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) FindListingByPair(ctx context.Context, variantID, channelID uuid.UUID) (*models.ChannelListing, error) {
	var listing models.ChannelListing
	err := r.DB(ctx).
		Preload("Channel").
		Where("variant_id = ? AND channel_id = ?", variantID, channelID).
		First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) UpdateListing(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := r.DB(ctx).Model(&models.ChannelListing{}).Where("id = ?", id).Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ListListings(ctx context.Context, filters ListingFilters) ([]models.ChannelListing, error) {
	var listings []models.ChannelListing
	query := r.DB(ctx).Preload("Channel").Preload("Variant")
	if filters.ChannelID != nil {
		query = query.Where("channel_id = ?", *filters.ChannelID)
	}
	if filters.VariantID != nil {
		query = query.Where("variant_id = ?", *filters.VariantID)
	}
	if err := query.Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// FindVariant loads a variant with its product and, when present, its inventory record.
func (r *repository) FindVariant(ctx context.Context, variantID uuid.UUID) (*models.Variant, *models.InventoryRecord, error) {
	var variant models.Variant
	if err := r.DB(ctx).Preload("Product").Where("id = ?", variantID).First(&variant).Error; err != nil {
		return nil, nil, err
	}
	var record models.InventoryRecord
	err := r.DB(ctx).Where("variant_id = ?", variantID).First(&record).Error
	if err != nil {
		if repo.IsNotFound(err) {
			return &variant, nil, nil
		}
		return nil, nil, err
	}
	return &variant, &record, nil
}
