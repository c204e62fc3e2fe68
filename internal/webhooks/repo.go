package webhooks

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
)

// Repository persists processed webhook markers.
type Repository interface {
	IsProcessed(ctx context.Context, webhookID string) (bool, error)
	FindChannelByName(ctx context.Context, name string) (*models.SalesChannel, error)
	MarkProcessed(ctx context.Context, row *models.ProcessedWebhook) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) IsProcessed(ctx context.Context, webhookID string) (bool, error) {
	var row models.ProcessedWebhook
	err := r.db.WithContext(ctx).Select("id").Where("webhook_id = ?", webhookID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) FindChannelByName(ctx context.Context, name string) (*models.SalesChannel, error) {
	var channel models.SalesChannel
	err := r.db.WithContext(ctx).
		Where("name = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *repository) MarkProcessed(ctx context.Context, row *models.ProcessedWebhook) error {
	return r.db.WithContext(ctx).Create(row).Error
}
