package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// JobQueuer inserts sync jobs inside the caller's transaction.
type JobQueuer interface {
	QueueSync(ctx context.Context, tx *gorm.DB, variantID *uuid.UUID, channelID uuid.UUID, action enums.SyncAction, payload any) (*models.SyncJob, error)
}

type credentialSealer interface {
	Seal(plain json.RawMessage) (json.RawMessage, error)
}

// Service manages sales channels, their listings and direct channel calls.
type Service interface {
	CreateChannel(ctx context.Context, input CreateChannelInput) (*models.SalesChannel, error)
	UpdateChannel(ctx context.Context, id uuid.UUID, input UpdateChannelInput) (*models.SalesChannel, error)
	DeleteChannel(ctx context.Context, id uuid.UUID) error
	GetChannel(ctx context.Context, id uuid.UUID) (*models.SalesChannel, error)
	GetChannelByName(ctx context.Context, name string) (*models.SalesChannel, error)
	ListChannels(ctx context.Context, activeOnly bool) ([]models.SalesChannel, error)
	TestConnection(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateChannelStock(ctx context.Context, variantID, channelID uuid.UUID, quantity int) error

	CreateListing(ctx context.Context, input CreateListingInput) (*models.ChannelListing, *models.SyncJob, error)
	UpdateListing(ctx context.Context, id uuid.UUID, input UpdateListingInput) (*models.ChannelListing, *models.SyncJob, error)
	DeleteListing(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)
	GetListing(ctx context.Context, id uuid.UUID) (*models.ChannelListing, error)
	ListListings(ctx context.Context, filters ListingFilters) ([]models.ChannelListing, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	queue    JobQueuer
	adapters AdapterProvider
	sealer   credentialSealer
	logg     *logger.Logger
}

func NewService(repo Repository, tx txRunner, queue JobQueuer, adapters AdapterProvider, sealer credentialSealer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("channels repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if queue == nil {
		return nil, fmt.Errorf("job queuer required")
	}
	if adapters == nil {
		return nil, fmt.Errorf("adapter provider required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, queue: queue, adapters: adapters, sealer: sealer, logg: logg}, nil
}

func (s *service) CreateChannel(ctx context.Context, input CreateChannelInput) (*models.SalesChannel, error) {
	kind, err := enums.ParseChannelKind(input.Name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel name")
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name required")
	}
	if err := validateJSONObject("config", input.Config); err != nil {
		return nil, err
	}
	credentials, err := s.seal(input.APICredentials)
	if err != nil {
		return nil, err
	}

	channel := &models.SalesChannel{
		Name:           kind.String(),
		DisplayName:    displayName,
		IsActive:       input.IsActive == nil || *input.IsActive,
		APICredentials: credentials,
		Config:         input.Config,
	}
	if err := s.repo.CreateChannel(ctx, channel); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "channel already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create channel")
	}
	return channel, nil
}

func (s *service) UpdateChannel(ctx context.Context, id uuid.UUID, input UpdateChannelInput) (*models.SalesChannel, error) {
	updates := map[string]any{}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name required")
		}
		updates["display_name"] = name
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.APICredentials != nil {
		sealed, err := s.seal(input.APICredentials)
		if err != nil {
			return nil, err
		}
		updates["api_credentials"] = sealed
	}
	if input.Config != nil {
		if err := validateJSONObject("config", input.Config); err != nil {
			return nil, err
		}
		updates["config"] = input.Config
	}

	if _, err := s.GetChannel(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateChannel(ctx, id, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update channel")
	}
	return s.GetChannel(ctx, id)
}

// DeleteChannel refuses while listings or orders still reference the channel.
// Deactivate it instead to stop new sync jobs.
func (s *service) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		refs, err := repo.CountReferences(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count channel references")
		}
		if refs > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "channel still has listings or orders; deactivate it instead")
		}
		deleted, err := repo.DeleteChannel(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete channel")
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeNotFound, "channel not found")
		}
		return nil
	})
}

func (s *service) GetChannel(ctx context.Context, id uuid.UUID) (*models.SalesChannel, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	channel, err := s.repo.FindChannel(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "channel not found", "load channel")
	}
	return channel, nil
}

func (s *service) GetChannelByName(ctx context.Context, name string) (*models.SalesChannel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel name required")
	}
	channel, err := s.repo.FindChannelByName(ctx, name)
	if err != nil {
		return nil, notFoundOr(err, "channel not found", "load channel")
	}
	return channel, nil
}

func (s *service) ListChannels(ctx context.Context, activeOnly bool) ([]models.SalesChannel, error) {
	channels, err := s.repo.ListChannels(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list channels")
	}
	return channels, nil
}

func (s *service) TestConnection(ctx context.Context, id uuid.UUID) (bool, error) {
	channel, err := s.GetChannel(ctx, id)
	if err != nil {
		return false, err
	}
	adapter, err := s.adapters.ForChannel(*channel)
	if err != nil {
		return false, err
	}
	ok := adapter.TestConnection(ctx)
	logCtx := s.logg.WithFields(ctx, map[string]any{"channel": channel.Name, "connected": ok})
	s.logg.Info(logCtx, "channel connection tested")
	return ok, nil
}

// UpdateChannelStock pushes a quantity to one channel immediately, bypassing the queue.
func (s *service) UpdateChannelStock(ctx context.Context, variantID, channelID uuid.UUID, quantity int) error {
	if quantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	listing, err := s.repo.FindListingByPair(ctx, variantID, channelID)
	if err != nil {
		return notFoundOr(err, "listing not found on channel", "load listing")
	}
	if listing.ExternalID == nil || *listing.ExternalID == "" || listing.Channel == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found on channel")
	}
	adapter, err := s.adapters.ForChannel(*listing.Channel)
	if err != nil {
		return err
	}
	if err := adapter.UpdateStock(ctx, *listing.ExternalID, quantity); err != nil {
		return AdapterError(adapter.Kind(), "update stock", err)
	}
	if _, err := s.repo.UpdateListing(ctx, listing.ID, map[string]any{"last_synced_at": time.Now().UTC()}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp listing sync")
	}
	return nil
}

func (s *service) CreateListing(ctx context.Context, input CreateListingInput) (*models.ChannelListing, *models.SyncJob, error) {
	if input.VariantID == uuid.Nil || input.ChannelID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id and channel id required")
	}
	if !input.Price.IsPositive() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}

	var (
		listing *models.ChannelListing
		job     *models.SyncJob
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		channel, err := repo.FindChannel(ctx, input.ChannelID)
		if err != nil {
			return notFoundOr(err, "channel not found", "load channel")
		}
		variant, record, err := repo.FindVariant(ctx, input.VariantID)
		if err != nil {
			return notFoundOr(err, "variant not found", "load variant")
		}

		listing = &models.ChannelListing{
			VariantID:  variant.ID,
			ChannelID:  channel.ID,
			ChannelSKU: input.ChannelSKU,
			Price:      input.Price.Round(2),
			IsActive:   true,
		}
		if err := repo.CreateListing(ctx, listing); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "variant already listed on channel")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
		}

		job, err = s.queue.QueueSync(ctx, tx, &variant.ID, channel.ID, enums.SyncActionCreateListing, buildListingPayload(listing, variant, record))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return listing, job, nil
}

func (s *service) UpdateListing(ctx context.Context, id uuid.UUID, input UpdateListingInput) (*models.ChannelListing, *models.SyncJob, error) {
	if input.Price != nil && !input.Price.IsPositive() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}

	var job *models.SyncJob
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := repo.FindListing(ctx, id)
		if err != nil {
			return notFoundOr(err, "listing not found", "load listing")
		}

		updates := map[string]any{}
		priceChanged := false
		if input.Price != nil {
			price := input.Price.Round(2)
			if !price.Equal(listing.Price) {
				updates["price"] = price
				priceChanged = true
			}
		}
		if input.IsActive != nil {
			updates["is_active"] = *input.IsActive
		}
		if input.ChannelSKU != nil {
			updates["channel_sku"] = *input.ChannelSKU
		}
		if _, err := repo.UpdateListing(ctx, listing.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing")
		}

		if priceChanged && listing.ExternalID != nil && *listing.ExternalID != "" {
			job, err = s.queue.QueueSync(ctx, tx, &listing.VariantID, listing.ChannelID, enums.SyncActionUpdatePrice, map[string]any{
				"externalId": *listing.ExternalID,
				"price":      input.Price.Round(2),
				"listingId":  listing.ID,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	listing, err := s.GetListing(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return listing, job, nil
}

// DeleteListing queues the remote delete; the worker deactivates the listing on success.
// A listing that never reached the channel is deactivated right away.
func (s *service) DeleteListing(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	var job *models.SyncJob
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := repo.FindListing(ctx, id)
		if err != nil {
			return notFoundOr(err, "listing not found", "load listing")
		}
		if listing.ExternalID == nil || *listing.ExternalID == "" {
			if _, err := repo.UpdateListing(ctx, listing.ID, map[string]any{"is_active": false}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate listing")
			}
			return nil
		}
		job, err = s.queue.QueueSync(ctx, tx, &listing.VariantID, listing.ChannelID, enums.SyncActionDeleteListing, map[string]any{
			"externalId": *listing.ExternalID,
			"listingId":  listing.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *service) GetListing(ctx context.Context, id uuid.UUID) (*models.ChannelListing, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	listing, err := s.repo.FindListing(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "listing not found", "load listing")
	}
	return listing, nil
}

func (s *service) ListListings(ctx context.Context, filters ListingFilters) ([]models.ChannelListing, error) {
	listings, err := s.repo.ListListings(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
	}
	return listings, nil
}

func (s *service) seal(credentials json.RawMessage) (json.RawMessage, error) {
	if len(credentials) == 0 {
		return nil, nil
	}
	if err := validateJSONObject("apiCredentials", credentials); err != nil {
		return nil, err
	}
	if s.sealer == nil {
		return credentials, nil
	}
	sealed, err := s.sealer.Seal(credentials)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal channel credentials")
	}
	return sealed, nil
}

func buildListingPayload(listing *models.ChannelListing, variant *models.Variant, record *models.InventoryRecord) map[string]any {
	product := map[string]any{"id": variant.ProductID}
	if variant.Product != nil {
		product["name"] = variant.Product.Name
		if variant.Product.Description != nil {
			product["description"] = *variant.Product.Description
		}
	}
	inventory := 0
	if record != nil {
		inventory = record.QuantityAvailable
	}
	v := map[string]any{
		"id":        variant.ID,
		"sku":       variant.SKU,
		"price":     listing.Price,
		"inventory": inventory,
	}
	if variant.Barcode != nil {
		v["barcode"] = *variant.Barcode
	}
	if listing.ChannelSKU != nil {
		v["channelSku"] = *listing.ChannelSKU
	}
	return map[string]any{
		"listingId": listing.ID,
		"product":   product,
		"variant":   v,
	}
}

func validateJSONObject(field string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" must be a json object")
	}
	return nil
}

func notFoundOr(err error, notFound, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
