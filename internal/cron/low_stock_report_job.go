package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox/payloads"
)

const defaultLowStockWindow = 24 * time.Hour

type inventoryLister interface {
	ListInventory(ctx context.Context, lowStockOnly bool) ([]models.InventoryRecord, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type recentEventChecker interface {
	ExistsSinceTx(tx *gorm.DB, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID, since time.Time) (bool, error)
}

type LowStockReportJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Inventory inventoryLister
	Outbox    eventEmitter
	Recent    recentEventChecker
	// Window suppresses a repeat event for a variant already reported inside it.
	Window time.Duration
}

// NewLowStockReportJob emits low_stock_detected for every variant at or below
// its threshold that has not been reported within the window.
func NewLowStockReportJob(params LowStockReportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory lister required")
	}
	if params.Outbox == nil || params.Recent == nil {
		return nil, fmt.Errorf("outbox required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultLowStockWindow
	}
	return &lowStockReportJob{
		logg:      params.Logger,
		db:        params.DB,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		recent:    params.Recent,
		window:    window,
		now:       time.Now,
	}, nil
}

type lowStockReportJob struct {
	logg      *logger.Logger
	db        txRunner
	inventory inventoryLister
	outbox    eventEmitter
	recent    recentEventChecker
	window    time.Duration
	now       func() time.Time
}

func (j *lowStockReportJob) Name() string { return "low-stock-report" }

func (j *lowStockReportJob) Run(ctx context.Context) error {
	records, err := j.inventory.ListInventory(ctx, true)
	if err != nil {
		return fmt.Errorf("low stock report: %w", err)
	}
	since := j.now().UTC().Add(-j.window)

	var (
		emitted int
		errs    error
	)
	for _, record := range records {
		sent, err := j.report(ctx, record, since)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("variant %s: %w", record.VariantID, err))
			continue
		}
		if sent {
			emitted++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"low_stock": len(records),
		"emitted":   emitted,
	}), "low stock report complete")
	return errs
}

func (j *lowStockReportJob) report(ctx context.Context, record models.InventoryRecord, since time.Time) (bool, error) {
	sent := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		exists, err := j.recent.ExistsSinceTx(tx, enums.EventLowStockDetected, enums.AggregateInventory, record.VariantID, since)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		data := payloads.LowStockDetectedEvent{
			VariantID:         record.VariantID,
			QuantityAvailable: record.QuantityAvailable,
			MinStockThreshold: record.MinStockThreshold,
		}
		if record.Variant != nil {
			data.SKU = record.Variant.SKU
		}
		if err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLowStockDetected,
			AggregateType: enums.AggregateInventory,
			AggregateID:   record.VariantID,
			Actor:         &outbox.ActorRef{Role: string(enums.OperatorRoleSystem), Source: "cron"},
			Data:          data,
		}); err != nil {
			return err
		}
		sent = true
		return nil
	})
	return sent, err
}
