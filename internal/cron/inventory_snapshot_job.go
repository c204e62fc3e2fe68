package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stocksync-backend/pkg/bigquery"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

type snapshotWriter interface {
	WriteInventorySnapshot(ctx context.Context, rows []bigquery.InventorySnapshotRow) error
}

type InventorySnapshotJobParams struct {
	Logger    *logger.Logger
	Inventory inventoryLister
	Sink      snapshotWriter
}

// NewInventorySnapshotJob copies every inventory record into the BigQuery
// snapshot table.
func NewInventorySnapshotJob(params InventorySnapshotJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory lister required")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("snapshot sink required")
	}
	return &inventorySnapshotJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		sink:      params.Sink,
		now:       time.Now,
	}, nil
}

type inventorySnapshotJob struct {
	logg      *logger.Logger
	inventory inventoryLister
	sink      snapshotWriter
	now       func() time.Time
}

func (j *inventorySnapshotJob) Name() string { return "inventory-snapshot" }

func (j *inventorySnapshotJob) Run(ctx context.Context) error {
	records, err := j.inventory.ListInventory(ctx, false)
	if err != nil {
		return fmt.Errorf("inventory snapshot: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	at := j.now().UTC().Truncate(time.Second)
	rows := make([]bigquery.InventorySnapshotRow, 0, len(records))
	for _, record := range records {
		row := bigquery.InventorySnapshotRow{
			SnapshotAt:        at,
			VariantID:         record.VariantID.String(),
			QuantityAvailable: record.QuantityAvailable,
			QuantityReserved:  record.QuantityReserved,
			QuantitySold:      record.QuantitySold,
			MinStockThreshold: record.MinStockThreshold,
			LowStock:          record.QuantityAvailable <= record.MinStockThreshold,
		}
		if record.Variant != nil {
			row.SKU = record.Variant.SKU
		}
		rows = append(rows, row)
	}

	if err := j.sink.WriteInventorySnapshot(ctx, rows); err != nil {
		return fmt.Errorf("inventory snapshot: %w", err)
	}

	j.logg.Info(j.logg.WithField(ctx, "rows", len(rows)), "inventory snapshot written")
	return nil
}
