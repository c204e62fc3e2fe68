package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// InventorySnapshotRow is one variant's counters at snapshot time. The
// bigquery tags drive the schema used when the table is created.
type InventorySnapshotRow struct {
	SnapshotAt        time.Time `bigquery:"snapshot_at"`
	VariantID         string    `bigquery:"variant_id"`
	SKU               string    `bigquery:"sku"`
	QuantityAvailable int       `bigquery:"quantity_available"`
	QuantityReserved  int       `bigquery:"quantity_reserved"`
	QuantitySold      int       `bigquery:"quantity_sold"`
	MinStockThreshold int       `bigquery:"min_stock_threshold"`
	LowStock          bool      `bigquery:"low_stock"`
}

// Save implements bigquery.ValueSaver. The insert id makes a retried cron run
// for the same snapshot instant dedupe on the BigQuery side.
func (r InventorySnapshotRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"snapshot_at":         r.SnapshotAt,
		"variant_id":          r.VariantID,
		"sku":                 r.SKU,
		"quantity_available":  r.QuantityAvailable,
		"quantity_reserved":   r.QuantityReserved,
		"quantity_sold":       r.QuantitySold,
		"min_stock_threshold": r.MinStockThreshold,
		"low_stock":           r.LowStock,
	}, r.VariantID + "@" + r.SnapshotAt.UTC().Format(time.RFC3339), nil
}
