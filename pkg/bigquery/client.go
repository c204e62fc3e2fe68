package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

const (
	metadataTimeout = 10 * time.Second
	// streaming inserts reject requests much above this row count
	insertBatchSize = 500
)

// Client streams inventory snapshots into one BigQuery table.
type Client struct {
	client *bigquery.Client
	table  *bigquery.Table
	logg   *logger.Logger
}

// NewClient connects and makes sure the snapshot table exists. The dataset
// must already exist; the table is created day-partitioned on snapshot_at
// when missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	tableID := strings.TrimSpace(cfg.InventoryTable)
	switch {
	case projectID == "":
		return nil, errors.New("gcp project id is required")
	case datasetID == "":
		return nil, errors.New("bigquery dataset is required")
	case tableID == "":
		return nil, errors.New("bigquery inventory table is required")
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{client: bq, table: bq.Dataset(datasetID).Table(tableID), logg: logg}
	if err := c.ensureTable(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"bq_project": projectID,
			"bq_table":   datasetID + "." + tableID,
		}), "bigquery snapshot sink ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// snapshotTableMetadata describes the table created on first use.
func snapshotTableMetadata() (*bigquery.TableMetadata, error) {
	schema, err := bigquery.InferSchema(InventorySnapshotRow{})
	if err != nil {
		return nil, fmt.Errorf("infer snapshot schema: %w", err)
	}
	return &bigquery.TableMetadata{
		Description: "Periodic copies of the StockSync inventory ledger.",
		Schema:      schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "snapshot_at",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"variant_id"}},
	}, nil
}

func (c *Client) ensureTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	_, err := c.table.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("checking table %s: %w", c.table.FullyQualifiedName(), err)
	}
	meta, err := snapshotTableMetadata()
	if err != nil {
		return err
	}
	if err := c.table.Create(ctx, meta); err != nil {
		return fmt.Errorf("creating table %s: %w", c.table.FullyQualifiedName(), err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "bq_table", c.table.FullyQualifiedName()), "created inventory snapshot table")
	}
	return nil
}

// WriteInventorySnapshot streams rows in batches. Rows BigQuery rejects are
// reported together after every batch has been attempted.
func (c *Client) WriteInventorySnapshot(ctx context.Context, rows []InventorySnapshotRow) error {
	inserter := c.table.Inserter()
	var rejected []error
	for _, batch := range batches(rows, insertBatchSize) {
		err := inserter.Put(ctx, batch)
		if err == nil {
			continue
		}
		var multi bigquery.PutMultiError
		if !errors.As(err, &multi) {
			return fmt.Errorf("insert snapshot rows: %w", err)
		}
		rejected = append(rejected, rowErrors(multi)...)
	}
	if len(rejected) > 0 {
		return fmt.Errorf("%d of %d snapshot rows rejected: %w", len(rejected), len(rows), errors.Join(rejected...))
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func batches[T any](rows []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(rows); start += size {
		out = append(out, rows[start:min(start+size, len(rows))])
	}
	return out
}

func rowErrors(multi bigquery.PutMultiError) []error {
	out := make([]error, 0, len(multi))
	for _, rowErr := range multi {
		out = append(out, fmt.Errorf("row %s: %v", rowErr.InsertID, rowErr.Errors))
	}
	return out
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
