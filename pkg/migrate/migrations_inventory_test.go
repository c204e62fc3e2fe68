package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/stocksync-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matches %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestInventoryMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_inventory.sql")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS inventory (",
		"CONSTRAINT inventory_variant_id_key UNIQUE (variant_id)",
		"CHECK (quantity_available >= 0)",
		"CHECK (quantity_reserved >= 0)",
		"CHECK (quantity_sold >= 0)",
		"min_stock_threshold INTEGER NOT NULL DEFAULT 5",
		"BEFORE UPDATE OR DELETE ON inventory_transactions",
		"DROP TABLE IF EXISTS inventory_transactions",
	})
}

func TestInventoryStockVersionMigration(t *testing.T) {
	content := readMigration(t, "*_add_inventory_stock_version.sql")
	assertContains(t, content, []string{
		"ALTER TABLE inventory ADD COLUMN IF NOT EXISTS stock_version BIGINT NOT NULL DEFAULT 0",
		"ALTER TABLE inventory DROP COLUMN IF EXISTS stock_version",
	})
}

func TestSyncQueueMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_sync_queue.sql")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS sync_queue",
		"'UPDATE_STOCK', 'UPDATE_PRICE', 'CREATE_LISTING', 'DELETE_LISTING'",
		"'PENDING', 'PROCESSING', 'COMPLETED', 'FAILED'",
		"retry_count INTEGER NOT NULL DEFAULT 0",
		"idx_sync_queue_status_created",
		"DROP TABLE IF EXISTS sync_queue",
	})
}

func TestProcessedWebhooksMigrationIsUnique(t *testing.T) {
	content := readMigration(t, "*_create_processed_webhooks.sql")
	assertContains(t, content, []string{
		"CONSTRAINT processed_webhooks_webhook_id_key UNIQUE (webhook_id)",
	})
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.ValidateDir(""); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestCreateWritesValidMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	path, err := migrate.Create(dir, "Add Channel Regions!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260402100000_add_channel_regions.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.Create(dir, "add channel regions", now); err == nil {
		t.Fatal("expected an existing version to be refused")
	}
	if _, err := migrate.Create(dir, "!!!", now); err == nil {
		t.Fatal("expected an empty slug to fail")
	}
}

func TestValidateRejectsBrokenMigrations(t *testing.T) {
	cases := map[string]string{
		"no down":        "-- +goose Up\nCREATE TABLE x (id int);\n",
		"unbalanced":     "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n",
		"down before up": "-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			source := fstest.MapFS{"20260101000000_broken.sql": {Data: []byte(body)}}
			if err := migrate.Validate(source); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	bad := fstest.MapFS{"1_bad.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}}
	if err := migrate.Validate(bad); err == nil {
		t.Fatal("expected filename error")
	}
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260301090400")
	if err != nil || v != 20260301090400 {
		t.Fatalf("parse version: %d %v", v, err)
	}
	if _, err := migrate.ParseVersion("20261399000000"); err == nil {
		t.Fatal("expected invalid month to fail")
	}
}
