package infra

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jlongo78/joe-ritchey-machining/internal/model"
)

// NewDatabase establishes a GORM connection backed by pgx, migrates the
// pricing tables, then applies the idempotent SQL patches GORM cannot express
// (partial indexes, check constraints).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates every table the engine reads or writes.
// Products, categories and brands are owned by the catalog, but they are
// migrated here too so a fresh database (and the integration tests) work.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Brand{},
		&model.Category{},
		&model.Product{},
		&model.Supplier{},
		&model.SupplierAPIConfig{},
		&model.ProductSupplier{},
		&model.CompetitorConfig{},
		&model.PriceAdjustmentRule{},
		&model.PriceHistory{},
		&model.PriceAdjustmentLog{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot handle on its
// own. Each statement is guarded so re-running on a patched DB is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// LowestCompetitorPrice: latest observation per competitor and product
		{"competitor observation index", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_price_history_competitor') THEN
    CREATE INDEX idx_price_history_competitor
        ON price_history (product_id, competitor_id, recorded_at DESC)
        WHERE competitor_id IS NOT NULL;
  END IF;
END $$`},
		// approval queue
		{"pending adjustments index", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_adjustments_pending') THEN
    CREATE INDEX idx_adjustments_pending
        ON price_adjustment_logs (created_at)
        WHERE status = 'pending_approval';
  END IF;
END $$`},
		{"supplier sku lookup index", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_product_suppliers_supplier_sku') THEN
    CREATE UNIQUE INDEX idx_product_suppliers_supplier_sku
        ON product_suppliers (supplier_id, supplier_sku);
  END IF;
END $$`},
		{"product margin bounds check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_products_margin_bounds') THEN
    ALTER TABLE products ADD CONSTRAINT chk_products_margin_bounds CHECK (
      (min_margin_percent IS NULL OR (min_margin_percent >= 0 AND min_margin_percent < 100)) AND
      (max_margin_percent IS NULL OR (max_margin_percent >= 0 AND max_margin_percent < 100)) AND
      (min_margin_percent IS NULL OR max_margin_percent IS NULL OR min_margin_percent <= max_margin_percent)
    );
  END IF;
END $$`},
		{"product price positive check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_products_prices_positive') THEN
    ALTER TABLE products ADD CONSTRAINT chk_products_prices_positive
      CHECK (cost >= 0 AND retail_price >= 0);
  END IF;
END $$`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
