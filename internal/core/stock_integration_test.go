package core_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"backoffice-inventory/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed test DB. Fixed ids keep assertions readable; sequences
	// are bumped past them so service-created rows never collide.
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE movements, purchases, stock_snapshots, warehouses, items RESTART IDENTITY CASCADE;

		INSERT INTO warehouses (id, code, name, wtype) VALUES
		(1, 'MAIN',  'Main Warehouse',        'main'),
		(2, 'SAT-1', 'Satellite Warehouse 1', 'satellite');

		INSERT INTO items (id, sku, name, unit, category, safety_stock, sale_price, unit_cost, attribute_schema) VALUES
		(1, 'SKU-001', 'Widget A', 'pcs', 'widgets', 5, 500, 200,
		 '[{"key":"color","label":"Color","options":["red","blue"],"default":"red"}]'),
		(2, 'SKU-002', 'Widget B', 'pcs', 'widgets', 0, NULL, 120, NULL);

		SELECT setval('items_id_seq', 100);
		SELECT setval('warehouses_id_seq', 100);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

// seedStock writes a snapshot row directly, bypassing the ledger, for tests
// that only exercise reads and reservations.
func seedStock(t *testing.T, pool *pgxpool.Pool, itemID, warehouseID int, qty, reserved int64) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO stock_snapshots (item_id, warehouse_id, quantity, reserved)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id, warehouse_id)
		DO UPDATE SET quantity = $3, reserved = $4`,
		itemID, warehouseID, qty, reserved)
	if err != nil {
		t.Fatalf("Failed to seed stock: %v", err)
	}
}

func mustSnapshot(t *testing.T, svc core.StockService, itemID, warehouseID int) core.StockSnapshot {
	t.Helper()
	snap, err := svc.Get(context.Background(), itemID, warehouseID)
	if err != nil {
		t.Fatalf("Get snapshot failed: %v", err)
	}
	return snap
}

func TestStock_AbsentSnapshotReadsAsZero(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewStockService(pool)
	snap := mustSnapshot(t, svc, 1, 1)
	if !snap.Quantity.IsZero() || !snap.Reserved.IsZero() {
		t.Errorf("Expected zero snapshot, got quantity=%s reserved=%s", snap.Quantity, snap.Reserved)
	}
	if !snap.Available().IsZero() {
		t.Errorf("Expected zero available, got %s", snap.Available())
	}
}

func TestStock_ReserveAndRelease(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	svc := core.NewStockService(pool)
	seedStock(t, pool, 1, 1, 10, 0)

	if err := svc.Reserve(ctx, 1, 1, decimal.NewFromInt(4)); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	snap := mustSnapshot(t, svc, 1, 1)
	if !snap.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Reservation must not change quantity, got %s", snap.Quantity)
	}
	if !snap.Reserved.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected reserved=4, got %s", snap.Reserved)
	}
	if !snap.Available().Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected available=6, got %s", snap.Available())
	}

	if err := svc.Release(ctx, 1, 1, decimal.NewFromInt(4)); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	snap = mustSnapshot(t, svc, 1, 1)
	if !snap.Reserved.IsZero() {
		t.Errorf("Expected reserved=0 after release, got %s", snap.Reserved)
	}
}

func TestStock_ReserveInsufficient(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	svc := core.NewStockService(pool)
	seedStock(t, pool, 1, 1, 10, 7)

	err := svc.Reserve(ctx, 1, 1, decimal.NewFromInt(4))
	if !errors.Is(err, core.ErrReserveInsufficient) {
		t.Fatalf("Expected ErrReserveInsufficient, got %v", err)
	}
	if code := core.ErrorCode(err); code != "RESERVE_INSUFFICIENT" {
		t.Errorf("Expected code RESERVE_INSUFFICIENT, got %q", code)
	}

	// Failed reserve leaves the snapshot untouched.
	snap := mustSnapshot(t, svc, 1, 1)
	if !snap.Reserved.Equal(decimal.NewFromInt(7)) {
		t.Errorf("Expected reserved=7 unchanged, got %s", snap.Reserved)
	}
}

func TestStock_ReleaseExceedsReserved(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	svc := core.NewStockService(pool)
	seedStock(t, pool, 1, 1, 10, 2)

	err := svc.Release(ctx, 1, 1, decimal.NewFromInt(3))
	if !errors.Is(err, core.ErrReserveExceeds) {
		t.Fatalf("Expected ErrReserveExceeds, got %v", err)
	}
}

func TestStock_ReserveUnknownItem(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewStockService(pool)
	err := svc.Reserve(context.Background(), 999, 1, decimal.NewFromInt(1))
	if !errors.Is(err, core.ErrItemNotFound) {
		t.Fatalf("Expected ErrItemNotFound, got %v", err)
	}
}

// Reservations gate outbound movements: with 10 on hand and 4 reserved, a
// sale of 7 must fail even though raw quantity would cover it.
func TestStock_ReservationGatesOutbound(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	stockSvc := core.NewStockService(pool)
	outSvc := core.NewOutboundService(pool)
	seedStock(t, pool, 1, 1, 10, 4)

	_, err := outSvc.Create(ctx, core.OutboundInput{
		ItemID: 1, WarehouseID: 1,
		Quantity: decimal.NewFromInt(7),
		Type:     core.MovementSale,
	})
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	snap := mustSnapshot(t, stockSvc, 1, 1)
	if !snap.Quantity.Equal(decimal.NewFromInt(10)) || !snap.Reserved.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Failed sale must not touch the snapshot, got quantity=%s reserved=%s",
			snap.Quantity, snap.Reserved)
	}

	// A sale within the available window goes through.
	if _, err := outSvc.Create(ctx, core.OutboundInput{
		ItemID: 1, WarehouseID: 1,
		Quantity: decimal.NewFromInt(6),
		Type:     core.MovementSale,
	}); err != nil {
		t.Fatalf("Sale within available stock failed: %v", err)
	}
	snap = mustSnapshot(t, stockSvc, 1, 1)
	if !snap.Quantity.Equal(decimal.NewFromInt(4)) || !snap.Reserved.Equal(decimal.NewFromInt(4)) {
		t.Errorf("After sale: expected quantity=4 reserved=4, got %s / %s",
			snap.Quantity, snap.Reserved)
	}
}

func TestStock_Levels(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewStockService(pool)
	seedStock(t, pool, 1, 1, 10, 3)
	seedStock(t, pool, 2, 2, 5, 0)

	levels, err := svc.Levels(context.Background())
	if err != nil {
		t.Fatalf("Levels failed: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("Expected 2 stock levels, got %d", len(levels))
	}

	// Ordered by SKU, then warehouse code.
	first := levels[0]
	if first.SKU != "SKU-001" || first.WarehouseCode != "MAIN" {
		t.Errorf("Unexpected first level: %s @ %s", first.SKU, first.WarehouseCode)
	}
	if !first.Available.Equal(decimal.NewFromInt(7)) {
		t.Errorf("Expected available=7, got %s", first.Available)
	}
	if !first.UnitCost.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected unit cost 200, got %s", first.UnitCost)
	}
}
