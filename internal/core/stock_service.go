package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockService is the snapshot store and reservation manager. Snapshots are
// a read-optimized cache over the movement ledger: every mutation happens in
// the same transaction as the ledger append that justifies it. Reservations
// adjust the reserved column only and never write ledger rows.
type StockService interface {
	// Get treats a missing snapshot as {0, 0}.
	Get(ctx context.Context, itemID, warehouseID int) (StockSnapshot, error)
	Available(ctx context.Context, itemID, warehouseID int) (decimal.Decimal, error)
	// Levels lists all snapshots joined with item and warehouse identity.
	Levels(ctx context.Context) ([]StockLevel, error)

	// Reserve holds stock for an external order flow; fails with
	// ErrReserveInsufficient when available < qty.
	Reserve(ctx context.Context, itemID, warehouseID int, qty decimal.Decimal) error
	// Release returns held stock; fails with ErrReserveExceeds when
	// reserved < qty.
	Release(ctx context.Context, itemID, warehouseID int, qty decimal.Decimal) error
}

type stockService struct {
	pool *pgxpool.Pool
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool}
}

func (s *stockService) Get(ctx context.Context, itemID, warehouseID int) (StockSnapshot, error) {
	snap := StockSnapshot{ItemID: itemID, WarehouseID: warehouseID,
		Quantity: decimal.Zero, Reserved: decimal.Zero}
	err := s.pool.QueryRow(ctx, `
		SELECT quantity, reserved FROM stock_snapshots
		WHERE item_id = $1 AND warehouse_id = $2`,
		itemID, warehouseID,
	).Scan(&snap.Quantity, &snap.Reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return snap, nil
		}
		return snap, fmt.Errorf("get snapshot (%d,%d): %w", itemID, warehouseID, err)
	}
	return snap, nil
}

func (s *stockService) Available(ctx context.Context, itemID, warehouseID int) (decimal.Decimal, error) {
	snap, err := s.Get(ctx, itemID, warehouseID)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Available(), nil
}

func (s *stockService) Levels(ctx context.Context) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.sku, i.name, w.id, w.code,
		       ss.quantity, ss.reserved, ss.quantity - ss.reserved, i.unit_cost
		FROM stock_snapshots ss
		JOIN items i      ON i.id = ss.item_id
		JOIN warehouses w ON w.id = ss.warehouse_id
		WHERE NOT i.is_deleted AND NOT w.is_deleted
		ORDER BY i.sku, w.code`)
	if err != nil {
		return nil, fmt.Errorf("query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(
			&sl.ItemID, &sl.SKU, &sl.ItemName, &sl.WarehouseID, &sl.WarehouseCode,
			&sl.Quantity, &sl.Reserved, &sl.Available, &sl.UnitCost,
		); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

func (s *stockService) Reserve(ctx context.Context, itemID, warehouseID int, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("reserve quantity must be positive, got %s", qty)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockItemRow(ctx, tx, itemID); err != nil {
		return err
	}

	// Conditional update: commits only while reserved stays within
	// [0, quantity]. Zero rows affected means the hold would overshoot.
	tag, err := tx.Exec(ctx, `
		UPDATE stock_snapshots
		SET reserved = reserved + $3, updated_at = NOW()
		WHERE item_id = $1 AND warehouse_id = $2 AND quantity - reserved >= $3`,
		itemID, warehouseID, qty,
	)
	if err != nil {
		return fmt.Errorf("reserve stock (%d,%d): %w", itemID, warehouseID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reserve %s of item %d in warehouse %d: %w",
			qty, itemID, warehouseID, ErrReserveInsufficient)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	return nil
}

func (s *stockService) Release(ctx context.Context, itemID, warehouseID int, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("release quantity must be positive, got %s", qty)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockItemRow(ctx, tx, itemID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE stock_snapshots
		SET reserved = reserved - $3, updated_at = NOW()
		WHERE item_id = $1 AND warehouse_id = $2 AND reserved >= $3`,
		itemID, warehouseID, qty,
	)
	if err != nil {
		return fmt.Errorf("release stock (%d,%d): %w", itemID, warehouseID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release %s of item %d in warehouse %d: %w",
			qty, itemID, warehouseID, ErrReserveExceeds)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

// lockItemRow acquires the per-item row lock every mutating path takes,
// serializing concurrent mutations against one item for the transaction's
// duration. Tombstoned items are indistinguishable from absent ones.
func lockItemRow(ctx context.Context, tx pgx.Tx, itemID int) error {
	var id int
	err := tx.QueryRow(ctx,
		"SELECT id FROM items WHERE id = $1 AND NOT is_deleted FOR UPDATE", itemID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
		}
		return fmt.Errorf("lock item %d: %w", itemID, err)
	}
	return nil
}

// addQuantityTx is the atomic upsert-increment behind every inbound leg:
// creates the snapshot lazily on first movement, otherwise bumps quantity.
func addQuantityTx(ctx context.Context, tx pgx.Tx, itemID, warehouseID int, delta decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_snapshots (item_id, warehouse_id, quantity, reserved)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (item_id, warehouse_id)
		DO UPDATE SET quantity = stock_snapshots.quantity + $3, updated_at = NOW()`,
		itemID, warehouseID, delta,
	)
	if err != nil {
		return fmt.Errorf("add quantity (%d,%d): %w", itemID, warehouseID, err)
	}
	return nil
}

// deductAvailableTx decrements quantity guarded by a minimum-availability
// check inside the UPDATE itself, so a request racing past the caller's
// read-side check is still caught: zero rows affected means insufficient
// stock, not a missed row.
func deductAvailableTx(ctx context.Context, tx pgx.Tx, itemID, warehouseID int, qty decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE stock_snapshots
		SET quantity = quantity - $3, updated_at = NOW()
		WHERE item_id = $1 AND warehouse_id = $2 AND quantity - reserved >= $3`,
		itemID, warehouseID, qty,
	)
	if err != nil {
		return fmt.Errorf("deduct stock (%d,%d): %w", itemID, warehouseID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deduct %s of item %d in warehouse %d: %w",
			qty, itemID, warehouseID, ErrInsufficientStock)
	}
	return nil
}
