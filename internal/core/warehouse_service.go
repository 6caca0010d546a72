package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WarehouseService maintains the registry of storage locations. Like items,
// warehouses are tombstoned, never physically deleted.
type WarehouseService interface {
	Create(ctx context.Context, input WarehouseInput) (*Warehouse, error)
	Get(ctx context.Context, id int) (*Warehouse, error)
	List(ctx context.Context, includeDeleted bool) ([]Warehouse, error)
	Delete(ctx context.Context, id int) error
	// EnsureOperational provisions the fixed set of operational warehouses.
	// Safe to call on every startup.
	EnsureOperational(ctx context.Context) error
}

type WarehouseInput struct {
	Code     string
	Name     string
	Type     WarehouseType
	Address  *string
	Manager  *string
	Capacity *int
}

// operationalWarehouses is the fixed set provisioned at startup.
var operationalWarehouses = []WarehouseInput{
	{Code: "MAIN", Name: "Main Warehouse", Type: WarehouseMain},
	{Code: "SAT-1", Name: "Satellite Warehouse 1", Type: WarehouseSatellite},
	{Code: "SAT-2", Name: "Satellite Warehouse 2", Type: WarehouseSatellite},
}

type warehouseService struct {
	pool *pgxpool.Pool
}

func NewWarehouseService(pool *pgxpool.Pool) WarehouseService {
	return &warehouseService{pool: pool}
}

const warehouseColumns = `id, code, name, wtype, address, manager, capacity, is_deleted, created_at`

func scanWarehouse(row pgx.Row) (*Warehouse, error) {
	var w Warehouse
	if err := row.Scan(
		&w.ID, &w.Code, &w.Name, &w.Type,
		&w.Address, &w.Manager, &w.Capacity, &w.IsDeleted, &w.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *warehouseService) Create(ctx context.Context, input WarehouseInput) (*Warehouse, error) {
	if input.Code == "" || input.Name == "" {
		return nil, fmt.Errorf("warehouse code and name are required")
	}
	wtype := input.Type
	if wtype == "" {
		wtype = WarehouseSatellite
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO warehouses (code, name, wtype, address, manager, capacity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+warehouseColumns,
		input.Code, input.Name, wtype, input.Address, input.Manager, input.Capacity,
	)
	w, err := scanWarehouse(row)
	if err != nil {
		return nil, fmt.Errorf("insert warehouse %s: %w", input.Code, err)
	}
	return w, nil
}

func (s *warehouseService) Get(ctx context.Context, id int) (*Warehouse, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+warehouseColumns+` FROM warehouses WHERE id = $1 AND NOT is_deleted`, id)
	w, err := scanWarehouse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("warehouse %d: %w", id, ErrWarehouseNotFound)
		}
		return nil, fmt.Errorf("get warehouse %d: %w", id, err)
	}
	return w, nil
}

func (s *warehouseService) List(ctx context.Context, includeDeleted bool) ([]Warehouse, error) {
	query := `SELECT ` + warehouseColumns + ` FROM warehouses`
	if !includeDeleted {
		query += ` WHERE NOT is_deleted`
	}
	query += ` ORDER BY code`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		warehouses = append(warehouses, *w)
	}
	return warehouses, rows.Err()
}

func (s *warehouseService) Delete(ctx context.Context, id int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int
	if err := tx.QueryRow(ctx,
		"SELECT id FROM warehouses WHERE id = $1 AND NOT is_deleted FOR UPDATE", id,
	).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("delete warehouse %d: %w", id, ErrWarehouseNotFound)
		}
		return fmt.Errorf("lock warehouse %d: %w", id, err)
	}

	var inUse bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM stock_snapshots
			WHERE warehouse_id = $1 AND (quantity > 0 OR reserved > 0)
		) OR EXISTS(
			SELECT 1 FROM movements WHERE warehouse_id = $1
		)`, id,
	).Scan(&inUse); err != nil {
		return fmt.Errorf("check warehouse %d usage: %w", id, err)
	}
	if inUse {
		return fmt.Errorf("delete warehouse %d: %w", id, ErrWarehouseInUse)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE warehouses SET is_deleted = TRUE WHERE id = $1", id,
	); err != nil {
		return fmt.Errorf("tombstone warehouse %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit warehouse delete: %w", err)
	}
	return nil
}

func (s *warehouseService) EnsureOperational(ctx context.Context) error {
	for _, w := range operationalWarehouses {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO warehouses (code, name, wtype)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO NOTHING`,
			w.Code, w.Name, w.Type,
		); err != nil {
			return fmt.Errorf("provision warehouse %s: %w", w.Code, err)
		}
	}
	return nil
}
