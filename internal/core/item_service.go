package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ItemService maintains the SKU catalog. Deletion is a tombstone flag and is
// refused while the item has stock, reservations or ledger history.
type ItemService interface {
	Create(ctx context.Context, input ItemInput) (*Item, error)
	Update(ctx context.Context, id int, input ItemInput) (*Item, error)
	Get(ctx context.Context, id int) (*Item, error)
	List(ctx context.Context, includeDeleted bool) ([]Item, error)
	Delete(ctx context.Context, id int) error
}

type ItemInput struct {
	SKU             string
	Name            string
	Unit            string
	Category        string
	SafetyStock     decimal.Decimal
	SalePrice       *decimal.Decimal
	AttributeSchema []AttributeField
}

type itemService struct {
	pool *pgxpool.Pool
}

func NewItemService(pool *pgxpool.Pool) ItemService {
	return &itemService{pool: pool}
}

const itemColumns = `id, sku, name, unit, category, safety_stock, sale_price, unit_cost,
	       attribute_schema, is_deleted, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	var rawSchema []byte
	if err := row.Scan(
		&it.ID, &it.SKU, &it.Name, &it.Unit, &it.Category,
		&it.SafetyStock, &it.SalePrice, &it.UnitCost,
		&rawSchema, &it.IsDeleted, &it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	it.AttributeSchema = parseAttributeSchema(rawSchema)
	return &it, nil
}

func (s *itemService) Create(ctx context.Context, input ItemInput) (*Item, error) {
	if input.SKU == "" || input.Name == "" {
		return nil, fmt.Errorf("item sku and name are required")
	}
	unit := input.Unit
	if unit == "" {
		unit = "unit"
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO items (sku, name, unit, category, safety_stock, sale_price, attribute_schema)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+itemColumns,
		input.SKU, input.Name, unit, input.Category, input.SafetyStock,
		input.SalePrice, marshalJSONOrNil(input.AttributeSchema),
	)
	it, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("insert item %s: %w", input.SKU, err)
	}
	return it, nil
}

func (s *itemService) Update(ctx context.Context, id int, input ItemInput) (*Item, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE items
		SET sku = $2, name = $3, unit = $4, category = $5,
		    safety_stock = $6, sale_price = $7, attribute_schema = $8,
		    updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+itemColumns,
		id, input.SKU, input.Name, input.Unit, input.Category,
		input.SafetyStock, input.SalePrice, marshalJSONOrNil(input.AttributeSchema),
	)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("update item %d: %w", id, ErrItemNotFound)
		}
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	return it, nil
}

func (s *itemService) Get(ctx context.Context, id int) (*Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 AND NOT is_deleted`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", id, ErrItemNotFound)
		}
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return it, nil
}

func (s *itemService) List(ctx context.Context, includeDeleted bool) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	if !includeDeleted {
		query += ` WHERE NOT is_deleted`
	}
	query += ` ORDER BY sku`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// Delete tombstones an item. The item row is locked for the duration so a
// concurrent movement cannot slip in between the usage check and the flag.
func (s *itemService) Delete(ctx context.Context, id int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int
	if err := tx.QueryRow(ctx,
		"SELECT id FROM items WHERE id = $1 AND NOT is_deleted FOR UPDATE", id,
	).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("delete item %d: %w", id, ErrItemNotFound)
		}
		return fmt.Errorf("lock item %d: %w", id, err)
	}

	var inUse bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM stock_snapshots
			WHERE item_id = $1 AND (quantity > 0 OR reserved > 0)
		) OR EXISTS(
			SELECT 1 FROM movements WHERE item_id = $1
		)`, id,
	).Scan(&inUse); err != nil {
		return fmt.Errorf("check item %d usage: %w", id, err)
	}
	if inUse {
		return fmt.Errorf("delete item %d: %w", id, ErrItemInUse)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE items SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1", id,
	); err != nil {
		return fmt.Errorf("tombstone item %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit item delete: %w", err)
	}
	return nil
}
