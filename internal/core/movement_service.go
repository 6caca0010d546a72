package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MovementService is read access to the append-only ledger, the audit source
// of truth. Rows are inserted by the orchestrators only (appendMovementTx)
// and are never updated; the sole deletion path is the administrative revert
// on the outbound side.
type MovementService interface {
	Get(ctx context.Context, id int) (*Movement, error)
	Query(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// MovementFilter narrows a ledger query. Nil fields are not applied.
type MovementFilter struct {
	ItemID       *int
	WarehouseID  *int
	Direction    *MovementDirection
	Type         *MovementType
	PurchaseID   *int
	TransferID   *string
	OccurredFrom *time.Time
	OccurredTo   *time.Time
	Limit        int
	Offset       int
}

type movementService struct {
	pool *pgxpool.Pool
}

func NewMovementService(pool *pgxpool.Pool) MovementService {
	return &movementService{pool: pool}
}

const movementColumns = `id, direction, movement_type, item_id, warehouse_id, quantity,
	       unit_cost, amount, operator, occurred_at, purchase_id, transfer_id,
	       client_name, client_contact, client_address, attributes, notes, created_at`

func scanMovement(row pgx.Row) (*Movement, error) {
	var m Movement
	var rawAttrs []byte
	if err := row.Scan(
		&m.ID, &m.Direction, &m.Type, &m.ItemID, &m.WarehouseID, &m.Quantity,
		&m.UnitCost, &m.Amount, &m.Operator, &m.OccurredAt, &m.PurchaseID, &m.TransferID,
		&m.ClientName, &m.ClientContact, &m.ClientAddress, &rawAttrs, &m.Notes, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Attributes = parseAttributeValues(rawAttrs)
	return &m, nil
}

func (s *movementService) Get(ctx context.Context, id int) (*Movement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = $1`, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("movement %d not found", id)
		}
		return nil, fmt.Errorf("get movement %d: %w", id, err)
	}
	return m, nil
}

func (s *movementService) Query(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ItemID != nil {
		query += " AND item_id = " + arg(*filter.ItemID)
	}
	if filter.WarehouseID != nil {
		query += " AND warehouse_id = " + arg(*filter.WarehouseID)
	}
	if filter.Direction != nil {
		query += " AND direction = " + arg(*filter.Direction)
	}
	if filter.Type != nil {
		query += " AND movement_type = " + arg(*filter.Type)
	}
	if filter.PurchaseID != nil {
		query += " AND purchase_id = " + arg(*filter.PurchaseID)
	}
	if filter.TransferID != nil {
		query += " AND transfer_id = " + arg(*filter.TransferID)
	}
	if filter.OccurredFrom != nil {
		query += " AND occurred_at >= " + arg(*filter.OccurredFrom)
	}
	if filter.OccurredTo != nil {
		query += " AND occurred_at <= " + arg(*filter.OccurredTo)
	}

	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, *m)
	}
	return movements, rows.Err()
}

// appendMovementTx inserts a ledger row within the caller's transaction and
// fills in the assigned id and creation timestamp.
func appendMovementTx(ctx context.Context, tx pgx.Tx, m *Movement) error {
	occurred := m.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO movements (direction, movement_type, item_id, warehouse_id, quantity,
		                       unit_cost, amount, operator, occurred_at, purchase_id, transfer_id,
		                       client_name, client_contact, client_address, attributes, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, occurred_at, created_at`,
		m.Direction, m.Type, m.ItemID, m.WarehouseID, m.Quantity,
		m.UnitCost, m.Amount, m.Operator, occurred, m.PurchaseID, m.TransferID,
		m.ClientName, m.ClientContact, m.ClientAddress,
		marshalJSONOrNil(m.Attributes), m.Notes,
	).Scan(&m.ID, &m.OccurredAt, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}
