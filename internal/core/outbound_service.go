package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-inventory/internal/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OutboundService is the outbound orchestrator. A transfer produces exactly
// two linked rows sharing one correlation id: the outbound at the source and
// a paired inbound at the destination, committed atomically.
type OutboundService interface {
	Create(ctx context.Context, in OutboundInput) (*Movement, error)
	// Revert is an administrative correction for outbound movements only:
	// it restores the snapshot quantity and deletes the ledger row (both
	// rows of a transfer pair). Inbound and purchase-linked movements are
	// never revertible.
	Revert(ctx context.Context, movementID int) error
}

type OutboundInput struct {
	ItemID      int
	WarehouseID int
	Quantity    decimal.Decimal
	Type        MovementType
	// TargetWarehouseID is required for transfers and must differ from the
	// source; it is ignored for every other type.
	TargetWarehouseID *int
	// Counterpart attribution, copied into the row as it is now.
	ClientName    *string
	ClientContact *string
	ClientAddress *string
	Operator      string
	OccurredAt    time.Time
	Notes         *string
	Attributes    map[string]string
}

type outboundService struct {
	pool *pgxpool.Pool
}

func NewOutboundService(pool *pgxpool.Pool) OutboundService {
	return &outboundService{pool: pool}
}

func (s *outboundService) Create(ctx context.Context, in OutboundInput) (m *Movement, err error) {
	defer func() {
		if code := ErrorCode(err); code != "" {
			metrics.OperationRejected(code)
		}
	}()

	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("outbound quantity must be positive, got %s", in.Quantity)
	}
	if !outboundTypes[in.Type] {
		return nil, fmt.Errorf("movement type %q is not an outbound type", in.Type)
	}
	if in.Type == MovementTransfer {
		if in.TargetWarehouseID == nil {
			return nil, fmt.Errorf("transfer of item %d: %w", in.ItemID, ErrTransferTargetRequired)
		}
		if *in.TargetWarehouseID == in.WarehouseID {
			return nil, fmt.Errorf("transfer of item %d: %w", in.ItemID, ErrTransferSameWarehouse)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	item, err := lockItemForMovement(ctx, tx, in.ItemID)
	if err != nil {
		return nil, err
	}

	ok, err := warehouseExists(ctx, tx, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("warehouse %d: %w", in.WarehouseID, ErrWarehouseNotFound)
	}
	if in.Type == MovementTransfer {
		ok, err := warehouseExists(ctx, tx, *in.TargetWarehouseID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("target warehouse %d: %w",
				*in.TargetWarehouseID, ErrTransferTargetNotFound)
		}
	}

	// Reservations gate every outbound type, transfers included: available
	// is quantity minus reserved throughout.
	snap, err := getSnapshotTx(ctx, tx, in.ItemID, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if snap.Available().LessThan(in.Quantity) {
		return nil, fmt.Errorf("item %d in warehouse %d: %s available, %s requested: %w",
			in.ItemID, in.WarehouseID, snap.Available(), in.Quantity, ErrInsufficientStock)
	}

	// Second guard: the decrement itself is conditional, so a concurrent
	// request racing past the check above still fails cleanly.
	if err := deductAvailableTx(ctx, tx, in.ItemID, in.WarehouseID, in.Quantity); err != nil {
		return nil, err
	}

	costPtr, amountPtr := resolveOutboundCost(item, in.Type, in.Quantity)

	m = &Movement{
		Direction:     DirectionOutbound,
		Type:          in.Type,
		ItemID:        in.ItemID,
		WarehouseID:   in.WarehouseID,
		Quantity:      in.Quantity,
		UnitCost:      costPtr,
		Amount:        amountPtr,
		Operator:      in.Operator,
		OccurredAt:    in.OccurredAt,
		ClientName:    in.ClientName,
		ClientContact: in.ClientContact,
		ClientAddress: in.ClientAddress,
		Attributes:    applyAttributeDefaults(item.AttributeSchema, in.Attributes),
		Notes:         in.Notes,
	}

	if in.Type == MovementTransfer {
		transferID := uuid.New().String()
		m.TransferID = &transferID

		if err := appendMovementTx(ctx, tx, m); err != nil {
			return nil, err
		}

		// Paired inbound at the destination: identical quantity, cost and
		// attributes, same correlation id.
		paired := &Movement{
			Direction:   DirectionInbound,
			Type:        MovementTransfer,
			ItemID:      in.ItemID,
			WarehouseID: *in.TargetWarehouseID,
			Quantity:    in.Quantity,
			UnitCost:    costPtr,
			Amount:      amountPtr,
			Operator:    in.Operator,
			OccurredAt:  in.OccurredAt,
			TransferID:  &transferID,
			Attributes:  m.Attributes,
			Notes:       in.Notes,
		}
		if err := appendMovementTx(ctx, tx, paired); err != nil {
			return nil, err
		}
		if err := addQuantityTx(ctx, tx, in.ItemID, *in.TargetWarehouseID, in.Quantity); err != nil {
			return nil, err
		}
	} else {
		if err := appendMovementTx(ctx, tx, m); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit outbound movement: %w", err)
	}

	metrics.MovementCommitted(string(m.Direction), string(m.Type))
	return m, nil
}

// resolveOutboundCost picks the unit cost for an outbound row: sales prefer
// the item's sale price and fall back to recorded cost; every other type
// uses the recorded cost or none.
func resolveOutboundCost(item *Item, t MovementType, qty decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	var cost decimal.Decimal
	switch {
	case t == MovementSale && item.SalePrice != nil && item.SalePrice.IsPositive():
		cost = *item.SalePrice
	case item.UnitCost.IsPositive():
		cost = item.UnitCost
	default:
		return nil, nil
	}
	amount := qty.Mul(cost)
	return &cost, &amount
}

func getSnapshotTx(ctx context.Context, tx pgx.Tx, itemID, warehouseID int) (StockSnapshot, error) {
	snap := StockSnapshot{ItemID: itemID, WarehouseID: warehouseID,
		Quantity: decimal.Zero, Reserved: decimal.Zero}
	err := tx.QueryRow(ctx, `
		SELECT quantity, reserved FROM stock_snapshots
		WHERE item_id = $1 AND warehouse_id = $2`,
		itemID, warehouseID,
	).Scan(&snap.Quantity, &snap.Reserved)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return snap, fmt.Errorf("read snapshot (%d,%d): %w", itemID, warehouseID, err)
	}
	return snap, nil
}

func (s *outboundService) Revert(ctx context.Context, movementID int) (err error) {
	defer func() {
		if code := ErrorCode(err); code != "" {
			metrics.OperationRejected(code)
		}
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = $1 FOR UPDATE`, movementID)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("movement %d not found", movementID)
		}
		return fmt.Errorf("load movement %d: %w", movementID, err)
	}

	if m.Direction != DirectionOutbound {
		return fmt.Errorf("movement %d is %s; only outbound movements can be reverted",
			movementID, m.Direction)
	}
	if m.PurchaseID != nil {
		return fmt.Errorf("movement %d is purchase-linked and cannot be reverted", movementID)
	}

	if err := lockItemRow(ctx, tx, m.ItemID); err != nil {
		return err
	}

	// Put the stock back at the source.
	if err := addQuantityTx(ctx, tx, m.ItemID, m.WarehouseID, m.Quantity); err != nil {
		return err
	}

	// A transfer pair is reverted as a whole, or conservation breaks: pull
	// the stock back out of the destination and drop the paired row. Fails
	// if the destination has since consumed or reserved it.
	if m.Type == MovementTransfer && m.TransferID != nil {
		var pairedID, destWarehouseID int
		err := tx.QueryRow(ctx, `
			SELECT id, warehouse_id FROM movements
			WHERE transfer_id = $1 AND direction = $2 AND id <> $3
			FOR UPDATE`,
			*m.TransferID, DirectionInbound, m.ID,
		).Scan(&pairedID, &destWarehouseID)
		if err != nil {
			return fmt.Errorf("load paired transfer movement for %d: %w", m.ID, err)
		}
		if err := deductAvailableTx(ctx, tx, m.ItemID, destWarehouseID, m.Quantity); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM movements WHERE id = $1", pairedID); err != nil {
			return fmt.Errorf("delete paired movement %d: %w", pairedID, err)
		}
	}

	if _, err := tx.Exec(ctx, "DELETE FROM movements WHERE id = $1", m.ID); err != nil {
		return fmt.Errorf("delete movement %d: %w", m.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit revert of movement %d: %w", movementID, err)
	}
	return nil
}
