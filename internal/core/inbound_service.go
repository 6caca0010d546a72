package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-inventory/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// InboundService is the inbound orchestrator: one transaction that validates,
// appends the ledger row, bumps the snapshot and, for purchase receipts,
// reconciles the linked purchase's received total. Any failure rolls the
// whole transaction back with no partial effect.
type InboundService interface {
	Create(ctx context.Context, in InboundInput) (*Movement, error)
}

type InboundInput struct {
	ItemID      int
	WarehouseID int
	Quantity    decimal.Decimal
	Type        MovementType
	// PurchaseID links a purchase receipt to its purchase order; cumulative
	// received quantity across all linked receipts may not exceed the
	// ordered quantity.
	PurchaseID *int
	// UnitCost overrides the item's last recorded cost when set.
	UnitCost   *decimal.Decimal
	Operator   string
	OccurredAt time.Time
	Notes      *string
	Attributes map[string]string
}

type inboundService struct {
	pool *pgxpool.Pool
}

func NewInboundService(pool *pgxpool.Pool) InboundService {
	return &inboundService{pool: pool}
}

// lockItemForMovement locks the item row and loads the fields the
// orchestrators need. Tombstoned items read as absent.
func lockItemForMovement(ctx context.Context, tx pgx.Tx, itemID int) (*Item, error) {
	var it Item
	var rawSchema []byte
	err := tx.QueryRow(ctx, `
		SELECT id, sku, unit_cost, sale_price, attribute_schema
		FROM items
		WHERE id = $1 AND NOT is_deleted
		FOR UPDATE`, itemID,
	).Scan(&it.ID, &it.SKU, &it.UnitCost, &it.SalePrice, &rawSchema)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
		}
		return nil, fmt.Errorf("lock item %d: %w", itemID, err)
	}
	it.AttributeSchema = parseAttributeSchema(rawSchema)
	return &it, nil
}

func warehouseExists(ctx context.Context, tx pgx.Tx, warehouseID int) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM warehouses WHERE id = $1 AND NOT is_deleted)",
		warehouseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check warehouse %d: %w", warehouseID, err)
	}
	return exists, nil
}

func (s *inboundService) Create(ctx context.Context, in InboundInput) (m *Movement, err error) {
	defer func() {
		if code := ErrorCode(err); code != "" {
			metrics.OperationRejected(code)
		}
	}()

	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("inbound quantity must be positive, got %s", in.Quantity)
	}
	if !inboundTypes[in.Type] {
		return nil, fmt.Errorf("movement type %q is not an inbound type", in.Type)
	}
	if in.PurchaseID != nil && in.Type != MovementPurchase {
		return nil, fmt.Errorf("purchase linkage requires movement type %q", MovementPurchase)
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

	// Purchase receipts: lock the purchase row and enforce the cumulative
	// delivery ceiling before touching anything.
	var purchase *Purchase
	if in.PurchaseID != nil {
		purchase, err = lockPurchaseRow(ctx, tx, *in.PurchaseID)
		if err != nil {
			return nil, err
		}
		switch purchase.Status {
		case PurchaseAwaitingReceipt, PurchaseApproved, PurchasePaid:
		default:
			return nil, fmt.Errorf("purchase %d status %s: %w",
				purchase.ID, purchase.Status, ErrPurchaseStatusInvalid)
		}
		if purchase.ItemID != in.ItemID {
			return nil, fmt.Errorf("purchase %d is for item %d, not %d: %w",
				purchase.ID, purchase.ItemID, in.ItemID, ErrPurchaseItemMismatch)
		}
		if in.Quantity.Sub(purchase.Remaining()).GreaterThan(qtyTolerance) {
			return nil, fmt.Errorf("purchase %d: %s requested, %s remaining: %w",
				purchase.ID, in.Quantity, purchase.Remaining(), ErrPurchaseInboundExceeds)
		}
	}

	// Unit cost: explicit override wins, else the item's last recorded cost.
	unitCost := item.UnitCost
	if in.UnitCost != nil {
		unitCost = *in.UnitCost
	}
	var costPtr, amountPtr *decimal.Decimal
	if unitCost.IsPositive() {
		amount := in.Quantity.Mul(unitCost)
		costPtr, amountPtr = &unitCost, &amount
	}

	m = &Movement{
		Direction:   DirectionInbound,
		Type:        in.Type,
		ItemID:      in.ItemID,
		WarehouseID: in.WarehouseID,
		Quantity:    in.Quantity,
		UnitCost:    costPtr,
		Amount:      amountPtr,
		Operator:    in.Operator,
		OccurredAt:  in.OccurredAt,
		PurchaseID:  in.PurchaseID,
		Attributes:  applyAttributeDefaults(item.AttributeSchema, in.Attributes),
		Notes:       in.Notes,
	}
	if err := appendMovementTx(ctx, tx, m); err != nil {
		return nil, err
	}

	if err := addQuantityTx(ctx, tx, in.ItemID, in.WarehouseID, in.Quantity); err != nil {
		return nil, err
	}

	if purchase != nil {
		if err := s.reconcilePurchase(ctx, tx, purchase, in.Quantity, unitCost); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit inbound movement: %w", err)
	}

	metrics.MovementCommitted(string(m.Direction), string(m.Type))
	return m, nil
}

// reconcilePurchase records the receipt against the purchase: updates the
// item's recorded unit cost, adds to the received total, and transitions
// awaiting_receipt -> approved once the order is fully delivered.
func (s *inboundService) reconcilePurchase(ctx context.Context, tx pgx.Tx,
	purchase *Purchase, qty, unitCost decimal.Decimal) error {

	if unitCost.IsPositive() {
		if _, err := tx.Exec(ctx,
			"UPDATE items SET unit_cost = $1, updated_at = NOW() WHERE id = $2",
			unitCost, purchase.ItemID,
		); err != nil {
			return fmt.Errorf("update item %d unit cost: %w", purchase.ItemID, err)
		}
	}

	newReceived := purchase.QuantityReceived.Add(qty)
	if _, err := tx.Exec(ctx,
		"UPDATE purchases SET quantity_received = $1 WHERE id = $2",
		newReceived, purchase.ID,
	); err != nil {
		return fmt.Errorf("update purchase %d received total: %w", purchase.ID, err)
	}

	fullyReceived := newReceived.Add(qtyTolerance).GreaterThanOrEqual(purchase.QuantityOrdered)
	if fullyReceived && purchase.Status == PurchaseAwaitingReceipt {
		if _, err := tx.Exec(ctx,
			"UPDATE purchases SET status = $1 WHERE id = $2",
			PurchaseApproved, purchase.ID,
		); err != nil {
			return fmt.Errorf("transition purchase %d to approved: %w", purchase.ID, err)
		}
	}
	return nil
}

func lockPurchaseRow(ctx context.Context, tx pgx.Tx, purchaseID int) (*Purchase, error) {
	var p Purchase
	err := tx.QueryRow(ctx, `
		SELECT id, item_id, quantity_ordered, quantity_received, status, created_at
		FROM purchases
		WHERE id = $1
		FOR UPDATE`, purchaseID,
	).Scan(&p.ID, &p.ItemID, &p.QuantityOrdered, &p.QuantityReceived, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase %d: %w", purchaseID, ErrPurchaseNotFound)
		}
		return nil, fmt.Errorf("lock purchase %d: %w", purchaseID, err)
	}
	return &p, nil
}
