package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PurchaseService is the narrow surface the external purchasing workflow
// uses to hand purchase rows to the ledger. Approval, invoicing and payment
// live upstream; the engine only reads status and writes the received total
// inside inbound transactions.
type PurchaseService interface {
	Create(ctx context.Context, itemID int, quantityOrdered decimal.Decimal) (*Purchase, error)
	Get(ctx context.Context, id int) (*Purchase, error)
}

type purchaseService struct {
	pool *pgxpool.Pool
}

func NewPurchaseService(pool *pgxpool.Pool) PurchaseService {
	return &purchaseService{pool: pool}
}

func (s *purchaseService) Create(ctx context.Context, itemID int, quantityOrdered decimal.Decimal) (*Purchase, error) {
	if !quantityOrdered.IsPositive() {
		return nil, fmt.Errorf("ordered quantity must be positive, got %s", quantityOrdered)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Item row lock keeps a concurrent tombstone from racing the insert.
	if err := lockItemRow(ctx, tx, itemID); err != nil {
		return nil, err
	}

	var p Purchase
	err = tx.QueryRow(ctx, `
		INSERT INTO purchases (item_id, quantity_ordered, quantity_received, status)
		VALUES ($1, $2, 0, $3)
		RETURNING id, item_id, quantity_ordered, quantity_received, status, created_at`,
		itemID, quantityOrdered, PurchaseAwaitingReceipt,
	).Scan(&p.ID, &p.ItemID, &p.QuantityOrdered, &p.QuantityReceived, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}
	return &p, nil
}

func (s *purchaseService) Get(ctx context.Context, id int) (*Purchase, error) {
	var p Purchase
	err := s.pool.QueryRow(ctx, `
		SELECT id, item_id, quantity_ordered, quantity_received, status, created_at
		FROM purchases WHERE id = $1`, id,
	).Scan(&p.ID, &p.ItemID, &p.QuantityOrdered, &p.QuantityReceived, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase %d: %w", id, ErrPurchaseNotFound)
		}
		return nil, fmt.Errorf("get purchase %d: %w", id, err)
	}
	return &p, nil
}
