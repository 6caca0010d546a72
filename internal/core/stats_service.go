package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// lowStockPageSize caps the low-stock list returned by GetStats.
const lowStockPageSize = 10

// StatsService computes read-only rollups over snapshot and ledger state.
// It never mutates anything.
type StatsService interface {
	GetStats(ctx context.Context) (*Stats, error)
}

type Stats struct {
	ItemCount      int
	WarehouseCount int
	TotalAvailable decimal.Decimal
	LowStock       []LowStockItem
	// Today's cumulative quantities, keyed by the movements'
	// business-effective date, not their insert time.
	TodayInbound  decimal.Decimal
	TodayOutbound decimal.Decimal
}

type LowStockItem struct {
	ItemID      int
	SKU         string
	Name        string
	Available   decimal.Decimal
	SafetyStock decimal.Decimal
}

type statsService struct {
	pool *pgxpool.Pool
}

func NewStatsService(pool *pgxpool.Pool) StatsService {
	return &statsService{pool: pool}
}

func (s *statsService) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		TotalAvailable: decimal.Zero,
		TodayInbound:   decimal.Zero,
		TodayOutbound:  decimal.Zero,
	}

	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM items WHERE NOT is_deleted),
		       (SELECT COUNT(*) FROM warehouses WHERE NOT is_deleted),
		       COALESCE((
		           SELECT SUM(ss.quantity - ss.reserved)
		           FROM stock_snapshots ss
		           JOIN items i ON i.id = ss.item_id AND NOT i.is_deleted
		       ), 0)`,
	).Scan(&stats.ItemCount, &stats.WarehouseCount, &stats.TotalAvailable)
	if err != nil {
		return nil, fmt.Errorf("query stat counts: %w", err)
	}

	// Items under their safety threshold, most depleted first (smallest
	// available-minus-safety gap).
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.sku, i.name,
		       COALESCE(SUM(ss.quantity - ss.reserved), 0) AS available,
		       i.safety_stock
		FROM items i
		LEFT JOIN stock_snapshots ss ON ss.item_id = i.id
		WHERE NOT i.is_deleted AND i.safety_stock > 0
		GROUP BY i.id, i.sku, i.name, i.safety_stock
		HAVING COALESCE(SUM(ss.quantity - ss.reserved), 0) < i.safety_stock
		ORDER BY COALESCE(SUM(ss.quantity - ss.reserved), 0) - i.safety_stock, i.sku
		LIMIT $1`, lowStockPageSize)
	if err != nil {
		return nil, fmt.Errorf("query low stock: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ls LowStockItem
		if err := rows.Scan(&ls.ItemID, &ls.SKU, &ls.Name, &ls.Available, &ls.SafetyStock); err != nil {
			return nil, fmt.Errorf("scan low stock row: %w", err)
		}
		stats.LowStock = append(stats.LowStock, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate low stock rows: %w", err)
	}

	sums, err := s.pool.Query(ctx, `
		SELECT direction, COALESCE(SUM(quantity), 0)
		FROM movements
		WHERE occurred_at = CURRENT_DATE
		GROUP BY direction`)
	if err != nil {
		return nil, fmt.Errorf("query today's movement sums: %w", err)
	}
	defer sums.Close()

	for sums.Next() {
		var direction MovementDirection
		var total decimal.Decimal
		if err := sums.Scan(&direction, &total); err != nil {
			return nil, fmt.Errorf("scan movement sum: %w", err)
		}
		switch direction {
		case DirectionInbound:
			stats.TodayInbound = total
		case DirectionOutbound:
			stats.TodayOutbound = total
		}
	}
	return stats, sums.Err()
}
