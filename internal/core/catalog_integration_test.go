package core_test

import (
	"context"
	"errors"
	"testing"

	"backoffice-inventory/internal/core"

	"github.com/shopspring/decimal"
)

func TestItem_CreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	svc := core.NewItemService(pool)
	price := decimal.NewFromInt(80)
	created, err := svc.Create(ctx, core.ItemInput{
		SKU:         "SKU-100",
		Name:        "Gadget",
		Category:    "gadgets",
		SafetyStock: decimal.NewFromInt(2),
		SalePrice:   &price,
		AttributeSchema: []core.AttributeField{
			{Key: "size", Label: "Size", Options: []string{"S", "M", "L"}, Default: "M"},
		},
	})
	if err != nil {
		t.Fatalf("Create item failed: %v", err)
	}
	if created.Unit != "unit" {
		t.Errorf("Expected default unit, got %q", created.Unit)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get item failed: %v", err)
	}
	if len(got.AttributeSchema) != 1 || got.AttributeSchema[0].Default != "M" {
		t.Errorf("Attribute schema did not round-trip: %+v", got.AttributeSchema)
	}
	if got.SalePrice == nil || !got.SalePrice.Equal(price) {
		t.Errorf("Expected sale price 80, got %v", got.SalePrice)
	}
}

func TestItem_MalformedSchemaReadsAsAbsent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	// Wrong shape (object, not array) straight into storage, as a
	// loosely-typed upstream might have left it.
	_, err := pool.Exec(ctx,
		`UPDATE items SET attribute_schema = '{"oops": true}'::jsonb WHERE id = 2`)
	if err != nil {
		t.Fatalf("Failed to plant malformed schema: %v", err)
	}

	svc := core.NewItemService(pool)
	item, err := svc.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get item with malformed schema failed: %v", err)
	}
	if item.AttributeSchema != nil {
		t.Errorf("Expected malformed schema to read as absent, got %+v", item.AttributeSchema)
	}
}

func TestItem_DeleteGuards(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	itemSvc := core.NewItemService(pool)
	inSvc := core.NewInboundService(pool)
	outSvc := core.NewOutboundService(pool)

	// Item with stock on hand cannot be deleted.
	seedStock(t, pool, 1, 1, 10, 0)
	err := itemSvc.Delete(ctx, 1)
	if !errors.Is(err, core.ErrItemInUse) {
		t.Fatalf("Expected ErrItemInUse for stocked item, got %v", err)
	}
	if code := core.ErrorCode(err); code != "ITEM_IN_USE" {
		t.Errorf("Expected code ITEM_IN_USE, got %q", code)
	}

	// Zero stock but ledger history still blocks deletion.
	if _, err := inSvc.Create(ctx, core.InboundInput{
		ItemID: 2, WarehouseID: 1,
		Quantity: decimal.NewFromInt(3), Type: core.MovementPurchase,
	}); err != nil {
		t.Fatalf("Inbound failed: %v", err)
	}
	if _, err := outSvc.Create(ctx, core.OutboundInput{
		ItemID: 2, WarehouseID: 1,
		Quantity: decimal.NewFromInt(3), Type: core.MovementSale,
	}); err != nil {
		t.Fatalf("Sale failed: %v", err)
	}
	err = itemSvc.Delete(ctx, 2)
	if !errors.Is(err, core.ErrItemInUse) {
		t.Fatalf("Expected ErrItemInUse for item with history, got %v", err)
	}

	// An untouched item deletes cleanly and then reads as absent.
	fresh, err := itemSvc.Create(ctx, core.ItemInput{SKU: "SKU-200", Name: "Unused"})
	if err != nil {
		t.Fatalf("Create item failed: %v", err)
	}
	if err := itemSvc.Delete(ctx, fresh.ID); err != nil {
		t.Fatalf("Delete unused item failed: %v", err)
	}
	if _, err := itemSvc.Get(ctx, fresh.ID); !errors.Is(err, core.ErrItemNotFound) {
		t.Errorf("Expected tombstoned item to read as not found, got %v", err)
	}
	if err := itemSvc.Delete(ctx, fresh.ID); !errors.Is(err, core.ErrItemNotFound) {
		t.Errorf("Expected second delete to report not found, got %v", err)
	}

	// Movements against the tombstone are rejected like a missing item.
	if _, err := inSvc.Create(ctx, core.InboundInput{
		ItemID: fresh.ID, WarehouseID: 1,
		Quantity: decimal.NewFromInt(1), Type: core.MovementPurchase,
	}); !errors.Is(err, core.ErrItemNotFound) {
		t.Errorf("Expected ErrItemNotFound moving a tombstoned item, got %v", err)
	}
}

func TestWarehouse_DeleteGuards(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	whSvc := core.NewWarehouseService(pool)

	seedStock(t, pool, 1, 1, 10, 0)
	err := whSvc.Delete(ctx, 1)
	if !errors.Is(err, core.ErrWarehouseInUse) {
		t.Fatalf("Expected ErrWarehouseInUse, got %v", err)
	}

	fresh, err := whSvc.Create(ctx, core.WarehouseInput{Code: "TMP", Name: "Temporary"})
	if err != nil {
		t.Fatalf("Create warehouse failed: %v", err)
	}
	if fresh.Type != core.WarehouseSatellite {
		t.Errorf("Expected default satellite type, got %s", fresh.Type)
	}
	if err := whSvc.Delete(ctx, fresh.ID); err != nil {
		t.Fatalf("Delete unused warehouse failed: %v", err)
	}
	if _, err := whSvc.Get(ctx, fresh.ID); !errors.Is(err, core.ErrWarehouseNotFound) {
		t.Errorf("Expected tombstoned warehouse to read as not found, got %v", err)
	}
}

func TestWarehouse_EnsureOperationalIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	svc := core.NewWarehouseService(pool)

	// Seed already holds MAIN and SAT-1; provisioning fills in SAT-2 only.
	if err := svc.EnsureOperational(ctx); err != nil {
		t.Fatalf("EnsureOperational failed: %v", err)
	}
	whs, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("List warehouses failed: %v", err)
	}
	if len(whs) != 3 {
		t.Fatalf("Expected 3 warehouses after provisioning, got %d", len(whs))
	}

	// Second run changes nothing.
	if err := svc.EnsureOperational(ctx); err != nil {
		t.Fatalf("Second EnsureOperational failed: %v", err)
	}
	whs, err = svc.List(ctx, false)
	if err != nil {
		t.Fatalf("List warehouses failed: %v", err)
	}
	if len(whs) != 3 {
		t.Errorf("Expected provisioning to stay at 3 warehouses, got %d", len(whs))
	}
}

func TestMovement_QueryFilters(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	inSvc := core.NewInboundService(pool)
	outSvc := core.NewOutboundService(pool)
	movSvc := core.NewMovementService(pool)

	if _, err := inSvc.Create(ctx, core.InboundInput{
		ItemID: 1, WarehouseID: 1,
		Quantity: decimal.NewFromInt(10), Type: core.MovementPurchase,
	}); err != nil {
		t.Fatalf("Inbound failed: %v", err)
	}
	if _, err := inSvc.Create(ctx, core.InboundInput{
		ItemID: 2, WarehouseID: 2,
		Quantity: decimal.NewFromInt(5), Type: core.MovementCustomerReturn,
	}); err != nil {
		t.Fatalf("Inbound failed: %v", err)
	}
	if _, err := outSvc.Create(ctx, core.OutboundInput{
		ItemID: 1, WarehouseID: 1,
		Quantity: decimal.NewFromInt(2), Type: core.MovementSale,
	}); err != nil {
		t.Fatalf("Sale failed: %v", err)
	}

	all, err := movSvc.Query(ctx, core.MovementFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 movements, got %d", len(all))
	}
	// Newest first.
	if all[0].Type != core.MovementSale {
		t.Errorf("Expected newest movement first, got %s", all[0].Type)
	}

	itemID := 1
	byItem, err := movSvc.Query(ctx, core.MovementFilter{ItemID: &itemID})
	if err != nil {
		t.Fatalf("Query by item failed: %v", err)
	}
	if len(byItem) != 2 {
		t.Errorf("Expected 2 movements for item 1, got %d", len(byItem))
	}

	dir := core.DirectionInbound
	inbound, err := movSvc.Query(ctx, core.MovementFilter{Direction: &dir})
	if err != nil {
		t.Fatalf("Query by direction failed: %v", err)
	}
	if len(inbound) != 2 {
		t.Errorf("Expected 2 inbound movements, got %d", len(inbound))
	}

	limited, err := movSvc.Query(ctx, core.MovementFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Paged query failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 movement with limit, got %d", len(limited))
	}
}
