package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// qtyTolerance absorbs floating error accumulated upstream when comparing
// received quantities against ordered quantities (1e-6).
var qtyTolerance = decimal.New(1, -6)

type MovementDirection string

const (
	DirectionInbound  MovementDirection = "inbound"
	DirectionOutbound MovementDirection = "outbound"
)

type MovementType string

const (
	// Inbound movement types.
	MovementPurchase       MovementType = "purchase"
	MovementCustomerReturn MovementType = "customer_return"

	// Outbound movement types. Transfer also appears on the inbound side of
	// a pair, minted by the outbound orchestrator only.
	MovementSale           MovementType = "sale"
	MovementTransfer       MovementType = "transfer"
	MovementLossAdjustment MovementType = "loss_adjustment"
	MovementSupplierReturn MovementType = "supplier_return"
	MovementInternalUse    MovementType = "internal_use"
)

var inboundTypes = map[MovementType]bool{
	MovementPurchase:       true,
	MovementCustomerReturn: true,
}

var outboundTypes = map[MovementType]bool{
	MovementSale:           true,
	MovementTransfer:       true,
	MovementLossAdjustment: true,
	MovementSupplierReturn: true,
	MovementInternalUse:    true,
}

type WarehouseType string

const (
	WarehouseMain      WarehouseType = "main"
	WarehouseSatellite WarehouseType = "satellite"
)

type PurchaseStatus string

const (
	PurchaseAwaitingReceipt PurchaseStatus = "awaiting_receipt"
	PurchaseApproved        PurchaseStatus = "approved"
	PurchasePaid            PurchaseStatus = "paid"
)

// Item is a catalog SKU. UnitCost is the last recorded purchase cost and is
// updated by the inbound orchestrator on purchase receipts. Deleted items are
// tombstoned, never removed, so historical movements stay valid.
type Item struct {
	ID              int
	SKU             string
	Name            string
	Unit            string
	Category        string
	SafetyStock     decimal.Decimal
	SalePrice       *decimal.Decimal
	UnitCost        decimal.Decimal
	AttributeSchema []AttributeField
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Warehouse struct {
	ID        int
	Code      string
	Name      string
	Type      WarehouseType
	Address   *string
	Manager   *string
	Capacity  *int
	IsDeleted bool
	CreatedAt time.Time
}

// StockSnapshot is the current aggregate for one (item, warehouse) pair.
// Invariant: Quantity >= 0 and 0 <= Reserved <= Quantity.
type StockSnapshot struct {
	ItemID      int
	WarehouseID int
	Quantity    decimal.Decimal
	Reserved    decimal.Decimal
}

func (s StockSnapshot) Available() decimal.Decimal {
	return s.Quantity.Sub(s.Reserved)
}

// StockLevel is a read view joining a snapshot with item and warehouse names.
type StockLevel struct {
	ItemID        int
	SKU           string
	ItemName      string
	WarehouseID   int
	WarehouseCode string
	Quantity      decimal.Decimal
	Reserved      decimal.Decimal
	Available     decimal.Decimal
	UnitCost      decimal.Decimal
}

// Movement is one append-only ledger row. Counterpart attribution is copied
// in at write time, not joined, so history stays accurate when directory
// records are later edited or removed. OccurredAt is the business-effective
// date, distinct from CreatedAt.
type Movement struct {
	ID            int
	Direction     MovementDirection
	Type          MovementType
	ItemID        int
	WarehouseID   int
	Quantity      decimal.Decimal
	UnitCost      *decimal.Decimal
	Amount        *decimal.Decimal
	Operator      string
	OccurredAt    time.Time
	PurchaseID    *int
	TransferID    *string
	ClientName    *string
	ClientContact *string
	ClientAddress *string
	Attributes    map[string]string
	Notes         *string
	CreatedAt     time.Time
}

// Purchase is the ledger-facing slice of the external purchasing record.
// The inbound orchestrator is the only writer of QuantityReceived and the
// only trigger of the awaiting_receipt -> approved transition.
type Purchase struct {
	ID               int
	ItemID           int
	QuantityOrdered  decimal.Decimal
	QuantityReceived decimal.Decimal
	Status           PurchaseStatus
	CreatedAt        time.Time
}

func (p *Purchase) Remaining() decimal.Decimal {
	return p.QuantityOrdered.Sub(p.QuantityReceived)
}
