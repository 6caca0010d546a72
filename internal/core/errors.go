package core

import "errors"

// Stable error kinds of the stock engine. Services wrap these with
// fmt.Errorf("...: %w", err) so callers can branch with errors.Is while
// still seeing the operation context in the message.
var (
	ErrItemNotFound      = errors.New("item not found")
	ErrWarehouseNotFound = errors.New("warehouse not found")
	ErrInsufficientStock = errors.New("insufficient available stock")

	ErrTransferTargetRequired = errors.New("transfer requires a target warehouse")
	ErrTransferTargetNotFound = errors.New("transfer target warehouse not found")
	ErrTransferSameWarehouse  = errors.New("transfer target must differ from source warehouse")

	ErrReserveInsufficient = errors.New("not enough available stock to reserve")
	ErrReserveExceeds      = errors.New("release exceeds reserved quantity")

	ErrItemInUse      = errors.New("item has stock, reservations or movement history")
	ErrWarehouseInUse = errors.New("warehouse has stock, reservations or movement history")

	ErrPurchaseNotFound       = errors.New("purchase not found")
	ErrPurchaseStatusInvalid  = errors.New("purchase status does not allow receiving")
	ErrPurchaseItemMismatch   = errors.New("purchase references a different item")
	ErrPurchaseInboundExceeds = errors.New("received quantity exceeds remaining purchase quantity")
)

// ErrorCode maps an engine error to its symbolic code, or "" for errors
// outside the taxonomy (store failures, lock timeouts and the like, which
// are transient from the caller's point of view).
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrItemNotFound):
		return "ITEM_NOT_FOUND"
	case errors.Is(err, ErrWarehouseNotFound):
		return "WAREHOUSE_NOT_FOUND"
	case errors.Is(err, ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, ErrTransferTargetRequired):
		return "TRANSFER_TARGET_REQUIRED"
	case errors.Is(err, ErrTransferTargetNotFound):
		return "TRANSFER_TARGET_NOT_FOUND"
	case errors.Is(err, ErrTransferSameWarehouse):
		return "TRANSFER_SAME_WAREHOUSE"
	case errors.Is(err, ErrReserveInsufficient):
		return "RESERVE_INSUFFICIENT"
	case errors.Is(err, ErrReserveExceeds):
		return "RESERVE_EXCEEDS"
	case errors.Is(err, ErrItemInUse):
		return "ITEM_IN_USE"
	case errors.Is(err, ErrWarehouseInUse):
		return "WAREHOUSE_IN_USE"
	case errors.Is(err, ErrPurchaseNotFound):
		return "PURCHASE_NOT_FOUND"
	case errors.Is(err, ErrPurchaseStatusInvalid):
		return "PURCHASE_STATUS_INVALID"
	case errors.Is(err, ErrPurchaseItemMismatch):
		return "PURCHASE_ITEM_MISMATCH"
	case errors.Is(err, ErrPurchaseInboundExceeds):
		return "PURCHASE_INBOUND_EXCEEDS"
	}
	return ""
}
