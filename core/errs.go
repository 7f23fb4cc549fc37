package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientBalanceError is returned when a lock, withdrawal or settlement
// needs more available balance than the wallet holds.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
	Currency  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s: need %s, have %s", e.Currency, e.Required, e.Available)
}

// InvalidAmountError is returned when a non-positive amount or price reaches
// the ledger or validator.
type InvalidAmountError struct {
	Field string
	Value decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Value)
}

// InvalidOrderError covers order-level rejections: inactive pair, bad
// side/type, notional out of range, owner mismatch, wrong status for cancel.
type InvalidOrderError struct {
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return "invalid order: " + e.Reason
}

// WalletNotFoundError is returned by explicit wallet lookups with no row.
type WalletNotFoundError struct {
	UserID   string
	Currency string
}

func (e *WalletNotFoundError) Error() string {
	return fmt.Sprintf("no %s wallet for user %s", e.Currency, e.UserID)
}

// OrderNotFoundError is returned by cancel or fetch on a missing order id.
type OrderNotFoundError struct {
	OrderID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// PairNotFoundError is returned when an operation names an unknown symbol.
type PairNotFoundError struct {
	Symbol string
}

func (e *PairNotFoundError) Error() string {
	return fmt.Sprintf("trading pair %s not found", e.Symbol)
}

// ConcurrencyConflictError is returned after the storage retry budget for
// serialization failures is exhausted. Callers may retry the operation.
type ConcurrencyConflictError struct {
	Op string
}

func (e *ConcurrencyConflictError) Error() string {
	return "concurrency conflict in " + e.Op
}
