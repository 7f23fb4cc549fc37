package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderFilter defines a function type for filtering orders
type OrderFilter func(order Order) bool

// SideType represents the direction of an order (BUY or SELL)
type SideType string

// OrderType represents the type of order (LIMIT or MARKET)
type OrderType string

// OrderStatusType represents the status of an order
type OrderStatusType string

// Order side constants
const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

// Order type constants
const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// Order status constants. PENDING is transient and only exists before the
// balance lock succeeds; FILLED and CANCELLED are terminal.
const (
	OrderStatusTypePending   OrderStatusType = "PENDING"
	OrderStatusTypeOpen      OrderStatusType = "OPEN"
	OrderStatusTypeFilled    OrderStatusType = "FILLED"
	OrderStatusTypeCancelled OrderStatusType = "CANCELLED"
)

// Opposite returns the other side of the book
func (s SideType) Opposite() SideType {
	if s == SideTypeBuy {
		return SideTypeSell
	}
	return SideTypeBuy
}

// Valid reports whether the side is a known value
func (s SideType) Valid() bool {
	return s == SideTypeBuy || s == SideTypeSell
}

// Valid reports whether the order type is a known value
func (t OrderType) Valid() bool {
	return t == OrderTypeLimit || t == OrderTypeMarket
}

// Order represents a resting or incoming order on a trading pair.
// Prices carry at most 2 decimal places, amounts at most 8.
type Order struct {
	ID           int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       string          `json:"user_id" gorm:"index:idx_orders_user_created,priority:1"`
	PairSymbol   string          `json:"pair_symbol" gorm:"index:idx_orders_pair_status,priority:1"`
	Side         SideType        `json:"side"`
	Type         OrderType       `json:"type"`
	Price        decimal.Decimal `json:"price" gorm:"type:decimal(32,10)"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(32,10)"`
	FilledAmount decimal.Decimal `json:"filled_amount" gorm:"type:decimal(32,10)"`
	Status       OrderStatusType `json:"status" gorm:"index:idx_orders_pair_status,priority:2"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_orders_user_created,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Remaining returns the unfilled base quantity
func (o Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.FilledAmount)
}

// IsBuy returns true if the order is a buy order
func (o Order) IsBuy() bool {
	return o.Side == SideTypeBuy
}

// IsSell returns true if the order is a sell order
func (o Order) IsSell() bool {
	return o.Side == SideTypeSell
}

// IsActive returns true if the order can still be matched or cancelled
func (o Order) IsActive() bool {
	return o.Status == OrderStatusTypePending || o.Status == OrderStatusTypeOpen
}

// IsTerminal returns true if the order reached a final state
func (o Order) IsTerminal() bool {
	return o.Status == OrderStatusTypeFilled || o.Status == OrderStatusTypeCancelled
}

// String returns a human-readable representation of the order
func (o Order) String() string {
	return fmt.Sprintf("[%s] %s %s | ID: %d, Type: %s, %s x %s (filled %s)",
		o.Status, o.Side, o.PairSymbol, o.ID, o.Type, o.Amount, o.Price, o.FilledAmount)
}
