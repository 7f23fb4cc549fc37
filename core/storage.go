package core

import (
	"context"
	"slices"
)

// Storage is the persistence boundary of the core. Every public mutating
// operation runs inside exactly one Transaction call; either all its effects
// commit or none do.
type Storage interface {
	// Transaction runs fn atomically. Row locks taken through the Tx are
	// held until fn returns.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying database
	Close() error
}

// Tx is the transaction-scoped handle passed to every store operation.
type Tx interface {
	Wallets() WalletStore
	Orders() OrderStore
	Pairs() PairStore
	Trades() TradeStore
}

// WalletStore persists wallet rows. GetForUpdate takes a pessimistic row
// lock; callers acquiring more than one wallet must do so in ascending
// (user, currency) order to avoid deadlock.
type WalletStore interface {
	Get(userID, currency string) (*Wallet, error)
	GetForUpdate(userID, currency string) (*Wallet, error)
	Create(wallet *Wallet) error
	Save(wallet *Wallet) error
	All() ([]*Wallet, error)
}

// OrderStore persists orders and serves the book queries the engine needs.
type OrderStore interface {
	Create(order *Order) error
	Save(order *Order) error
	Get(id int64) (*Order, error)
	GetForUpdate(id int64) (*Order, error)

	// OpenOrders returns the OPEN orders of the given side on a pair,
	// row-locked, in price-time priority: best price first (ascending for
	// SELL, descending for BUY), ties by created_at then id ascending.
	OpenOrders(pair string, side SideType) ([]*Order, error)

	// UserOrders returns a user's orders, newest first, optionally
	// narrowed by filters.
	UserOrders(userID string, filters ...OrderFilter) ([]*Order, error)

	// Book returns the OPEN orders of a pair, optionally filtered by
	// side. BUY levels sort price descending, SELL levels ascending; ties
	// by created_at then id.
	Book(pair string, side SideType) ([]*Order, error)
}

// PairStore persists trading pairs.
type PairStore interface {
	Get(symbol string) (*TradingPair, error)
	Create(pair *TradingPair) error
	Save(pair *TradingPair) error
	List() ([]*TradingPair, error)
}

// TradeStore persists executed fills.
type TradeStore interface {
	Create(trade *Trade) error
	ByPair(symbol string) ([]*Trade, error)
}

func WithStatus(status OrderStatusType) OrderFilter {
	return func(order Order) bool {
		return order.Status == status
	}
}

func WithStatusIn(status ...OrderStatusType) OrderFilter {
	return func(order Order) bool {
		return slices.Contains(status, order.Status)
	}
}

func WithPair(pair string) OrderFilter {
	return func(order Order) bool {
		return order.PairSymbol == pair
	}
}

func WithSide(side SideType) OrderFilter {
	return func(order Order) bool {
		return order.Side == side
	}
}
