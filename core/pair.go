package core

import "time"

// TradingPair describes a market, e.g. "BTC/USDT". Immutable after creation
// except IsActive, which gates new orders only: deactivating a pair leaves
// resting orders matchable and cancellable.
type TradingPair struct {
	Symbol        string    `json:"symbol" gorm:"primaryKey"`
	BaseCurrency  string    `json:"base_currency"`
	QuoteCurrency string    `json:"quote_currency"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}
