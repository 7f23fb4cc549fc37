package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade records one fill between a taker and a maker order. Price is always
// the maker's resting price; Value is Price * Quantity in the quote currency.
type Trade struct {
	ID           int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	PairSymbol   string          `json:"pair_symbol" gorm:"index"`
	TakerOrderID int64           `json:"taker_order_id"`
	MakerOrderID int64           `json:"maker_order_id"`
	BuyerID      string          `json:"buyer_id"`
	SellerID     string          `json:"seller_id"`
	Price        decimal.Decimal `json:"price" gorm:"type:decimal(32,10)"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:decimal(32,10)"`
	Value        decimal.Decimal `json:"value" gorm:"type:decimal(32,10)"`

	CreatedAt time.Time `json:"created_at"`
}
