package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the funds of one user in one currency. Balance is the total
// owned amount; Locked is the part reserved by open orders. The invariant
// 0 <= Locked <= Balance holds after every committed transaction.
type Wallet struct {
	ID       int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID   string          `json:"user_id" gorm:"uniqueIndex:idx_wallets_user_currency,priority:1"`
	Currency string          `json:"currency" gorm:"uniqueIndex:idx_wallets_user_currency,priority:2"`
	Balance  decimal.Decimal `json:"balance" gorm:"type:decimal(32,10)"`
	Locked   decimal.Decimal `json:"locked" gorm:"type:decimal(32,10)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available returns the balance not reserved by open orders. Derived, never
// stored.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Locked)
}
