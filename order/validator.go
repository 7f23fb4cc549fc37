package order

import (
	"errors"
	"fmt"

	"github.com/raykavin/matchbook/core"
	"github.com/shopspring/decimal"
)

// Default notional bounds in quote currency, overridable per service via
// WithNotionalBounds.
var (
	DefaultMinNotional = decimal.RequireFromString("10.00")
	DefaultMaxNotional = decimal.RequireFromString("1000000.00")
)

// Input scale limits: prices at 2 decimal places, amounts at 8. Enforcing
// them keeps every price*amount product exact.
const (
	priceScale  = 2
	amountScale = 8
)

// validator is the pure predicate layer run before any balance is locked. It
// only reads; it must execute inside the same transaction as the subsequent
// lock so the available-balance check cannot go stale.
type validator struct {
	minNotional decimal.Decimal
	maxNotional decimal.Decimal
}

func (v validator) validate(tx core.Tx, userID string, pair *core.TradingPair, side core.SideType,
	typ core.OrderType, price, amount decimal.Decimal) error {

	if !pair.IsActive {
		return &core.InvalidOrderError{Reason: fmt.Sprintf("pair %s is inactive", pair.Symbol)}
	}
	if !side.Valid() {
		return &core.InvalidOrderError{Reason: fmt.Sprintf("invalid side: %s", side)}
	}
	if !typ.Valid() {
		return &core.InvalidOrderError{Reason: fmt.Sprintf("invalid type: %s", typ)}
	}

	if typ == core.OrderTypeLimit && !price.IsPositive() {
		return &core.InvalidOrderError{Reason: "price must be positive"}
	}
	if !price.Truncate(priceScale).Equal(price) {
		return &core.InvalidOrderError{Reason: fmt.Sprintf("price precision exceeds %d decimal places", priceScale)}
	}

	if !amount.IsPositive() {
		return &core.InvalidOrderError{Reason: "amount must be positive"}
	}
	if !amount.Truncate(amountScale).Equal(amount) {
		return &core.InvalidOrderError{Reason: fmt.Sprintf("amount precision exceeds %d decimal places", amountScale)}
	}

	notional := price.Mul(amount)
	if notional.LessThan(v.minNotional) {
		return &core.InvalidOrderError{Reason: fmt.Sprintf("minimum order value is %s", v.minNotional)}
	}
	if notional.GreaterThan(v.maxNotional) {
		return &core.InvalidOrderError{Reason: fmt.Sprintf("maximum order value is %s", v.maxNotional)}
	}

	// Balance sufficiency. A missing wallet counts as zero available.
	required, currency := notional, pair.QuoteCurrency
	if side == core.SideTypeSell {
		required, currency = amount, pair.BaseCurrency
	}

	available := decimal.Zero
	wallet, err := tx.Wallets().Get(userID, currency)
	if err == nil {
		available = wallet.Available()
	} else {
		var notFound *core.WalletNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	if available.LessThan(required) {
		return &core.InsufficientBalanceError{
			Required:  required,
			Available: available,
			Currency:  currency,
		}
	}
	return nil
}
