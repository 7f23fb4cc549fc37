// Package engine implements price-time priority matching with atomic
// two-sided settlement through the ledger.
package engine

import (
	"github.com/raykavin/matchbook/core"
	"github.com/raykavin/matchbook/ledger"
	"github.com/shopspring/decimal"
)

// Matcher walks the opposite side of the book for an incoming taker order and
// settles each fill. It must be invoked inside the transaction that placed
// the taker: either all fills commit or none do.
type Matcher struct {
	ledger *ledger.Service
	log    core.Logger
	clock  core.Clock
}

// NewMatcher creates a new matching engine
func NewMatcher(ledger *ledger.Service, log core.Logger, clock core.Clock) *Matcher {
	return &Matcher{
		ledger: ledger,
		log:    log,
		clock:  clock,
	}
}

// Match executes the taker against resting makers in price-time priority.
// Fills always execute at the maker's resting price. A MARKET taker whose
// remainder cannot fill is cancelled and its reservation released.
func (m *Matcher) Match(tx core.Tx, taker *core.Order, pair *core.TradingPair) ([]core.Trade, error) {
	makers, err := tx.Orders().OpenOrders(pair.Symbol, taker.Side.Opposite())
	if err != nil {
		return nil, err
	}

	trades := make([]core.Trade, 0)
	for _, maker := range makers {
		if taker.Remaining().IsZero() {
			break
		}

		// Self-trade policy: the taker never executes against its own
		// resting order; the maker stays on the book untouched.
		if maker.UserID == taker.UserID {
			continue
		}
		if maker.Status != core.OrderStatusTypeOpen {
			continue
		}

		// Makers arrive best price first, so the first one that does
		// not cross ends the scan.
		if !crosses(taker, maker) {
			break
		}

		trade, err := m.fill(tx, taker, maker, pair)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if taker.Type == core.OrderTypeMarket && taker.Remaining().IsPositive() {
		if err := m.cancelRemainder(tx, taker, pair); err != nil {
			return nil, err
		}
	}

	return trades, nil
}

// crosses reports whether the maker's resting price is acceptable to the
// taker. A MARKET SELL takes any bid. A MARKET BUY is still bounded by its
// protection price: the quote reservation cannot cover makers above it.
func crosses(taker, maker *core.Order) bool {
	if taker.IsBuy() {
		return maker.Price.LessThanOrEqual(taker.Price)
	}
	if taker.Type == core.OrderTypeMarket {
		return true
	}
	return maker.Price.GreaterThanOrEqual(taker.Price)
}

// fill settles min(taker remaining, maker remaining) at the maker's price and
// persists both orders and the trade record.
func (m *Matcher) fill(tx core.Tx, taker, maker *core.Order, pair *core.TradingPair) (core.Trade, error) {
	qty := decimal.Min(taker.Remaining(), maker.Remaining())
	price := maker.Price
	value := price.Mul(qty)

	buyer, seller := taker.UserID, maker.UserID
	if taker.IsSell() {
		buyer, seller = maker.UserID, taker.UserID
	}

	// Base from seller to buyer, then quote from buyer to seller. Each
	// transfer locks its wallet pair in canonical order.
	if _, _, err := m.ledger.TransferLocked(tx, seller, buyer, pair.BaseCurrency, qty); err != nil {
		return core.Trade{}, err
	}
	if _, _, err := m.ledger.TransferLocked(tx, buyer, seller, pair.QuoteCurrency, value); err != nil {
		return core.Trade{}, err
	}

	// Price improvement: a BUY taker reserved quote at its own price but
	// pays the maker's. Release the difference immediately so locked
	// balance keeps matching open obligations.
	if taker.IsBuy() && taker.Price.GreaterThan(price) {
		refund := taker.Price.Sub(price).Mul(qty)
		if _, err := m.ledger.Unlock(tx, taker.UserID, pair.QuoteCurrency, refund); err != nil {
			return core.Trade{}, err
		}
	}

	now := m.clock.Now()
	for _, order := range []*core.Order{taker, maker} {
		order.FilledAmount = order.FilledAmount.Add(qty)
		if order.FilledAmount.Equal(order.Amount) {
			order.Status = core.OrderStatusTypeFilled
		}
		order.UpdatedAt = now
		if err := tx.Orders().Save(order); err != nil {
			return core.Trade{}, err
		}
	}

	trade := core.Trade{
		PairSymbol:   pair.Symbol,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		BuyerID:      buyer,
		SellerID:     seller,
		Price:        price,
		Quantity:     qty,
		Value:        value,
		CreatedAt:    now,
	}
	if err := tx.Trades().Create(&trade); err != nil {
		return core.Trade{}, err
	}

	m.log.WithFields(map[string]any{
		"pair":  pair.Symbol,
		"qty":   qty.String(),
		"price": price.String(),
		"taker": taker.ID,
		"maker": maker.ID,
	}).Info("trade")

	return trade, nil
}

// cancelRemainder closes out the unfillable part of a MARKET order, releasing
// whatever reservation still backs it.
func (m *Matcher) cancelRemainder(tx core.Tx, taker *core.Order, pair *core.TradingPair) error {
	remaining := taker.Remaining()

	if taker.IsBuy() {
		if _, err := m.ledger.Unlock(tx, taker.UserID, pair.QuoteCurrency, taker.Price.Mul(remaining)); err != nil {
			return err
		}
	} else {
		if _, err := m.ledger.Unlock(tx, taker.UserID, pair.BaseCurrency, remaining); err != nil {
			return err
		}
	}

	taker.Status = core.OrderStatusTypeCancelled
	taker.UpdatedAt = m.clock.Now()
	if err := tx.Orders().Save(taker); err != nil {
		return err
	}

	m.log.WithFields(map[string]any{
		"order":     taker.ID,
		"pair":      pair.Symbol,
		"remaining": remaining.String(),
	}).Info("market order remainder cancelled")
	return nil
}
