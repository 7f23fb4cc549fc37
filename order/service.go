// Package order exposes the order lifecycle: validation, balance locking,
// matching, cancellation and book queries.
package order

import (
	"context"
	"sync"

	"github.com/raykavin/matchbook/core"
	"github.com/raykavin/matchbook/engine"
	"github.com/raykavin/matchbook/ledger"
	"github.com/shopspring/decimal"
)

// Service is the façade over the validator, the ledger and the matching
// engine. Mutating operations on the same pair are serialized in-process; row
// locks inside the transaction protect cross-process access.
type Service struct {
	storage core.Storage
	ledger  *ledger.Service
	matcher *engine.Matcher
	log     core.Logger
	clock   core.Clock

	validator validator

	mu        sync.Mutex
	pairLocks map[string]*sync.Mutex
}

// Option configures the order service
type Option func(*Service)

// WithNotionalBounds overrides the minimum and maximum order value in quote
// currency.
func WithNotionalBounds(min, max decimal.Decimal) Option {
	return func(s *Service) {
		s.validator.minNotional = min
		s.validator.maxNotional = max
	}
}

// WithClock overrides the timestamp source
func WithClock(clock core.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService creates a new order service
func NewService(storage core.Storage, ledger *ledger.Service, matcher *engine.Matcher,
	log core.Logger, options ...Option) *Service {

	service := &Service{
		storage:   storage,
		ledger:    ledger,
		matcher:   matcher,
		log:       log,
		clock:     core.NewClock(),
		pairLocks: make(map[string]*sync.Mutex),
		validator: validator{
			minNotional: DefaultMinNotional,
			maxNotional: DefaultMaxNotional,
		},
	}

	for _, option := range options {
		option(service)
	}
	return service
}

// pairLock returns the mutex serializing mutations on a pair, creating it on
// first use.
func (s *Service) pairLock(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.pairLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[symbol] = lock
	}
	return lock
}

// PlaceOrder validates the request, locks the required balance, inserts the
// order as OPEN and matches it against the book, all in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, userID, symbol string, side core.SideType,
	typ core.OrderType, price, amount decimal.Decimal) (*core.Order, error) {

	lock := s.pairLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	var placed *core.Order
	var trades []core.Trade
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		pair, err := tx.Pairs().Get(symbol)
		if err != nil {
			return err
		}

		if err := s.validator.validate(tx, userID, pair, side, typ, price, amount); err != nil {
			return err
		}

		// Reserve the funds the order may consume: quote for a BUY,
		// base for a SELL.
		if side == core.SideTypeBuy {
			_, err = s.ledger.Lock(tx, userID, pair.QuoteCurrency, price.Mul(amount))
		} else {
			_, err = s.ledger.Lock(tx, userID, pair.BaseCurrency, amount)
		}
		if err != nil {
			return err
		}

		now := s.clock.Now()
		placed = &core.Order{
			UserID:       userID,
			PairSymbol:   symbol,
			Side:         side,
			Type:         typ,
			Price:        price,
			Amount:       amount,
			FilledAmount: decimal.Zero,
			Status:       core.OrderStatusTypeOpen,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Orders().Create(placed); err != nil {
			return err
		}

		trades, err = s.matcher.Match(tx, placed, pair)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]any{
		"order":  placed.ID,
		"user":   userID,
		"pair":   symbol,
		"side":   side,
		"type":   typ,
		"price":  price.String(),
		"amount": amount.String(),
		"trades": len(trades),
	}).Info("order placed")
	return placed, nil
}

// CancelOrder cancels a PENDING or OPEN order owned by the user and releases
// the reservation backing its unfilled remainder.
func (s *Service) CancelOrder(ctx context.Context, userID string, orderID int64) (*core.Order, error) {
	// Resolve the pair first so the per-pair serialization covers the
	// cancel; ownership and status are re-checked under the row lock.
	var symbol string
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		order, err := tx.Orders().Get(orderID)
		if err != nil {
			return err
		}
		symbol = order.PairSymbol
		return nil
	})
	if err != nil {
		return nil, err
	}

	lock := s.pairLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	var cancelled *core.Order
	err = s.storage.Transaction(ctx, func(tx core.Tx) error {
		order, err := tx.Orders().GetForUpdate(orderID)
		if err != nil {
			return err
		}

		if order.UserID != userID {
			return &core.InvalidOrderError{Reason: "not your order"}
		}
		if !order.IsActive() {
			return &core.InvalidOrderError{Reason: "cannot cancel " + string(order.Status) + " order"}
		}

		pair, err := tx.Pairs().Get(order.PairSymbol)
		if err != nil {
			return err
		}

		if unfilled := order.Remaining(); unfilled.IsPositive() {
			if order.IsBuy() {
				_, err = s.ledger.Unlock(tx, userID, pair.QuoteCurrency, order.Price.Mul(unfilled))
			} else {
				_, err = s.ledger.Unlock(tx, userID, pair.BaseCurrency, unfilled)
			}
			if err != nil {
				return err
			}
		}

		order.Status = core.OrderStatusTypeCancelled
		order.UpdatedAt = s.clock.Now()
		if err := tx.Orders().Save(order); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]any{
		"order": cancelled.ID,
		"user":  userID,
		"pair":  cancelled.PairSymbol,
	}).Info("order cancelled")
	return cancelled, nil
}

// UserOrders returns a user's orders, newest first, optionally filtered by
// status and pair (zero values mean no filter).
func (s *Service) UserOrders(ctx context.Context, userID string, status core.OrderStatusType, pair string) ([]*core.Order, error) {
	filters := make([]core.OrderFilter, 0, 2)
	if status != "" {
		filters = append(filters, core.WithStatus(status))
	}
	if pair != "" {
		filters = append(filters, core.WithPair(pair))
	}

	var orders []*core.Order
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		var err error
		orders, err = tx.Orders().UserOrders(userID, filters...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// OrderBook returns the OPEN orders of a pair sorted by price-time priority,
// optionally restricted to one side.
func (s *Service) OrderBook(ctx context.Context, symbol string, side core.SideType) ([]*core.Order, error) {
	var orders []*core.Order
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		pair, err := tx.Pairs().Get(symbol)
		if err != nil {
			return err
		}
		orders, err = tx.Orders().Book(pair.Symbol, side)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}
