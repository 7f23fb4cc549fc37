// Package market manages the trading-pair registry.
package market

import (
	"context"
	"errors"
	"strings"

	"github.com/raykavin/matchbook/core"
)

// Service creates and administers trading pairs. Deactivating a pair only
// gates new orders; resting orders keep matching and stay cancellable.
type Service struct {
	storage core.Storage
	log     core.Logger
	clock   core.Clock
}

// NewService creates a new market service
func NewService(storage core.Storage, log core.Logger, clock core.Clock) *Service {
	return &Service{
		storage: storage,
		log:     log,
		clock:   clock,
	}
}

// CreatePair registers a new active trading pair
func (s *Service) CreatePair(ctx context.Context, symbol, base, quote string) (*core.TradingPair, error) {
	symbol = strings.TrimSpace(symbol)
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))

	if symbol == "" {
		return nil, &core.InvalidOrderError{Reason: "empty pair symbol"}
	}
	if base == "" || quote == "" {
		return nil, &core.InvalidOrderError{Reason: "empty base or quote currency"}
	}
	if base == quote {
		return nil, &core.InvalidOrderError{Reason: "base and quote currency must differ"}
	}

	pair := &core.TradingPair{
		Symbol:        symbol,
		BaseCurrency:  base,
		QuoteCurrency: quote,
		IsActive:      true,
		CreatedAt:     s.clock.Now(),
	}

	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		_, err := tx.Pairs().Get(symbol)
		if err == nil {
			return &core.InvalidOrderError{Reason: "pair " + symbol + " already exists"}
		}
		var notFound *core.PairNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		return tx.Pairs().Create(pair)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]any{
		"symbol": symbol,
		"base":   base,
		"quote":  quote,
	}).Info("pair created")
	return pair, nil
}

// GetPair fetches a pair by symbol
func (s *Service) GetPair(ctx context.Context, symbol string) (*core.TradingPair, error) {
	var pair *core.TradingPair
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		var err error
		pair, err = tx.Pairs().Get(symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// ListPairs returns every registered pair, sorted by symbol
func (s *Service) ListPairs(ctx context.Context) ([]*core.TradingPair, error) {
	var pairs []*core.TradingPair
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		var err error
		pairs, err = tx.Pairs().List()
		return err
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// SetActive flips the gate for new orders on a pair
func (s *Service) SetActive(ctx context.Context, symbol string, active bool) (*core.TradingPair, error) {
	var pair *core.TradingPair
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		var err error
		if pair, err = tx.Pairs().Get(symbol); err != nil {
			return err
		}
		pair.IsActive = active
		return tx.Pairs().Save(pair)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]any{
		"symbol": symbol,
		"active": active,
	}).Info("pair updated")
	return pair, nil
}
