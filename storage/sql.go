package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raykavin/matchbook/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStorage implements core.Storage on a SQL database via GORM. Pessimistic
// row locking maps to SELECT ... FOR UPDATE, so the backend must support it
// (postgres in production).
type SQLStorage struct {
	db *gorm.DB
}

// FromSQL creates a new SQL storage instance
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (core.Storage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pooling parameters
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(&core.TradingPair{}, &core.Wallet{}, &core.Order{}, &core.Trade{})
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStorage{db: db}, nil
}

// Transaction runs fn inside one database transaction. A serialization
// failure or deadlock is retried once before surfacing as
// core.ConcurrencyConflictError.
func (s *SQLStorage) Transaction(ctx context.Context, fn func(tx core.Tx) error) error {
	run := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&sqlTx{db: tx})
		})
	}

	err := run()
	if err != nil && isRetriable(err) {
		if err = run(); err != nil && isRetriable(err) {
			return &core.ConcurrencyConflictError{Op: "transaction"}
		}
	}
	return err
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// isRetriable reports whether the driver signalled a serialization failure
// (postgres SQLSTATE 40001/40P01).
func isRetriable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "40001") ||
		strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "deadlock detected")
}

type sqlTx struct {
	db *gorm.DB
}

func (t *sqlTx) Wallets() core.WalletStore { return &sqlWalletStore{db: t.db} }
func (t *sqlTx) Orders() core.OrderStore   { return &sqlOrderStore{db: t.db} }
func (t *sqlTx) Pairs() core.PairStore     { return &sqlPairStore{db: t.db} }
func (t *sqlTx) Trades() core.TradeStore   { return &sqlTradeStore{db: t.db} }

// ---------------------
// Wallets
// ---------------------

type sqlWalletStore struct {
	db *gorm.DB
}

func (s *sqlWalletStore) Get(userID, currency string) (*core.Wallet, error) {
	var wallet core.Wallet
	result := s.db.Where("user_id = ? AND currency = ?", userID, currency).First(&wallet)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, &core.WalletNotFoundError{UserID: userID, Currency: currency}
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch wallet: %w", result.Error)
	}
	return &wallet, nil
}

func (s *sqlWalletStore) GetForUpdate(userID, currency string) (*core.Wallet, error) {
	var wallet core.Wallet
	result := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&wallet)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, &core.WalletNotFoundError{UserID: userID, Currency: currency}
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", result.Error)
	}
	return &wallet, nil
}

func (s *sqlWalletStore) Create(wallet *core.Wallet) error {
	if result := s.db.Create(wallet); result.Error != nil {
		return fmt.Errorf("failed to create wallet: %w", result.Error)
	}
	return nil
}

func (s *sqlWalletStore) Save(wallet *core.Wallet) error {
	if result := s.db.Save(wallet); result.Error != nil {
		return fmt.Errorf("failed to update wallet: %w", result.Error)
	}
	return nil
}

func (s *sqlWalletStore) All() ([]*core.Wallet, error) {
	var wallets []*core.Wallet
	result := s.db.Order("user_id, currency").Find(&wallets)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch wallets: %w", result.Error)
	}
	return wallets, nil
}

// ---------------------
// Orders
// ---------------------

type sqlOrderStore struct {
	db *gorm.DB
}

func (s *sqlOrderStore) Create(order *core.Order) error {
	if result := s.db.Create(order); result.Error != nil {
		return fmt.Errorf("failed to create order: %w", result.Error)
	}
	return nil
}

func (s *sqlOrderStore) Save(order *core.Order) error {
	if result := s.db.Save(order); result.Error != nil {
		return fmt.Errorf("failed to update order: %w", result.Error)
	}
	return nil
}

func (s *sqlOrderStore) Get(id int64) (*core.Order, error) {
	var order core.Order
	result := s.db.First(&order, id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, &core.OrderNotFoundError{OrderID: id}
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", result.Error)
	}
	return &order, nil
}

func (s *sqlOrderStore) GetForUpdate(id int64) (*core.Order, error) {
	var order core.Order
	result := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, &core.OrderNotFoundError{OrderID: id}
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to lock order: %w", result.Error)
	}
	return &order, nil
}

func (s *sqlOrderStore) OpenOrders(pair string, side core.SideType) ([]*core.Order, error) {
	priceOrder := "price ASC"
	if side == core.SideTypeBuy {
		priceOrder = "price DESC"
	}

	var orders []*core.Order
	result := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pair_symbol = ? AND side = ? AND status = ?", pair, side, core.OrderStatusTypeOpen).
		Order(priceOrder + ", created_at ASC, id ASC").
		Find(&orders)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch open orders: %w", result.Error)
	}
	return orders, nil
}

func (s *sqlOrderStore) UserOrders(userID string, filters ...core.OrderFilter) ([]*core.Order, error) {
	var orders []*core.Order
	result := s.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&orders)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch user orders: %w", result.Error)
	}
	return applyFilters(orders, filters), nil
}

func (s *sqlOrderStore) Book(pair string, side core.SideType) ([]*core.Order, error) {
	priceOrder := "price ASC"
	if side == core.SideTypeBuy {
		priceOrder = "price DESC"
	}

	query := s.db.Where("pair_symbol = ? AND status = ?", pair, core.OrderStatusTypeOpen)
	if side != "" {
		query = query.Where("side = ?", side)
	}

	var orders []*core.Order
	result := query.Order(priceOrder + ", created_at ASC, id ASC").Find(&orders)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch order book: %w", result.Error)
	}
	return orders, nil
}

// ---------------------
// Pairs
// ---------------------

type sqlPairStore struct {
	db *gorm.DB
}

func (s *sqlPairStore) Get(symbol string) (*core.TradingPair, error) {
	var pair core.TradingPair
	result := s.db.Where("symbol = ?", symbol).First(&pair)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, &core.PairNotFoundError{Symbol: symbol}
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch pair: %w", result.Error)
	}
	return &pair, nil
}

func (s *sqlPairStore) Create(pair *core.TradingPair) error {
	if result := s.db.Create(pair); result.Error != nil {
		return fmt.Errorf("failed to create pair: %w", result.Error)
	}
	return nil
}

func (s *sqlPairStore) Save(pair *core.TradingPair) error {
	if result := s.db.Save(pair); result.Error != nil {
		return fmt.Errorf("failed to update pair: %w", result.Error)
	}
	return nil
}

func (s *sqlPairStore) List() ([]*core.TradingPair, error) {
	var pairs []*core.TradingPair
	result := s.db.Order("symbol").Find(&pairs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch pairs: %w", result.Error)
	}
	return pairs, nil
}

// ---------------------
// Trades
// ---------------------

type sqlTradeStore struct {
	db *gorm.DB
}

func (s *sqlTradeStore) Create(trade *core.Trade) error {
	if result := s.db.Create(trade); result.Error != nil {
		return fmt.Errorf("failed to create trade: %w", result.Error)
	}
	return nil
}

func (s *sqlTradeStore) ByPair(symbol string) ([]*core.Trade, error) {
	var trades []*core.Trade
	result := s.db.Where("pair_symbol = ?", symbol).Order("id").Find(&trades)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", result.Error)
	}
	return trades, nil
}
