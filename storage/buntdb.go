package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/raykavin/matchbook/core"
	"github.com/samber/lo"
	"github.com/tidwall/buntdb"
)

// Key prefixes for the record types sharing the keyspace
const (
	walletPrefix = "wallet:"
	orderPrefix  = "order:"
	pairPrefix   = "pair:"
	tradePrefix  = "trade:"
)

// BuntStorage implements core.Storage using BuntDB. Update transactions are
// single-writer and serializable, so GetForUpdate degenerates to Get: a
// writing transaction already excludes every other writer.
type BuntStorage struct {
	lastOrderID  int64
	lastWalletID int64
	lastTradeID  int64
	db           *buntdb.DB
}

// BuntConfig holds configuration options for BuntDB
type BuntConfig struct {
	// SyncPolicy determines how often data is synchronized to disk
	SyncPolicy buntdb.SyncPolicy
}

// DefaultBuntConfig returns the default configuration for BuntDB
func DefaultBuntConfig() BuntConfig {
	return BuntConfig{SyncPolicy: buntdb.Never}
}

// NewFromMemory creates an in-memory storage with default configuration
func NewFromMemory() (core.Storage, error) {
	return NewBuntStorage(":memory:", DefaultBuntConfig())
}

// NewFromFile creates a file-based storage with default configuration
func NewFromFile(file string) (core.Storage, error) {
	return NewBuntStorage(file, DefaultBuntConfig())
}

// NewBuntStorage creates a new BuntDB storage instance with the specified configuration
func NewBuntStorage(sourceFile string, config BuntConfig) (core.Storage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{
		SyncPolicy: config.SyncPolicy,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	storage := &BuntStorage{db: db}
	if err := storage.recoverCounters(); err != nil {
		return nil, fmt.Errorf("failed to recover id counters: %w", err)
	}

	return storage, nil
}

// recoverCounters rescans the keyspace after reopening a file so assigned ids
// stay monotonic across restarts.
func (b *BuntStorage) recoverCounters() error {
	return b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("*", func(key, value string) bool {
			switch {
			case strings.HasPrefix(key, orderPrefix):
				if id, err := strconv.ParseInt(key[len(orderPrefix):], 10, 64); err == nil && id > b.lastOrderID {
					b.lastOrderID = id
				}
			case strings.HasPrefix(key, tradePrefix):
				if id, err := strconv.ParseInt(key[len(tradePrefix):], 10, 64); err == nil && id > b.lastTradeID {
					b.lastTradeID = id
				}
			case strings.HasPrefix(key, walletPrefix):
				var wallet core.Wallet
				if err := json.Unmarshal([]byte(value), &wallet); err == nil && wallet.ID > b.lastWalletID {
					b.lastWalletID = wallet.ID
				}
			}
			return true
		})
	})
}

// Transaction runs fn inside one writable BuntDB transaction. BuntDB commits
// on nil and rolls back when fn returns an error.
func (b *BuntStorage) Transaction(ctx context.Context, fn func(tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		return fn(&buntTx{tx: tx, storage: b})
	})
}

// Close closes the database
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

type buntTx struct {
	tx      *buntdb.Tx
	storage *BuntStorage
}

func (t *buntTx) Wallets() core.WalletStore { return &buntWalletStore{t} }
func (t *buntTx) Orders() core.OrderStore   { return &buntOrderStore{t} }
func (t *buntTx) Pairs() core.PairStore     { return &buntPairStore{t} }
func (t *buntTx) Trades() core.TradeStore   { return &buntTradeStore{t} }

func (t *buntTx) set(key string, record any) error {
	content, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, _, err := t.tx.Set(key, string(content), nil); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

// collect decodes every record stored under a key prefix.
func collect[T any](t *buntTx, prefix string) ([]*T, error) {
	records := make([]*T, 0)
	err := t.tx.AscendKeys(prefix+"*", func(key, value string) bool {
		var record T
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return true // skip unreadable record, keep iterating
		}
		records = append(records, &record)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over %s records: %w", strings.TrimSuffix(prefix, ":"), err)
	}
	return records, nil
}

// ---------------------
// Wallets
// ---------------------

type buntWalletStore struct {
	t *buntTx
}

func walletKey(userID, currency string) string {
	return walletPrefix + userID + ":" + currency
}

func (s *buntWalletStore) Get(userID, currency string) (*core.Wallet, error) {
	value, err := s.t.tx.Get(walletKey(userID, currency))
	if err == buntdb.ErrNotFound {
		return nil, &core.WalletNotFoundError{UserID: userID, Currency: currency}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet: %w", err)
	}

	var wallet core.Wallet
	if err := json.Unmarshal([]byte(value), &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}
	return &wallet, nil
}

// GetForUpdate is identical to Get: the enclosing update transaction is the
// only writer.
func (s *buntWalletStore) GetForUpdate(userID, currency string) (*core.Wallet, error) {
	return s.Get(userID, currency)
}

func (s *buntWalletStore) Create(wallet *core.Wallet) error {
	if wallet.ID == 0 {
		wallet.ID = atomic.AddInt64(&s.t.storage.lastWalletID, 1)
	}
	return s.t.set(walletKey(wallet.UserID, wallet.Currency), wallet)
}

func (s *buntWalletStore) Save(wallet *core.Wallet) error {
	key := walletKey(wallet.UserID, wallet.Currency)
	if _, err := s.t.tx.Get(key); err == buntdb.ErrNotFound {
		return &core.WalletNotFoundError{UserID: wallet.UserID, Currency: wallet.Currency}
	}
	return s.t.set(key, wallet)
}

func (s *buntWalletStore) All() ([]*core.Wallet, error) {
	wallets, err := collect[core.Wallet](s.t, walletPrefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].UserID != wallets[j].UserID {
			return wallets[i].UserID < wallets[j].UserID
		}
		return wallets[i].Currency < wallets[j].Currency
	})
	return wallets, nil
}

// ---------------------
// Orders
// ---------------------

type buntOrderStore struct {
	t *buntTx
}

func orderKey(id int64) string {
	return fmt.Sprintf("%s%012d", orderPrefix, id)
}

func (s *buntOrderStore) Create(order *core.Order) error {
	if order.ID == 0 {
		order.ID = atomic.AddInt64(&s.t.storage.lastOrderID, 1)
	}
	return s.t.set(orderKey(order.ID), order)
}

func (s *buntOrderStore) Save(order *core.Order) error {
	key := orderKey(order.ID)
	if _, err := s.t.tx.Get(key); err == buntdb.ErrNotFound {
		return &core.OrderNotFoundError{OrderID: order.ID}
	}
	return s.t.set(key, order)
}

func (s *buntOrderStore) Get(id int64) (*core.Order, error) {
	value, err := s.t.tx.Get(orderKey(id))
	if err == buntdb.ErrNotFound {
		return nil, &core.OrderNotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}

	var order core.Order
	if err := json.Unmarshal([]byte(value), &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &order, nil
}

func (s *buntOrderStore) GetForUpdate(id int64) (*core.Order, error) {
	return s.Get(id)
}

func (s *buntOrderStore) OpenOrders(pair string, side core.SideType) ([]*core.Order, error) {
	orders, err := collect[core.Order](s.t, orderPrefix)
	if err != nil {
		return nil, err
	}

	orders = lo.Filter(orders, func(order *core.Order, _ int) bool {
		return order.PairSymbol == pair &&
			order.Side == side &&
			order.Status == core.OrderStatusTypeOpen
	})
	sortPriceTime(orders, side)
	return orders, nil
}

func (s *buntOrderStore) UserOrders(userID string, filters ...core.OrderFilter) ([]*core.Order, error) {
	orders, err := collect[core.Order](s.t, orderPrefix)
	if err != nil {
		return nil, err
	}

	orders = lo.Filter(orders, func(order *core.Order, _ int) bool {
		return order.UserID == userID
	})
	orders = applyFilters(orders, filters)
	sortNewestFirst(orders)
	return orders, nil
}

func (s *buntOrderStore) Book(pair string, side core.SideType) ([]*core.Order, error) {
	orders, err := collect[core.Order](s.t, orderPrefix)
	if err != nil {
		return nil, err
	}

	orders = lo.Filter(orders, func(order *core.Order, _ int) bool {
		if order.PairSymbol != pair || order.Status != core.OrderStatusTypeOpen {
			return false
		}
		return side == "" || order.Side == side
	})
	sortPriceTime(orders, side)
	return orders, nil
}

// ---------------------
// Pairs
// ---------------------

type buntPairStore struct {
	t *buntTx
}

func (s *buntPairStore) Get(symbol string) (*core.TradingPair, error) {
	value, err := s.t.tx.Get(pairPrefix + symbol)
	if err == buntdb.ErrNotFound {
		return nil, &core.PairNotFoundError{Symbol: symbol}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pair: %w", err)
	}

	var pair core.TradingPair
	if err := json.Unmarshal([]byte(value), &pair); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pair: %w", err)
	}
	return &pair, nil
}

func (s *buntPairStore) Create(pair *core.TradingPair) error {
	return s.t.set(pairPrefix+pair.Symbol, pair)
}

func (s *buntPairStore) Save(pair *core.TradingPair) error {
	key := pairPrefix + pair.Symbol
	if _, err := s.t.tx.Get(key); err == buntdb.ErrNotFound {
		return &core.PairNotFoundError{Symbol: pair.Symbol}
	}
	return s.t.set(key, pair)
}

func (s *buntPairStore) List() ([]*core.TradingPair, error) {
	pairs, err := collect[core.TradingPair](s.t, pairPrefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Symbol < pairs[j].Symbol })
	return pairs, nil
}

// ---------------------
// Trades
// ---------------------

type buntTradeStore struct {
	t *buntTx
}

func (s *buntTradeStore) Create(trade *core.Trade) error {
	if trade.ID == 0 {
		trade.ID = atomic.AddInt64(&s.t.storage.lastTradeID, 1)
	}
	return s.t.set(fmt.Sprintf("%s%012d", tradePrefix, trade.ID), trade)
}

func (s *buntTradeStore) ByPair(symbol string) ([]*core.Trade, error) {
	trades, err := collect[core.Trade](s.t, tradePrefix)
	if err != nil {
		return nil, err
	}
	return lo.Filter(trades, func(trade *core.Trade, _ int) bool {
		return trade.PairSymbol == symbol
	}), nil
}
