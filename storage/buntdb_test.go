package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/raykavin/matchbook/core"
	"github.com/raykavin/matchbook/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) core.Storage {
	t.Helper()
	store, err := storage.NewFromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func newOrder(user, pair string, side core.SideType, price string, createdAt time.Time) *core.Order {
	return &core.Order{
		UserID:       user,
		PairSymbol:   pair,
		Side:         side,
		Type:         core.OrderTypeLimit,
		Price:        d(price),
		Amount:       d("1"),
		FilledAmount: decimal.Zero,
		Status:       core.OrderStatusTypeOpen,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestBuntWallets_CRUD(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx core.Tx) error {
		_, err := tx.Wallets().Get("alice", "BTC")
		var notFound *core.WalletNotFoundError
		require.ErrorAs(t, err, &notFound)

		wallet := &core.Wallet{UserID: "alice", Currency: "BTC", Balance: d("1"), Locked: decimal.Zero}
		require.NoError(t, tx.Wallets().Create(wallet))
		require.NotZero(t, wallet.ID)

		wallet.Balance = d("2")
		require.NoError(t, tx.Wallets().Save(wallet))

		loaded, err := tx.Wallets().Get("alice", "BTC")
		require.NoError(t, err)
		require.True(t, loaded.Balance.Equal(d("2")))

		// Saving a wallet that was never created fails.
		err = tx.Wallets().Save(&core.Wallet{UserID: "ghost", Currency: "BTC"})
		require.ErrorAs(t, err, &notFound)
		return nil
	})
	require.NoError(t, err)
}

func TestBuntWallets_AllSorted(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx core.Tx) error {
		for _, seed := range []struct{ user, currency string }{
			{"bob", "USDT"}, {"alice", "USDT"}, {"alice", "BTC"},
		} {
			require.NoError(t, tx.Wallets().Create(&core.Wallet{UserID: seed.user, Currency: seed.currency}))
		}

		wallets, err := tx.Wallets().All()
		require.NoError(t, err)
		require.Len(t, wallets, 3)
		require.Equal(t, "alice", wallets[0].UserID)
		require.Equal(t, "BTC", wallets[0].Currency)
		require.Equal(t, "alice", wallets[1].UserID)
		require.Equal(t, "USDT", wallets[1].Currency)
		require.Equal(t, "bob", wallets[2].UserID)
		return nil
	})
	require.NoError(t, err)
}

func TestBuntOrders_OpenOrdersPriority(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	err := store.Transaction(ctx, func(tx core.Tx) error {
		// Two price levels plus a time tie at the best ask.
		early := newOrder("a", "BTC/USDT", core.SideTypeSell, "20000.00", base)
		late := newOrder("b", "BTC/USDT", core.SideTypeSell, "20000.00", base.Add(time.Second))
		cheap := newOrder("c", "BTC/USDT", core.SideTypeSell, "19900.00", base.Add(2*time.Second))
		for _, order := range []*core.Order{early, late, cheap} {
			require.NoError(t, tx.Orders().Create(order))
		}

		// Noise that must not appear: other pair, other side, filled.
		otherPair := newOrder("a", "ETH/USDT", core.SideTypeSell, "100.00", base)
		require.NoError(t, tx.Orders().Create(otherPair))
		bid := newOrder("a", "BTC/USDT", core.SideTypeBuy, "19000.00", base)
		require.NoError(t, tx.Orders().Create(bid))
		filled := newOrder("a", "BTC/USDT", core.SideTypeSell, "19800.00", base)
		filled.Status = core.OrderStatusTypeFilled
		require.NoError(t, tx.Orders().Create(filled))

		asks, err := tx.Orders().OpenOrders("BTC/USDT", core.SideTypeSell)
		require.NoError(t, err)
		require.Len(t, asks, 3)
		require.Equal(t, cheap.ID, asks[0].ID)
		require.Equal(t, early.ID, asks[1].ID)
		require.Equal(t, late.ID, asks[2].ID)

		bids, err := tx.Orders().OpenOrders("BTC/USDT", core.SideTypeBuy)
		require.NoError(t, err)
		require.Len(t, bids, 1)
		require.Equal(t, bid.ID, bids[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestBuntOrders_BuySideSortsDescending(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	err := store.Transaction(ctx, func(tx core.Tx) error {
		low := newOrder("a", "BTC/USDT", core.SideTypeBuy, "18000.00", base)
		high := newOrder("b", "BTC/USDT", core.SideTypeBuy, "19000.00", base.Add(time.Second))
		for _, order := range []*core.Order{low, high} {
			require.NoError(t, tx.Orders().Create(order))
		}

		bids, err := tx.Orders().OpenOrders("BTC/USDT", core.SideTypeBuy)
		require.NoError(t, err)
		require.Len(t, bids, 2)
		require.Equal(t, high.ID, bids[0].ID)
		require.Equal(t, low.ID, bids[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestBuntOrders_UserOrdersFilters(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	err := store.Transaction(ctx, func(tx core.Tx) error {
		first := newOrder("alice", "BTC/USDT", core.SideTypeBuy, "18000.00", base)
		second := newOrder("alice", "ETH/USDT", core.SideTypeSell, "100.00", base.Add(time.Second))
		second.Status = core.OrderStatusTypeCancelled
		third := newOrder("bob", "BTC/USDT", core.SideTypeBuy, "18500.00", base)
		for _, order := range []*core.Order{first, second, third} {
			require.NoError(t, tx.Orders().Create(order))
		}

		all, err := tx.Orders().UserOrders("alice")
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, second.ID, all[0].ID) // newest first

		open, err := tx.Orders().UserOrders("alice", core.WithStatus(core.OrderStatusTypeOpen))
		require.NoError(t, err)
		require.Len(t, open, 1)
		require.Equal(t, first.ID, open[0].ID)

		btc, err := tx.Orders().UserOrders("alice", core.WithPair("BTC/USDT"), core.WithSide(core.SideTypeBuy))
		require.NoError(t, err)
		require.Len(t, btc, 1)

		terminal, err := tx.Orders().UserOrders("alice",
			core.WithStatusIn(core.OrderStatusTypeFilled, core.OrderStatusTypeCancelled))
		require.NoError(t, err)
		require.Len(t, terminal, 1)
		require.Equal(t, second.ID, terminal[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestBuntOrders_GetAndSaveMissing(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx core.Tx) error {
		var notFound *core.OrderNotFoundError
		_, err := tx.Orders().Get(42)
		require.ErrorAs(t, err, &notFound)
		require.Equal(t, int64(42), notFound.OrderID)

		err = tx.Orders().Save(&core.Order{ID: 42})
		require.ErrorAs(t, err, &notFound)
		return nil
	})
	require.NoError(t, err)
}

func TestBuntTransaction_RollsBackOnError(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx core.Tx) error {
		wallet := &core.Wallet{UserID: "alice", Currency: "BTC", Balance: d("1")}
		require.NoError(t, tx.Wallets().Create(wallet))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.Transaction(ctx, func(tx core.Tx) error {
		_, err := tx.Wallets().Get("alice", "BTC")
		var notFound *core.WalletNotFoundError
		require.ErrorAs(t, err, &notFound)
		return nil
	})
	require.NoError(t, err)
}

func TestBuntPairsAndTrades(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx core.Tx) error {
		var notFound *core.PairNotFoundError
		_, err := tx.Pairs().Get("BTC/USDT")
		require.ErrorAs(t, err, &notFound)

		require.NoError(t, tx.Pairs().Create(&core.TradingPair{
			Symbol: "ETH/USDT", BaseCurrency: "ETH", QuoteCurrency: "USDT", IsActive: true,
		}))
		require.NoError(t, tx.Pairs().Create(&core.TradingPair{
			Symbol: "BTC/USDT", BaseCurrency: "BTC", QuoteCurrency: "USDT", IsActive: true,
		}))

		pairs, err := tx.Pairs().List()
		require.NoError(t, err)
		require.Len(t, pairs, 2)
		require.Equal(t, "BTC/USDT", pairs[0].Symbol) // sorted by symbol

		pair, err := tx.Pairs().Get("BTC/USDT")
		require.NoError(t, err)
		pair.IsActive = false
		require.NoError(t, tx.Pairs().Save(pair))

		reloaded, err := tx.Pairs().Get("BTC/USDT")
		require.NoError(t, err)
		require.False(t, reloaded.IsActive)

		require.NoError(t, tx.Trades().Create(&core.Trade{
			PairSymbol: "BTC/USDT", TakerOrderID: 2, MakerOrderID: 1,
			BuyerID: "alice", SellerID: "bob",
			Price: d("20000.00"), Quantity: d("0.5"), Value: d("10000.00"),
		}))
		require.NoError(t, tx.Trades().Create(&core.Trade{
			PairSymbol: "ETH/USDT", TakerOrderID: 4, MakerOrderID: 3,
			BuyerID: "alice", SellerID: "bob",
			Price: d("100.00"), Quantity: d("1"), Value: d("100.00"),
		}))

		trades, err := tx.Trades().ByPair("BTC/USDT")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		require.True(t, trades[0].Value.Equal(d("10000.00")))
		return nil
	})
	require.NoError(t, err)
}

func TestBuntCounters_SurviveReopen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "book.db")
	ctx := context.Background()

	store, err := storage.NewFromFile(file)
	require.NoError(t, err)

	var firstID int64
	err = store.Transaction(ctx, func(tx core.Tx) error {
		order := newOrder("alice", "BTC/USDT", core.SideTypeBuy, "18000.00", time.Now().UTC())
		if err := tx.Orders().Create(order); err != nil {
			return err
		}
		firstID = order.ID
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := storage.NewFromFile(file)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	err = reopened.Transaction(ctx, func(tx core.Tx) error {
		order := newOrder("bob", "BTC/USDT", core.SideTypeBuy, "18100.00", time.Now().UTC())
		if err := tx.Orders().Create(order); err != nil {
			return err
		}
		require.Greater(t, order.ID, firstID)
		return nil
	})
	require.NoError(t, err)
}
