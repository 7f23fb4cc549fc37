package main

import (
	"context"
	"fmt"
	"os"

	"github.com/raykavin/matchbook/core"
	"github.com/raykavin/matchbook/engine"
	"github.com/raykavin/matchbook/ledger"
	zerologger "github.com/raykavin/matchbook/logger/zerolog"
	"github.com/raykavin/matchbook/market"
	"github.com/raykavin/matchbook/order"
	"github.com/raykavin/matchbook/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
)

// Command line flags
var (
	dsn     string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "matchbook",
		Short:   "Spot-trading matching and settlement core",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildDemoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildDemoCmd() *cobra.Command {
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted trading session against an embedded or SQL store",
		RunE:  runDemo,
	}

	demoCmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN (default: in-memory store)")
	demoCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return demoCmd
}

func runDemo(_ *cobra.Command, _ []string) error {
	level := core.InfoLevel
	if verbose {
		level = core.DebugLevel
	}
	log := zerologger.NewConsole(level)

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	clock := core.NewClock()
	wallets := ledger.NewService(store, log, clock)
	markets := market.NewService(store, log, clock)
	matcher := engine.NewMatcher(wallets, log, clock)
	orders := order.NewService(store, wallets, matcher, log, order.WithClock(clock))

	ctx := context.Background()

	if _, err := markets.CreatePair(ctx, "BTC/USDT", "BTC", "USDT"); err != nil {
		return err
	}
	if _, err := wallets.Deposit(ctx, "alice", "USDT", decimal.RequireFromString("50000")); err != nil {
		return err
	}
	if _, err := wallets.Deposit(ctx, "bob", "BTC", decimal.RequireFromString("2")); err != nil {
		return err
	}

	// Bob quotes an ask, Alice lifts half of it, then Bob pulls the rest.
	ask, err := orders.PlaceOrder(ctx, "bob", "BTC/USDT", core.SideTypeSell,
		core.OrderTypeLimit, decimal.RequireFromString("20000.50"), decimal.RequireFromString("1"))
	if err != nil {
		return err
	}
	if _, err := orders.PlaceOrder(ctx, "alice", "BTC/USDT", core.SideTypeBuy,
		core.OrderTypeLimit, decimal.RequireFromString("21000.00"), decimal.RequireFromString("0.5")); err != nil {
		return err
	}
	if _, err := orders.CancelOrder(ctx, "bob", ask.ID); err != nil {
		return err
	}

	book, err := orders.OrderBook(ctx, "BTC/USDT", "")
	if err != nil {
		return err
	}
	log.Infof("book depth after session: %d", len(book))

	for _, holding := range []struct{ user, currency string }{
		{"alice", "USDT"}, {"alice", "BTC"}, {"bob", "USDT"}, {"bob", "BTC"},
	} {
		wallet, err := wallets.GetWallet(ctx, holding.user, holding.currency)
		if err != nil {
			return err
		}
		log.Infof("%s %s: balance=%s locked=%s", holding.user, holding.currency,
			wallet.Balance, wallet.Locked)
	}

	return nil
}

func openStorage() (core.Storage, error) {
	if dsn == "" {
		return storage.NewFromMemory()
	}
	return storage.FromSQL(postgres.Open(dsn))
}
