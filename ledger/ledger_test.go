package ledger_test

import (
	"context"
	"io"
	"testing"

	"github.com/raykavin/matchbook/core"
	"github.com/raykavin/matchbook/ledger"
	zerologger "github.com/raykavin/matchbook/logger/zerolog"
	"github.com/raykavin/matchbook/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) (*ledger.Service, core.Storage) {
	t.Helper()

	store, err := storage.NewFromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := zerologger.New(io.Discard, core.Disabled)
	return ledger.NewService(store, log, core.NewClock()), store
}

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestLedger_DepositCreatesWallet(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	wallet, err := svc.Deposit(ctx, "alice", "usdt", d("100.5"))
	require.NoError(t, err)
	require.Equal(t, "USDT", wallet.Currency)
	require.True(t, wallet.Balance.Equal(d("100.5")))
	require.True(t, wallet.Locked.IsZero())

	wallet, err = svc.Deposit(ctx, "alice", "USDT", d("9.5"))
	require.NoError(t, err)
	require.True(t, wallet.Balance.Equal(d("110")))
}

func TestLedger_DepositRejectsNonPositive(t *testing.T) {
	svc, _ := setupLedger(t)

	_, err := svc.Deposit(context.Background(), "alice", "USDT", d("0"))
	var invalid *core.InvalidAmountError
	require.ErrorAs(t, err, &invalid)

	_, err = svc.Deposit(context.Background(), "alice", "USDT", d("-1"))
	require.ErrorAs(t, err, &invalid)
}

func TestLedger_Withdraw(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "USDT", d("100"))
	require.NoError(t, err)

	wallet, err := svc.Withdraw(ctx, "alice", "USDT", d("40"))
	require.NoError(t, err)
	require.True(t, wallet.Balance.Equal(d("60")))
}

func TestLedger_WithdrawRespectsLocked(t *testing.T) {
	svc, store := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "USDT", d("100"))
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx core.Tx) error {
		_, err := svc.Lock(tx, "alice", "USDT", d("70"))
		return err
	})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, "alice", "USDT", d("50"))
	var insufficient *core.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Required.Equal(d("50")))
	require.True(t, insufficient.Available.Equal(d("30")))
	require.Equal(t, "USDT", insufficient.Currency)

	// The failed withdrawal must not have touched the wallet.
	wallet, err := svc.GetWallet(ctx, "alice", "USDT")
	require.NoError(t, err)
	require.True(t, wallet.Balance.Equal(d("100")))
	require.True(t, wallet.Locked.Equal(d("70")))
}

func TestLedger_GetWalletNotFound(t *testing.T) {
	svc, _ := setupLedger(t)

	_, err := svc.GetWallet(context.Background(), "ghost", "BTC")
	var notFound *core.WalletNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "ghost", notFound.UserID)
	require.Equal(t, "BTC", notFound.Currency)
}

func TestLedger_LockUnlock(t *testing.T) {
	svc, store := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "BTC", d("1"))
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx core.Tx) error {
		wallet, err := svc.Lock(tx, "alice", "BTC", d("0.6"))
		if err != nil {
			return err
		}
		require.True(t, wallet.Locked.Equal(d("0.6")))
		require.True(t, wallet.Available().Equal(d("0.4")))

		// Locking beyond available fails and leaves state intact.
		_, err = svc.Lock(tx, "alice", "BTC", d("0.5"))
		var insufficient *core.InsufficientBalanceError
		require.ErrorAs(t, err, &insufficient)

		wallet, err = svc.Unlock(tx, "alice", "BTC", d("0.6"))
		if err != nil {
			return err
		}
		require.True(t, wallet.Locked.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_UnlockMoreThanLocked(t *testing.T) {
	svc, store := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "BTC", d("1"))
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx core.Tx) error {
		_, err := svc.Unlock(tx, "alice", "BTC", d("0.1"))
		var invalid *core.InvalidAmountError
		require.ErrorAs(t, err, &invalid)
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_TransferLocked(t *testing.T) {
	svc, store := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "bob", "BTC", d("2"))
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx core.Tx) error {
		if _, err := svc.Lock(tx, "bob", "BTC", d("1.5")); err != nil {
			return err
		}

		from, to, err := svc.TransferLocked(tx, "bob", "alice", "BTC", d("1"))
		if err != nil {
			return err
		}
		require.True(t, from.Balance.Equal(d("1")))
		require.True(t, from.Locked.Equal(d("0.5")))
		require.True(t, to.Balance.Equal(d("1")))
		require.True(t, to.Locked.IsZero())
		return nil
	})
	require.NoError(t, err)

	// Conservation: total BTC across wallets is unchanged.
	total := decimal.Zero
	err = store.Transaction(ctx, func(tx core.Tx) error {
		wallets, err := tx.Wallets().All()
		if err != nil {
			return err
		}
		for _, wallet := range wallets {
			require.True(t, wallet.Locked.GreaterThanOrEqual(decimal.Zero))
			require.True(t, wallet.Locked.LessThanOrEqual(wallet.Balance))
			total = total.Add(wallet.Balance)
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, total.Equal(d("2")))
}

func TestLedger_TransferLockedRequiresLockedFunds(t *testing.T) {
	svc, store := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "bob", "BTC", d("2"))
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx core.Tx) error {
		_, _, err := svc.TransferLocked(tx, "bob", "alice", "BTC", d("1"))
		var insufficient *core.InsufficientBalanceError
		require.ErrorAs(t, err, &insufficient)
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_ConcurrentDeposits(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	const workers = 8
	done := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := svc.Deposit(ctx, "alice", "USDT", d("10"))
			done <- err
		}()
	}
	for i := 0; i < workers; i++ {
		require.NoError(t, <-done)
	}

	wallet, err := svc.GetWallet(ctx, "alice", "USDT")
	require.NoError(t, err)
	require.True(t, wallet.Balance.Equal(d("80")))
}
