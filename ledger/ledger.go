// Package ledger implements wallet accounting: deposits, withdrawals,
// balance locking and the settlement primitive used by the matching engine.
package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/raykavin/matchbook/core"
	"github.com/shopspring/decimal"
)

// Service exposes wallet operations. Deposit, Withdraw and GetWallet open
// their own transaction; GetOrCreate, Lock, Unlock and TransferLocked are
// primitives meant to run inside an enclosing transaction (order placement,
// matching, cancellation).
type Service struct {
	storage core.Storage
	log     core.Logger
	clock   core.Clock
}

// NewService creates a new ledger service
func NewService(storage core.Storage, log core.Logger, clock core.Clock) *Service {
	return &Service{
		storage: storage,
		log:     log,
		clock:   clock,
	}
}

// Deposit credits amount to the user's wallet, creating it if needed
func (s *Service) Deposit(ctx context.Context, userID, currency string, amount decimal.Decimal) (*core.Wallet, error) {
	currency = normalize(currency)
	if !amount.IsPositive() {
		return nil, &core.InvalidAmountError{Field: "deposit amount", Value: amount}
	}

	var wallet *core.Wallet
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		var err error
		if wallet, err = s.GetOrCreate(tx, userID, currency); err != nil {
			return err
		}

		wallet.Balance = wallet.Balance.Add(amount)
		wallet.UpdatedAt = s.clock.Now()
		return tx.Wallets().Save(wallet)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]any{
		"user":     userID,
		"currency": currency,
		"amount":   amount.String(),
	}).Info("deposit")
	return wallet, nil
}

// Withdraw debits amount from the user's available balance
func (s *Service) Withdraw(ctx context.Context, userID, currency string, amount decimal.Decimal) (*core.Wallet, error) {
	currency = normalize(currency)
	if !amount.IsPositive() {
		return nil, &core.InvalidAmountError{Field: "withdrawal amount", Value: amount}
	}

	var wallet *core.Wallet
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		var err error
		wallet, err = tx.Wallets().GetForUpdate(userID, currency)
		if err != nil {
			return err
		}

		if wallet.Available().LessThan(amount) {
			return &core.InsufficientBalanceError{
				Required:  amount,
				Available: wallet.Available(),
				Currency:  currency,
			}
		}

		wallet.Balance = wallet.Balance.Sub(amount)
		wallet.UpdatedAt = s.clock.Now()
		return tx.Wallets().Save(wallet)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]any{
		"user":     userID,
		"currency": currency,
		"amount":   amount.String(),
	}).Info("withdrawal")
	return wallet, nil
}

// GetWallet fetches a wallet, failing with core.WalletNotFoundError if absent
func (s *Service) GetWallet(ctx context.Context, userID, currency string) (*core.Wallet, error) {
	currency = normalize(currency)

	var wallet *core.Wallet
	err := s.storage.Transaction(ctx, func(tx core.Tx) error {
		var err error
		wallet, err = tx.Wallets().Get(userID, currency)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// GetOrCreate fetches the user's wallet for a currency, creating a zeroed one
// if absent.
func (s *Service) GetOrCreate(tx core.Tx, userID, currency string) (*core.Wallet, error) {
	currency = normalize(currency)

	wallet, err := tx.Wallets().Get(userID, currency)
	if err == nil {
		return wallet, nil
	}

	var notFound *core.WalletNotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	now := s.clock.Now()
	wallet = &core.Wallet{
		UserID:    userID,
		Currency:  currency,
		Balance:   decimal.Zero,
		Locked:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Wallets().Create(wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// Lock reserves amount of the user's available balance for an open order
func (s *Service) Lock(tx core.Tx, userID, currency string, amount decimal.Decimal) (*core.Wallet, error) {
	currency = normalize(currency)
	if !amount.IsPositive() {
		return nil, &core.InvalidAmountError{Field: "lock amount", Value: amount}
	}

	wallet, err := tx.Wallets().GetForUpdate(userID, currency)
	if err != nil {
		return nil, err
	}

	if wallet.Available().LessThan(amount) {
		return nil, &core.InsufficientBalanceError{
			Required:  amount,
			Available: wallet.Available(),
			Currency:  currency,
		}
	}

	wallet.Locked = wallet.Locked.Add(amount)
	wallet.UpdatedAt = s.clock.Now()
	if err := tx.Wallets().Save(wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// Unlock releases a previously locked amount back to available balance
func (s *Service) Unlock(tx core.Tx, userID, currency string, amount decimal.Decimal) (*core.Wallet, error) {
	currency = normalize(currency)
	if !amount.IsPositive() {
		return nil, &core.InvalidAmountError{Field: "unlock amount", Value: amount}
	}

	wallet, err := tx.Wallets().GetForUpdate(userID, currency)
	if err != nil {
		return nil, err
	}

	if wallet.Locked.LessThan(amount) {
		return nil, &core.InvalidAmountError{Field: "unlock amount", Value: amount}
	}

	wallet.Locked = wallet.Locked.Sub(amount)
	wallet.UpdatedAt = s.clock.Now()
	if err := tx.Wallets().Save(wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// TransferLocked is the settlement primitive: it moves amount from the
// sender's locked balance into the receiver's available balance. The two
// wallet rows are locked in ascending (user, currency) order.
func (s *Service) TransferLocked(tx core.Tx, fromUser, toUser, currency string, amount decimal.Decimal) (*core.Wallet, *core.Wallet, error) {
	currency = normalize(currency)
	if !amount.IsPositive() {
		return nil, nil, &core.InvalidAmountError{Field: "transfer amount", Value: amount}
	}

	// Degenerate self-transfer: the net effect is an unlock.
	if fromUser == toUser {
		wallet, err := s.Unlock(tx, fromUser, currency, amount)
		if err != nil {
			return nil, nil, err
		}
		return wallet, wallet, nil
	}

	// The receiving wallet may not exist yet; create it before taking row
	// locks so both sides can be acquired in canonical order.
	if _, err := s.GetOrCreate(tx, toUser, currency); err != nil {
		return nil, nil, err
	}

	var from, to *core.Wallet
	var err error
	if fromUser <= toUser {
		if from, err = tx.Wallets().GetForUpdate(fromUser, currency); err != nil {
			return nil, nil, err
		}
		if to, err = tx.Wallets().GetForUpdate(toUser, currency); err != nil {
			return nil, nil, err
		}
	} else {
		if to, err = tx.Wallets().GetForUpdate(toUser, currency); err != nil {
			return nil, nil, err
		}
		if from, err = tx.Wallets().GetForUpdate(fromUser, currency); err != nil {
			return nil, nil, err
		}
	}

	if from.Locked.LessThan(amount) {
		return nil, nil, &core.InsufficientBalanceError{
			Required:  amount,
			Available: from.Locked,
			Currency:  currency,
		}
	}

	now := s.clock.Now()
	from.Locked = from.Locked.Sub(amount)
	from.Balance = from.Balance.Sub(amount)
	from.UpdatedAt = now
	to.Balance = to.Balance.Add(amount)
	to.UpdatedAt = now

	if err := tx.Wallets().Save(from); err != nil {
		return nil, nil, err
	}
	if err := tx.Wallets().Save(to); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func normalize(currency string) string {
	return strings.ToUpper(currency)
}
