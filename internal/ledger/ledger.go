// Package ledger implements the per-account point ledger: an append-only
// transaction log with a derived running balance that must never go
// negative.
//
// Functions here mutate a loaded Account in memory and hand back the
// transaction to append; the repository layer loads the account under a
// per-account lock and persists both atomically, so the balance check and
// the decrement are a single unit.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/gatherly/rewards/internal/model"
)

// ErrInsufficientBalance is returned when a debit exceeds the balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrInvalidAmount is returned when an operation amount is not positive.
var ErrInvalidAmount = errors.New("amount must be positive")

// creditTypes and debitTypes partition the transaction type tags. Transfer
// appears in both: its direction is chosen by the caller.
var (
	creditTypes = map[string]bool{
		model.TxEarned:   true,
		model.TxBonus:    true,
		model.TxRefund:   true,
		model.TxTransfer: true,
	}
	debitTypes = map[string]bool{
		model.TxSpent:    true,
		model.TxPenalty:  true,
		model.TxTransfer: true,
	}
)

// Credit appends a positive-amount transaction of the given type, bumping
// balance and totalEarned. Credits are never rejected on balance grounds.
func Credit(acc *model.Account, typ string, amount int, description, source, refType, refID string, now time.Time) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !creditTypes[typ] {
		return nil, fmt.Errorf("%q is not a credit transaction type", typ)
	}

	acc.Balance += amount
	acc.TotalEarned += amount
	acc.TxCount++
	return newTransaction(acc, typ, amount, description, source, refType, refID, now), nil
}

// Debit appends a negative-amount transaction of the given type. The balance
// check and the decrement happen against the same loaded account state, so
// under the repository's per-account lock no interleaving write can observe
// a stale balance.
func Debit(acc *model.Account, typ string, amount int, description, source, refType, refID string, now time.Time) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !debitTypes[typ] {
		return nil, fmt.Errorf("%q is not a debit transaction type", typ)
	}
	if acc.Balance < amount {
		return nil, ErrInsufficientBalance
	}

	acc.Balance -= amount
	acc.TotalSpent += amount
	acc.TxCount++
	return newTransaction(acc, typ, -amount, description, source, refType, refID, now), nil
}

// newTransaction builds the immutable log entry for an already-applied
// mutation. Seq continues the account's log and BalanceAfter snapshots the
// post-write balance for O(page) history reads.
func newTransaction(acc *model.Account, typ string, signedAmount int, description, source, refType, refID string, now time.Time) *model.Transaction {
	return &model.Transaction{
		AccountID:    acc.UserID,
		Seq:          acc.TxCount,
		Type:         typ,
		Amount:       signedAmount,
		Description:  description,
		Source:       source,
		RefType:      refType,
		RefID:        refID,
		BalanceAfter: acc.Balance,
		CreatedAt:    now,
	}
}

// BucketDelta returns the monthly aggregate update implied by one
// transaction: exactly one bucket, keyed on the transaction's own timestamp.
func BucketDelta(tx *model.Transaction) model.MonthlyTotal {
	d := model.MonthlyTotal{
		AccountID: tx.AccountID,
		Month:     model.MonthKey(tx.CreatedAt),
		TxCount:   1,
	}
	if tx.Amount >= 0 {
		d.Earned = tx.Amount
	} else {
		d.Spent = -tx.Amount
	}
	return d
}
