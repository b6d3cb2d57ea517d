package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gatherly/rewards/internal/ledger"
	"github.com/gatherly/rewards/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const txColumns = `account_id, seq, type, amount, description, source,
	ref_type, ref_id, balance_after, created_at`

// LedgerRepository persists point accounts and their append-only transaction
// logs. Accounts are created lazily on first use. Every write locks the
// account row FOR UPDATE so the balance check and the append are atomic.
type LedgerRepository struct {
	db *pgxpool.Pool
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Credit appends a positive transaction of the given type to the user's
// account and returns the updated account and the written transaction.
func (r *LedgerRepository) Credit(ctx context.Context, userID, typ string, amount int, description, source, refType, refID string) (*model.Account, *model.Transaction, error) {
	return r.write(ctx, userID, func(acc *model.Account, now time.Time) (*model.Transaction, error) {
		return ledger.Credit(acc, typ, amount, description, source, refType, refID, now)
	})
}

// Debit appends a negative transaction of the given type, failing with
// ledger.ErrInsufficientBalance when the balance does not cover it.
func (r *LedgerRepository) Debit(ctx context.Context, userID, typ string, amount int, description, source, refType, refID string) (*model.Account, *model.Transaction, error) {
	return r.write(ctx, userID, func(acc *model.Account, now time.Time) (*model.Transaction, error) {
		return ledger.Debit(acc, typ, amount, description, source, refType, refID, now)
	})
}

func (r *LedgerRepository) write(ctx context.Context, userID string, apply func(*model.Account, time.Time) (*model.Transaction, error)) (*model.Account, *model.Transaction, error) {
	var (
		account *model.Account
		txn     *model.Transaction
	)
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		acc, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		t, err := apply(acc, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := persistWrite(ctx, tx, acc, t); err != nil {
			return err
		}
		account, txn = acc, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return account, txn, nil
}

// Transfer moves points between two users as a debit/credit pair in one
// transaction. Both account rows are locked in user-id order so two opposing
// transfers cannot deadlock.
func (r *LedgerRepository) Transfer(ctx context.Context, fromUserID, toUserID string, amount int, description string) (*model.Account, error) {
	if fromUserID == toUserID {
		return nil, fmt.Errorf("cannot transfer to the same account")
	}
	var from *model.Account
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		first, second := fromUserID, toUserID
		if second < first {
			first, second = second, first
		}
		accounts := make(map[string]*model.Account, 2)
		for _, id := range []string{first, second} {
			acc, err := lockAccount(ctx, tx, id)
			if err != nil {
				return err
			}
			accounts[id] = acc
		}

		now := time.Now().UTC()
		debit, err := ledger.Debit(accounts[fromUserID], model.TxTransfer, amount,
			description, "transfer", "user", toUserID, now)
		if err != nil {
			return err
		}
		credit, err := ledger.Credit(accounts[toUserID], model.TxTransfer, amount,
			description, "transfer", "user", fromUserID, now)
		if err != nil {
			return err
		}
		if err := persistWrite(ctx, tx, accounts[fromUserID], debit); err != nil {
			return err
		}
		if err := persistWrite(ctx, tx, accounts[toUserID], credit); err != nil {
			return err
		}
		from = accounts[fromUserID]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return from, nil
}

// GetAccount returns the user's account, creating an empty one on first use.
func (r *LedgerRepository) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var account *model.Account
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		acc, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		account = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// History returns the account's transaction log filtered and paginated,
// newest first. Reads use the persisted balance_after snapshots; the log is
// never replayed.
func (r *LedgerRepository) History(ctx context.Context, userID string, f model.HistoryFilter) ([]model.Transaction, error) {
	where := []string{"account_id = $1"}
	args := []any{userID}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, "type = $"+strconv.Itoa(len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		where = append(where, "source = $"+strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, "created_at <= $"+strconv.Itoa(len(args)))
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)

	query := `SELECT ` + txColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") +
		` ORDER BY seq DESC LIMIT $` + strconv.Itoa(len(args)-1) +
		` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var refType, refID *string
		if err := rows.Scan(&t.AccountID, &t.Seq, &t.Type, &t.Amount, &t.Description,
			&t.Source, &refType, &refID, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if refType != nil {
			t.RefType = *refType
		}
		if refID != nil {
			t.RefID = *refID
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// MonthlyTotals returns the account's per-month aggregates, newest first.
func (r *LedgerRepository) MonthlyTotals(ctx context.Context, userID string) ([]model.MonthlyTotal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT account_id, month, earned, spent, tx_count
		 FROM monthly_totals
		 WHERE account_id = $1
		 ORDER BY month DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list monthly totals: %w", err)
	}
	defer rows.Close()

	var totals []model.MonthlyTotal
	for rows.Next() {
		var m model.MonthlyTotal
		if err := rows.Scan(&m.AccountID, &m.Month, &m.Earned, &m.Spent, &m.TxCount); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		totals = append(totals, m)
	}
	return totals, rows.Err()
}

// lockAccount acquires the per-account lock, creating the account on first
// use. The insert and the locking select run in the caller's transaction.
func lockAccount(ctx context.Context, tx pgx.Tx, userID string) (*model.Account, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (user_id, balance, total_earned, total_spent, tx_count)
		 VALUES ($1, 0, 0, 0, 0)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	var acc model.Account
	err := tx.QueryRow(ctx,
		`SELECT user_id, balance, total_earned, total_spent, tx_count
		 FROM accounts
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).Scan(&acc.UserID, &acc.Balance, &acc.TotalEarned, &acc.TotalSpent, &acc.TxCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock account row: %w", err)
	}
	return &acc, nil
}

// persistWrite lands one applied ledger mutation: the transaction row, the
// updated account counters, and the single monthly bucket the transaction
// belongs to.
func persistWrite(ctx context.Context, tx pgx.Tx, acc *model.Account, t *model.Transaction) error {
	var refType, refID *string
	if t.RefType != "" {
		refType = &t.RefType
	}
	if t.RefID != "" {
		refID = &t.RefID
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (account_id, seq, type, amount, description,
		   source, ref_type, ref_id, balance_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.AccountID, t.Seq, t.Type, t.Amount, t.Description,
		t.Source, refType, refID, t.BalanceAfter, t.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts
		 SET balance = $1, total_earned = $2, total_spent = $3, tx_count = $4
		 WHERE user_id = $5`,
		acc.Balance, acc.TotalEarned, acc.TotalSpent, acc.TxCount, acc.UserID,
	); err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	d := ledger.BucketDelta(t)
	if _, err := tx.Exec(ctx,
		`INSERT INTO monthly_totals (account_id, month, earned, spent, tx_count)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (account_id, month) DO UPDATE
		 SET earned = monthly_totals.earned + EXCLUDED.earned,
		     spent = monthly_totals.spent + EXCLUDED.spent,
		     tx_count = monthly_totals.tx_count + 1`,
		d.AccountID, d.Month, d.Earned, d.Spent,
	); err != nil {
		return fmt.Errorf("update monthly total: %w", err)
	}
	return nil
}
