// Package postgres is the pgx-backed Store. Balance mutations use atomic
// conditional updates, so the database enforces the minimum-balance
// invariant even if a caller misses the coordination lock; Atomic maps to a
// real database transaction. Terminal status transitions append to an event
// log with RFC 8785 canonical payloads.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bank-core/internal/domain"
	"bank-core/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every method
// works inside and outside Atomic.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	db   querier
	// inTx marks stores handed to Atomic callbacks; their Atomic applies
	// directly instead of opening a nested transaction.
	inTx bool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

var _ store.Store = (*Store)(nil)

func (s *Store) GetAccount(ctx context.Context, number string) (domain.Account, error) {
	var (
		acc                   domain.Account
		balance, minimum, lim string
		status                string
	)
	err := s.db.QueryRow(ctx,
		`SELECT account_number, balance::text, minimum_balance::text, daily_limit::text, status, created_at
		   FROM accounts WHERE account_number=$1`,
		number,
	).Scan(&acc.Number, &balance, &minimum, &lim, &status, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("%w: account %s", domain.ErrNotFound, number)
		}
		return domain.Account{}, err
	}
	acc.Status = domain.AccountStatus(status)
	if acc.Balance, err = decimal.NewFromString(balance); err != nil {
		return domain.Account{}, err
	}
	if acc.MinimumBalance, err = decimal.NewFromString(minimum); err != nil {
		return domain.Account{}, err
	}
	if acc.DailyLimit, err = decimal.NewFromString(lim); err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

func (s *Store) CreateAccount(ctx context.Context, acc domain.Account) error {
	if acc.Number == "" {
		return fmt.Errorf("%w: empty account number", domain.ErrValidation)
	}
	if acc.Status == "" {
		acc.Status = domain.AccountActive
	}
	if acc.DailyLimit.IsZero() {
		acc.DailyLimit = domain.DefaultDailyLimit
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO accounts(account_number, balance, minimum_balance, daily_limit, status)
		 VALUES($1,$2,$3,$4,$5)
		 ON CONFLICT (account_number) DO NOTHING`,
		acc.Number, acc.Balance.StringFixed(2), acc.MinimumBalance.StringFixed(2),
		acc.DailyLimit.StringFixed(2), string(acc.Status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s already exists", domain.ErrValidation, acc.Number)
	}
	return nil
}

// Debit is an atomic conditional update: the status and minimum-balance
// checks and the decrement are one statement.
func (s *Store) Debit(ctx context.Context, number string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := s.db.QueryRow(ctx,
		`UPDATE accounts
		    SET balance = balance - $2
		  WHERE account_number=$1
		    AND status='active'
		    AND balance - $2 >= minimum_balance
		 RETURNING balance::text`,
		number, amount.StringFixed(2),
	).Scan(&balance)
	if err == nil {
		return decimal.NewFromString(balance)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, err
	}

	// The update matched nothing; read the row to say why.
	acc, gerr := s.GetAccount(ctx, number)
	if gerr != nil {
		return decimal.Zero, gerr
	}
	if !acc.CanSend() {
		return decimal.Zero, fmt.Errorf("%w: account %s is %s", domain.ErrAccountNotActive, number, acc.Status)
	}
	return decimal.Zero, fmt.Errorf("%w: balance %s, minimum %s, requested %s",
		domain.ErrInsufficientFunds, acc.Balance.StringFixed(2),
		acc.MinimumBalance.StringFixed(2), amount.StringFixed(2))
}

func (s *Store) Credit(ctx context.Context, number string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := s.db.QueryRow(ctx,
		`UPDATE accounts
		    SET balance = balance + $2
		  WHERE account_number=$1 AND status <> 'closed'
		 RETURNING balance::text`,
		number, amount.StringFixed(2),
	).Scan(&balance)
	if err == nil {
		return decimal.NewFromString(balance)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, err
	}
	if _, gerr := s.GetAccount(ctx, number); gerr != nil {
		return decimal.Zero, gerr
	}
	return decimal.Zero, fmt.Errorf("%w: account %s is closed", domain.ErrAccountNotActive, number)
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.ID == uuid.Nil || tx.Reference == "" {
		return fmt.Errorf("%w: transaction needs id and reference", domain.ErrValidation)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO transactions(
			transaction_id, reference, from_account, to_account, tx_type,
			amount, status, description, failure_reason, request_hash, created_at
		 ) VALUES($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (reference) DO NOTHING`,
		tx.ID, tx.Reference, tx.FromAccount, tx.ToAccount, string(tx.Type),
		tx.Amount.StringFixed(2), string(tx.Status), tx.Description,
		tx.FailureReason, tx.RequestHash, tx.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateReference, tx.Reference)
	}
	return nil
}

const transactionColumns = `transaction_id, reference, COALESCE(from_account,''), COALESCE(to_account,''),
	tx_type, amount::text, status, description, failure_reason, request_hash, created_at, completed_at`

func (s *Store) scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		tx             domain.Transaction
		txType, status string
		amount         string
	)
	err := row.Scan(&tx.ID, &tx.Reference, &tx.FromAccount, &tx.ToAccount,
		&txType, &amount, &status, &tx.Description, &tx.FailureReason,
		&tx.RequestHash, &tx.CreatedAt, &tx.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, fmt.Errorf("%w: transaction", domain.ErrNotFound)
		}
		return domain.Transaction{}, err
	}
	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	return s.scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id=$1`, id))
}

func (s *Store) GetTransactionByReference(ctx context.Context, reference string) (domain.Transaction, error) {
	return s.scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference=$1`, reference))
}

func (s *Store) TransitionTransaction(ctx context.Context, id uuid.UUID, to domain.TransactionStatus, reason string) (domain.Transaction, error) {
	run := func(st *Store) (domain.Transaction, error) {
		var current string
		err := st.db.QueryRow(ctx,
			`SELECT status FROM transactions WHERE transaction_id=$1 FOR UPDATE`, id,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.Transaction{}, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
			}
			return domain.Transaction{}, err
		}
		if !domain.TransactionStatus(current).CanTransition(to) {
			return domain.Transaction{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, to)
		}

		row := st.db.QueryRow(ctx,
			`UPDATE transactions
			    SET status=$2,
			        failure_reason=CASE WHEN $2 IN ('failed','cancelled') THEN $3 ELSE failure_reason END,
			        completed_at=CASE WHEN $2='completed' THEN now() ELSE completed_at END
			  WHERE transaction_id=$1
			 RETURNING `+transactionColumns,
			id, string(to), reason,
		)
		tx, err := st.scanTransaction(row)
		if err != nil {
			return domain.Transaction{}, err
		}
		if to.Terminal() {
			if err := st.appendEvent(ctx, tx); err != nil {
				return domain.Transaction{}, err
			}
		}
		return tx, nil
	}

	if s.inTx {
		return run(s)
	}
	// The status read and conditional update must not interleave with a
	// concurrent transition.
	var out domain.Transaction
	err := s.Atomic(ctx, func(st store.Store) error {
		var rerr error
		out, rerr = run(st.(*Store))
		return rerr
	})
	return out, err
}

// terminalEventPayload is the audit payload appended on every terminal
// transition, stored both as jsonb and as its canonical JCS form.
type terminalEventPayload struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
}

func (s *Store) appendEvent(ctx context.Context, tx domain.Transaction) error {
	raw, err := json.Marshal(terminalEventPayload{
		TransactionID: tx.ID.String(),
		Reference:     tx.Reference,
		From:          tx.FromAccount,
		To:            tx.ToAccount,
		Amount:        tx.Amount.StringFixed(2),
		Status:        string(tx.Status),
	})
	if err != nil {
		return err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO event_log(event_id, event_type, aggregate_id, payload_json, payload_canonical)
		 VALUES($1,$2,$3,$4::jsonb,$5)`,
		uuid.New(), "transaction."+string(tx.Status), tx.ID.String(), raw, string(canon),
	)
	return err
}

func (s *Store) CreateQR(ctx context.Context, qr domain.QRPaymentRequest) error {
	if qr.ID == uuid.Nil || qr.Account == "" {
		return fmt.Errorf("%w: qr request needs id and account", domain.ErrValidation)
	}
	var amount *string
	if qr.Amount != nil {
		a := qr.Amount.StringFixed(2)
		amount = &a
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO qr_payments(qr_id, account_number, amount, purpose, active, expires_at, used_count)
		 VALUES($1,$2,$3,$4,$5,$6,0)`,
		qr.ID, qr.Account, amount, qr.Purpose, qr.Active, qr.ExpiresAt,
	)
	return err
}

func (s *Store) GetQR(ctx context.Context, id uuid.UUID) (domain.QRPaymentRequest, error) {
	var (
		qr     domain.QRPaymentRequest
		amount *string
	)
	err := s.db.QueryRow(ctx,
		`SELECT qr_id, account_number, amount::text, purpose, active, expires_at, used_count, created_at
		   FROM qr_payments WHERE qr_id=$1`,
		id,
	).Scan(&qr.ID, &qr.Account, &amount, &qr.Purpose, &qr.Active, &qr.ExpiresAt, &qr.UsedCount, &qr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.QRPaymentRequest{}, fmt.Errorf("%w: %s", domain.ErrQRNotFound, id)
		}
		return domain.QRPaymentRequest{}, err
	}
	if amount != nil {
		d, derr := decimal.NewFromString(*amount)
		if derr != nil {
			return domain.QRPaymentRequest{}, derr
		}
		qr.Amount = &d
	}
	return qr, nil
}

func (s *Store) DeactivateQR(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE qr_payments SET active=false WHERE qr_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQRNotFound, id)
	}
	return nil
}

func (s *Store) IncrementQRUsage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE qr_payments SET used_count = used_count + 1 WHERE qr_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQRNotFound, id)
	}
	return nil
}

func (s *Store) NextQRSequence(ctx context.Context, id uuid.UUID) (int64, error) {
	var seq int64
	err := s.db.QueryRow(ctx,
		`UPDATE qr_payments SET next_seq = next_seq + 1 WHERE qr_id=$1 RETURNING next_seq`, id,
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", domain.ErrQRNotFound, id)
		}
		return 0, err
	}
	return seq, nil
}

// Atomic runs fn inside one database transaction. The callback store shares
// the transaction; nested Atomic calls apply directly.
func (s *Store) Atomic(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
