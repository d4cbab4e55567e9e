// Package store defines the persistence contracts for the money-movement
// core: account balances, the transaction ledger and QR payment requests.
// Implementations perform no locking of their own; callers hold the
// per-account coordination locks (or the backing database serializes rows)
// so the critical sections stay minimal and composable.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"

	"bank-core/internal/domain"
)

// AccountStore owns account records. Debit and Credit are the only paths
// that mutate a balance.
type AccountStore interface {
	GetAccount(ctx context.Context, number string) (domain.Account, error)
	CreateAccount(ctx context.Context, acc domain.Account) error

	// Debit decrements the balance. Fails with domain.ErrAccountNotActive
	// when the account is not active and domain.ErrInsufficientFunds when
	// balance - amount would drop below the minimum balance.
	Debit(ctx context.Context, number string, amount decimal.Decimal) (decimal.Decimal, error)

	// Credit increments the balance. Fails with domain.ErrAccountNotActive
	// only when the account is closed.
	Credit(ctx context.Context, number string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Ledger owns transaction entries. Entries are append-mostly: the status
// transition is the only post-creation mutation, and terminal entries are
// immutable.
type Ledger interface {
	CreateTransaction(ctx context.Context, tx domain.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (domain.Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (domain.Transaction, error)

	// TransitionTransaction moves an entry along the state machine,
	// enforcing domain.TransactionStatus.CanTransition. reason is recorded
	// on failures; completed entries get their completion timestamp set.
	TransitionTransaction(ctx context.Context, id uuid.UUID, to domain.TransactionStatus, reason string) (domain.Transaction, error)
}

// QRStore owns QR payment request state.
type QRStore interface {
	CreateQR(ctx context.Context, qr domain.QRPaymentRequest) error
	GetQR(ctx context.Context, id uuid.UUID) (domain.QRPaymentRequest, error)
	DeactivateQR(ctx context.Context, id uuid.UUID) error
	IncrementQRUsage(ctx context.Context, id uuid.UUID) error

	// NextQRSequence returns the next value of the request's monotonic
	// redemption counter. Sequences are never reused.
	NextQRSequence(ctx context.Context, id uuid.UUID) (int64, error)
}

// Store is the full persistence surface. Atomic applies every mutation made
// through the callback as a single all-or-nothing unit: a database
// transaction in the postgres implementation, snapshot-and-swap in memory.
// A failure inside the callback leaves balances exactly as they were.
type Store interface {
	AccountStore
	Ledger
	QRStore

	Atomic(ctx context.Context, fn func(Store) error) error
}

// transferShape is the canonical, deterministic request shape hashed for
// idempotency. No floats, no maps; amounts as fixed-point strings.
type transferShape struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Reference   string `json:"reference"`
}

// RequestHash returns the SHA-256 of the RFC 8785 canonical JSON of the
// transfer request. Two calls with the same reference but different hashes
// are a conflicting reuse, not a retry.
func RequestHash(from, to string, amount decimal.Decimal, txType domain.TransactionType, reference string) (string, error) {
	raw, err := json.Marshal(transferShape{
		FromAccount: from,
		ToAccount:   to,
		Amount:      amount.StringFixed(2),
		Type:        string(txType),
		Reference:   reference,
	})
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(canon)
	return hex.EncodeToString(h[:]), nil
}
