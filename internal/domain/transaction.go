package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer"
	TypePayment    TransactionType = "payment"
	TypeInterest   TransactionType = "interest"
	TypeFee        TransactionType = "fee"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypePayment, TypeInterest, TypeFee:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
)

// Terminal reports whether no further transition may leave the status.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition encodes the ledger state machine:
//
//	pending → processing | failed | cancelled
//	processing → completed | failed
//
// failed is reachable straight from pending so that under-lock verification
// failures (insufficient funds, inactive source, limit) leave an auditable
// failed entry; cancelled is reserved for requests abandoned before
// processing begins. Terminal states admit nothing.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Transaction is one ledger entry: a money-movement attempt and its outcome.
// FromAccount is empty for pure deposits, ToAccount for pure withdrawals.
// Once the status is terminal the entry is immutable; corrections are new
// compensating entries.
type Transaction struct {
	ID          uuid.UUID
	Reference   string
	FromAccount string
	ToAccount   string
	Type        TransactionType
	Amount      decimal.Decimal
	Status      TransactionStatus
	Description string
	// FailureReason is recorded on every terminal failure for audit.
	FailureReason string
	// RequestHash is the canonical hash of the originating request, used to
	// reject reference reuse with a different payload.
	RequestHash string
	CreatedAt   time.Time
	CompletedAt *time.Time
}
