// Package events delivers terminal-transition notifications to audit-log and
// notification collaborators. Delivery is fire-and-forget: the money path
// never waits on or fails because of an emitter.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bank-core/internal/domain"
)

const (
	TransactionCompleted = "transaction.completed"
	TransactionFailed    = "transaction.failed"
	TransactionCancelled = "transaction.cancelled"

	// TransactionStream is the stream/channel external subscribers read.
	TransactionStream = "transaction.events"
)

type Event struct {
	Type          string                   `json:"type"`
	TransactionID uuid.UUID                `json:"transaction_id"`
	Status        domain.TransactionStatus `json:"status"`
	FromAccount   string                   `json:"from_account,omitempty"`
	ToAccount     string                   `json:"to_account,omitempty"`
	Amount        decimal.Decimal          `json:"amount"`
	Timestamp     time.Time                `json:"timestamp"`
}

// FromTransaction builds the event for a transaction that just reached a
// terminal state.
func FromTransaction(tx domain.Transaction) Event {
	typ := TransactionFailed
	switch tx.Status {
	case domain.StatusCompleted:
		typ = TransactionCompleted
	case domain.StatusCancelled:
		typ = TransactionCancelled
	}
	return Event{
		Type:          typ,
		TransactionID: tx.ID,
		Status:        tx.Status,
		FromAccount:   tx.FromAccount,
		ToAccount:     tx.ToAccount,
		Amount:        tx.Amount,
		Timestamp:     time.Now().UTC(),
	}
}

type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Log emits events to the structured log only. Always configured, so every
// terminal transition is observable even with no external collaborators.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log { return &Log{logger: logger} }

func (l *Log) Emit(ctx context.Context, ev Event) error {
	l.logger.Info("transaction event",
		zap.String("type", ev.Type),
		zap.String("transaction_id", ev.TransactionID.String()),
		zap.String("status", string(ev.Status)),
		zap.String("from_account", ev.FromAccount),
		zap.String("to_account", ev.ToAccount),
		zap.String("amount", ev.Amount.StringFixed(2)),
	)
	return nil
}

// Multi fans an event out to several emitters. Individual failures are
// logged and swallowed.
type Multi struct {
	emitters []Emitter
	logger   *zap.Logger
}

func NewMulti(logger *zap.Logger, emitters ...Emitter) *Multi {
	return &Multi{emitters: emitters, logger: logger}
}

func (m *Multi) Emit(ctx context.Context, ev Event) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, ev); err != nil {
			m.logger.Warn("event emit failed",
				zap.String("type", ev.Type),
				zap.String("transaction_id", ev.TransactionID.String()),
				zap.Error(err))
		}
	}
	return nil
}
