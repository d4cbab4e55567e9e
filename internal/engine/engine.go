// Package engine orchestrates single money movements: validation, ordered
// lock acquisition, balance verification, the atomic debit+credit pair and
// the ledger write. It is the only component that creates or transitions
// Transactions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bank-core/internal/domain"
	"bank-core/internal/events"
	"bank-core/internal/limits"
	"bank-core/internal/locker"
	"bank-core/internal/store"
)

type Engine struct {
	store   store.Store
	locks   *locker.Locker
	limits  limits.Tracker
	emitter events.Emitter
	logger  *zap.Logger
}

func New(st store.Store, locks *locker.Locker, tracker limits.Tracker, emitter events.Emitter, logger *zap.Logger) *Engine {
	return &Engine{
		store:   st,
		locks:   locks,
		limits:  tracker,
		emitter: emitter,
		logger:  logger,
	}
}

// TransferRequest describes one movement. FromAccount is empty for pure
// deposits and interest credits; ToAccount is empty for pure withdrawals and
// fees. An empty Reference gets a system-generated one.
type TransferRequest struct {
	FromAccount string
	ToAccount   string
	Amount      decimal.Decimal
	Type        domain.TransactionType
	Reference   string
	Description string

	// Apply, when set, runs inside the same atomic unit as the debit and
	// credit, after both succeed. Collaborators use it for bookkeeping that
	// must not drift from the movement: it never runs on a replayed retry,
	// and a failure rolls the whole movement back. It does not participate
	// in the idempotency hash.
	Apply func(store.Store) error
}

func (r TransferRequest) outgoing() bool { return r.FromAccount != "" }
func (r TransferRequest) incoming() bool { return r.ToAccount != "" }

func (r *TransferRequest) normalize() error {
	if r.Type == "" {
		r.Type = domain.TypeTransfer
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, r.Type)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", domain.ErrInvalidAmount, r.Amount)
	}
	if !r.Amount.Equal(r.Amount.Round(2)) {
		return fmt.Errorf("%w: amount %s has more than two decimal places", domain.ErrInvalidAmount, r.Amount)
	}
	if !r.outgoing() && !r.incoming() {
		return fmt.Errorf("%w: movement needs at least one account", domain.ErrValidation)
	}
	if r.outgoing() && r.incoming() && r.FromAccount == r.ToAccount {
		return fmt.Errorf("%w: source and destination are the same account", domain.ErrValidation)
	}
	if r.Reference == "" {
		r.Reference = "TXN-" + uuid.NewString()
	}
	return nil
}

// Deposit credits an account with no source (cash-in, interest).
func (e *Engine) Deposit(ctx context.Context, account string, amount decimal.Decimal, reference, description string) (domain.Transaction, error) {
	return e.ExecuteTransfer(ctx, TransferRequest{
		ToAccount:   account,
		Amount:      amount,
		Type:        domain.TypeDeposit,
		Reference:   reference,
		Description: description,
	})
}

// Withdraw debits an account with no destination (cash-out).
func (e *Engine) Withdraw(ctx context.Context, account string, amount decimal.Decimal, reference, description string) (domain.Transaction, error) {
	return e.ExecuteTransfer(ctx, TransferRequest{
		FromAccount: account,
		Amount:      amount,
		Type:        domain.TypeWithdrawal,
		Reference:   reference,
		Description: description,
	})
}

// ExecuteTransfer runs one movement end to end. Retries carrying the same
// reference replay the already-committed Transaction; both balances change
// together or not at all.
func (e *Engine) ExecuteTransfer(ctx context.Context, req TransferRequest) (domain.Transaction, error) {
	if err := req.normalize(); err != nil {
		return domain.Transaction{}, err
	}

	requestHash, err := store.RequestHash(req.FromAccount, req.ToAccount, req.Amount, req.Type, req.Reference)
	if err != nil {
		return domain.Transaction{}, err
	}

	// Idempotent retry: an existing reference returns the committed entry
	// unchanged. A different payload under the same reference is a caller
	// bug, not a retry.
	if existing, err := e.store.GetTransactionByReference(ctx, req.Reference); err == nil {
		return e.replay(existing, requestHash)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Transaction{}, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	// Resolve both accounts before taking any lock; pure validation
	// failures leave no record.
	if req.incoming() {
		if _, err := e.store.GetAccount(ctx, req.ToAccount); err != nil {
			return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrDestinationNotFound, req.ToAccount)
		}
	}
	if req.outgoing() {
		if _, err := e.store.GetAccount(ctx, req.FromAccount); err != nil {
			return domain.Transaction{}, fmt.Errorf("%w: source account %s", domain.ErrNotFound, req.FromAccount)
		}
	}

	unlock := e.locks.LockPair(req.FromAccount, req.ToAccount)
	tx, fresh, err := e.executeLocked(ctx, req, requestHash)
	unlock()

	if fresh && tx.Status.Terminal() {
		// Locks are released; emitters bound their own latency and never
		// fail the money path. Replayed retries emit nothing.
		_ = e.emitter.Emit(ctx, events.FromTransaction(tx))
	}
	return tx, err
}

// executeLocked is the critical section: both account locks are held. fresh
// is false when the result is a replayed, previously committed entry.
func (e *Engine) executeLocked(ctx context.Context, req TransferRequest, requestHash string) (tx domain.Transaction, fresh bool, err error) {
	tx = domain.Transaction{
		ID:          uuid.New(),
		Reference:   req.Reference,
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Type:        req.Type,
		Amount:      req.Amount,
		Status:      domain.StatusPending,
		Description: req.Description,
		RequestHash: requestHash,
		CreatedAt:   time.Now().UTC(),
	}
	if cerr := e.store.CreateTransaction(ctx, tx); cerr != nil {
		if errors.Is(cerr, domain.ErrDuplicateReference) {
			// Lost the race against a concurrent retry of the same request.
			if existing, gerr := e.store.GetTransactionByReference(ctx, req.Reference); gerr == nil {
				tx, err = e.replay(existing, requestHash)
				return tx, false, err
			}
		}
		return domain.Transaction{}, false, fmt.Errorf("%w: %v", domain.ErrStorageFailure, cerr)
	}

	// Abandoned callers are honored up to here; once processing starts the
	// movement runs to completion or failure.
	if ctx.Err() != nil {
		return e.terminate(tx, domain.StatusCancelled, ctx.Err().Error()), true, ctx.Err()
	}

	// Re-read both sides under lock; pre-lock reads may be stale.
	var source domain.Account
	if req.outgoing() {
		var gerr error
		source, gerr = e.store.GetAccount(ctx, req.FromAccount)
		if gerr != nil {
			return e.terminate(tx, domain.StatusFailed, gerr.Error()), true, fmt.Errorf("%w: %v", domain.ErrStorageFailure, gerr)
		}
		if verr := e.verifySource(ctx, source, req.Amount, tx.CreatedAt); verr != nil {
			return e.terminate(tx, domain.StatusFailed, verr.Error()), true, verr
		}
	}
	if req.incoming() {
		dest, gerr := e.store.GetAccount(ctx, req.ToAccount)
		if gerr != nil {
			return e.terminate(tx, domain.StatusFailed, gerr.Error()), true, fmt.Errorf("%w: %v", domain.ErrStorageFailure, gerr)
		}
		if !dest.CanReceive() {
			verr := fmt.Errorf("%w: destination %s is closed", domain.ErrAccountNotActive, dest.Number)
			return e.terminate(tx, domain.StatusFailed, verr.Error()), true, verr
		}
	}

	if _, terr := e.store.TransitionTransaction(ctx, tx.ID, domain.StatusProcessing, ""); terr != nil {
		return e.terminate(tx, domain.StatusFailed, terr.Error()), true, fmt.Errorf("%w: %v", domain.ErrStorageFailure, terr)
	}
	tx.Status = domain.StatusProcessing

	// The debit+credit pair and the completed transition are one
	// all-or-nothing unit. A failure in here rolls every balance back.
	var completed domain.Transaction
	err = e.store.Atomic(ctx, func(st store.Store) error {
		if req.outgoing() {
			if _, err := st.Debit(ctx, req.FromAccount, req.Amount); err != nil {
				return err
			}
		}
		if req.incoming() {
			if _, err := st.Credit(ctx, req.ToAccount, req.Amount); err != nil {
				return err
			}
		}
		if req.Apply != nil {
			if err := req.Apply(st); err != nil {
				return err
			}
		}
		done, err := st.TransitionTransaction(ctx, tx.ID, domain.StatusCompleted, "")
		if err != nil {
			return err
		}
		completed = done
		return nil
	})
	if err != nil {
		reason := err.Error()
		if !isDomainFailure(err) {
			err = fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
		}
		// Balances are rolled back; record the outcome so nothing is left
		// in processing.
		return e.terminate(tx, domain.StatusFailed, reason), true, err
	}

	if req.outgoing() {
		if rerr := e.limits.Record(ctx, req.FromAccount, completed.CreatedAt, req.Amount); rerr != nil {
			// Usage tracking is advisory next to the committed movement.
			e.logger.Warn("recording daily limit usage failed",
				zap.String("account", req.FromAccount), zap.Error(rerr))
		}
	}

	e.logger.Info("transfer completed",
		zap.String("transaction_id", completed.ID.String()),
		zap.String("reference", completed.Reference),
		zap.String("from", completed.FromAccount),
		zap.String("to", completed.ToAccount),
		zap.String("amount", completed.Amount.StringFixed(2)))

	return completed, true, nil
}

// verifySource checks the source invariants while its lock is held: active
// status, minimum balance and the daily transfer/withdrawal limit. at is the
// transaction's creation time; Record later uses the same instant, so the
// check and the recorded usage always land in the same day bucket.
func (e *Engine) verifySource(ctx context.Context, source domain.Account, amount decimal.Decimal, at time.Time) error {
	if !source.CanSend() {
		return fmt.Errorf("%w: source %s is %s", domain.ErrAccountNotActive, source.Number, source.Status)
	}
	if source.Balance.Sub(amount).LessThan(source.MinimumBalance) {
		return fmt.Errorf("%w: balance %s, minimum %s, requested %s",
			domain.ErrInsufficientFunds, source.Balance.StringFixed(2),
			source.MinimumBalance.StringFixed(2), amount.StringFixed(2))
	}

	used, err := e.limits.Used(ctx, source.Number, at)
	if err != nil {
		return fmt.Errorf("%w: reading daily usage: %v", domain.ErrStorageFailure, err)
	}
	if used.Add(amount).GreaterThan(source.DailyLimit) {
		return fmt.Errorf("%w: %s used of %s daily limit, requested %s",
			domain.ErrLimitExceeded, used.StringFixed(2),
			source.DailyLimit.StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

// terminate moves tx to a terminal state, best effort. The returned snapshot
// always reflects the terminal state even if persisting it failed.
func (e *Engine) terminate(tx domain.Transaction, to domain.TransactionStatus, reason string) domain.Transaction {
	done, err := e.store.TransitionTransaction(context.Background(), tx.ID, to, reason)
	if err != nil {
		e.logger.Error("terminal transition failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("to", string(to)), zap.Error(err))
		tx.Status = to
		tx.FailureReason = reason
		return tx
	}
	return done
}

// replay returns the committed entry for a retried reference, rejecting
// reuse with a different payload.
func (e *Engine) replay(existing domain.Transaction, requestHash string) (domain.Transaction, error) {
	if existing.RequestHash != requestHash {
		return domain.Transaction{}, fmt.Errorf("%w: reference %s", domain.ErrIdempotencyConflict, existing.Reference)
	}
	return existing, nil
}

func isDomainFailure(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrAccountNotActive) ||
		errors.Is(err, domain.ErrLimitExceeded) ||
		errors.Is(err, domain.ErrNotFound)
}
