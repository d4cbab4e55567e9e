// Package qr issues and redeems scannable payment requests. The registry
// owns QR request state only; balance movement is delegated to the transfer
// engine and never done here.
package qr

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bank-core/internal/domain"
	"bank-core/internal/engine"
	"bank-core/internal/store"
)

type Registry struct {
	store  store.Store
	engine *engine.Engine
	secret []byte
	logger *zap.Logger
}

func New(st store.Store, eng *engine.Engine, secret []byte, logger *zap.Logger) *Registry {
	return &Registry{store: st, engine: eng, secret: secret, logger: logger}
}

// Issue creates an active payment request bound to an account and returns
// its descriptor, including the signed token encoded into the scannable
// code. A fixed amount, when given, must be positive.
func (r *Registry) Issue(ctx context.Context, req domain.IssueQRRequest) (domain.QRDescriptor, error) {
	if req.AccountNumber == "" {
		return domain.QRDescriptor{}, fmt.Errorf("%w: account number required", domain.ErrValidation)
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return domain.QRDescriptor{}, fmt.Errorf("%w: fixed amount must be positive", domain.ErrInvalidAmount)
	}
	if req.Purpose == "" {
		return domain.QRDescriptor{}, fmt.Errorf("%w: purpose required", domain.ErrValidation)
	}
	if _, err := r.store.GetAccount(ctx, req.AccountNumber); err != nil {
		return domain.QRDescriptor{}, err
	}

	q := domain.QRPaymentRequest{
		ID:        uuid.New(),
		Account:   req.AccountNumber,
		Amount:    req.Amount,
		Purpose:   req.Purpose,
		Active:    true,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateQR(ctx, q); err != nil {
		return domain.QRDescriptor{}, err
	}

	token, err := r.signToken(q)
	if err != nil {
		return domain.QRDescriptor{}, err
	}

	r.logger.Info("qr payment request issued",
		zap.String("qr_id", q.ID.String()),
		zap.String("account", q.Account))

	return descriptor(q, token), nil
}

// Redeem resolves a payment request and delegates the movement to the
// engine with type payment. The reference embeds the QR id and a monotonic
// per-request sequence so a retried delivery replays instead of paying
// twice; callers with their own idempotency key pass RedemptionRef.
func (r *Registry) Redeem(ctx context.Context, req domain.RedeemQRRequest) (domain.Transaction, error) {
	id := req.QRCodeID
	if req.Token != "" {
		claims, err := r.VerifyToken(req.Token)
		if err != nil {
			return domain.Transaction{}, err
		}
		id = claims.QRCodeID
	}
	if id == uuid.Nil {
		return domain.Transaction{}, fmt.Errorf("%w: qr id or token required", domain.ErrValidation)
	}
	if req.RedeemerAccount == "" {
		return domain.Transaction{}, fmt.Errorf("%w: redeemer account required", domain.ErrValidation)
	}

	q, err := r.store.GetQR(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	now := time.Now().UTC()
	if q.Expired(now) {
		return domain.Transaction{}, fmt.Errorf("%w: %s expired at %s", domain.ErrQRExpired, q.ID, q.ExpiresAt.Format(time.RFC3339))
	}
	if !q.Active {
		return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrQRInactive, q.ID)
	}

	amount, err := resolveAmount(q, req.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}

	reference := req.RedemptionRef
	if reference == "" {
		seq, err := r.store.NextQRSequence(ctx, q.ID)
		if err != nil {
			return domain.Transaction{}, err
		}
		reference = fmt.Sprintf("QR-%s-%d", q.ID, seq)
	}

	// The usage increment rides in the transfer's atomic unit: it commits
	// with the movement and never runs when a retried delivery replays an
	// already-committed entry, so one logical redemption counts once.
	return r.engine.ExecuteTransfer(ctx, engine.TransferRequest{
		FromAccount: req.RedeemerAccount,
		ToAccount:   q.Account,
		Amount:      amount,
		Type:        domain.TypePayment,
		Reference:   reference,
		Description: q.Purpose,
		Apply: func(st store.Store) error {
			return st.IncrementQRUsage(ctx, q.ID)
		},
	})
}

// Deactivate clears the active flag. Requests are kept for audit, never
// deleted; only the bound account's owner may deactivate.
func (r *Registry) Deactivate(ctx context.Context, id uuid.UUID, account string) error {
	q, err := r.store.GetQR(ctx, id)
	if err != nil {
		return err
	}
	if q.Account != account {
		return fmt.Errorf("%w: request %s is not bound to account %s", domain.ErrValidation, id, account)
	}
	return r.store.DeactivateQR(ctx, id)
}

// Get returns the descriptor for an issued request, with a fresh token.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (domain.QRDescriptor, error) {
	q, err := r.store.GetQR(ctx, id)
	if err != nil {
		return domain.QRDescriptor{}, err
	}
	token, err := r.signToken(q)
	if err != nil {
		return domain.QRDescriptor{}, err
	}
	return descriptor(q, token), nil
}

func resolveAmount(q domain.QRPaymentRequest, supplied *decimal.Decimal) (decimal.Decimal, error) {
	if q.Amount != nil {
		// Fixed-amount requests: a supplied amount must match exactly.
		if supplied != nil && !supplied.Equal(*q.Amount) {
			return decimal.Zero, fmt.Errorf("%w: request fixes %s, got %s",
				domain.ErrAmountMismatch, q.Amount.StringFixed(2), supplied.StringFixed(2))
		}
		return *q.Amount, nil
	}
	if supplied == nil {
		return decimal.Zero, fmt.Errorf("%w: open request needs an amount", domain.ErrInvalidAmount)
	}
	return *supplied, nil
}

func descriptor(q domain.QRPaymentRequest, token string) domain.QRDescriptor {
	return domain.QRDescriptor{
		QRCodeID:  q.ID,
		Account:   q.Account,
		Amount:    q.Amount,
		Purpose:   q.Purpose,
		Active:    q.Active,
		ExpiresAt: q.ExpiresAt,
		UsedCount: q.UsedCount,
		Token:     token,
	}
}
