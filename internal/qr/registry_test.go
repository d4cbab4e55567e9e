package qr

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bank-core/internal/domain"
	"bank-core/internal/engine"
	"bank-core/internal/events"
	"bank-core/internal/limits"
	"bank-core/internal/locker"
	"bank-core/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newTestRegistry(t *testing.T) (*Registry, *memory.Store) {
	t.Helper()
	st := memory.New()
	logger := zap.NewNop()
	eng := engine.New(st, locker.New(), limits.NewMemory(), events.NewLog(logger), logger)
	return New(st, eng, []byte("test-signing-secret"), logger), st
}

func mustAccount(t *testing.T, st *memory.Store, number, balance string) {
	t.Helper()
	require.NoError(t, st.CreateAccount(context.Background(), domain.Account{
		Number:     number,
		Balance:    dec(balance),
		DailyLimit: domain.DefaultDailyLimit,
		Status:     domain.AccountActive,
	}))
}

func TestIssueAndRedeemFixedAmount(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000",
		Amount:        decp("50.00"),
		Purpose:       "rent",
	})
	require.NoError(t, err)
	require.True(t, desc.Active)
	require.NotEmpty(t, desc.Token)

	tx, err := r.Redeem(ctx, domain.RedeemQRRequest{
		QRCodeID:        desc.QRCodeID,
		RedeemerAccount: "4000",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, tx.Status)
	require.Equal(t, domain.TypePayment, tx.Type)
	require.Equal(t, "4000", tx.FromAccount)
	require.Equal(t, "3000", tx.ToAccount)
	require.True(t, strings.HasPrefix(tx.Reference, fmt.Sprintf("QR-%s-", desc.QRCodeID)))

	bound, err := st.GetAccount(ctx, "3000")
	require.NoError(t, err)
	require.True(t, bound.Balance.Equal(dec("50.00")))

	q, err := st.GetQR(ctx, desc.QRCodeID)
	require.NoError(t, err)
	require.Equal(t, 1, q.UsedCount)
}

func TestRedeemAmountMismatch(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("50.00"), Purpose: "rent",
	})
	require.NoError(t, err)

	_, err = r.Redeem(ctx, domain.RedeemQRRequest{
		QRCodeID:        desc.QRCodeID,
		RedeemerAccount: "4000",
		Amount:          decp("49.99"),
	})
	require.ErrorIs(t, err, domain.ErrAmountMismatch)

	// No movement, no usage.
	acc, _ := st.GetAccount(ctx, "4000")
	require.True(t, acc.Balance.Equal(dec("100.00")))
	q, _ := st.GetQR(ctx, desc.QRCodeID)
	require.Equal(t, 0, q.UsedCount)
}

func TestRedeemOpenAmount(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Purpose: "tips",
	})
	require.NoError(t, err)

	// Open requests need the redeemer to supply the amount.
	_, err = r.Redeem(ctx, domain.RedeemQRRequest{
		QRCodeID: desc.QRCodeID, RedeemerAccount: "4000",
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	tx, err := r.Redeem(ctx, domain.RedeemQRRequest{
		QRCodeID: desc.QRCodeID, RedeemerAccount: "4000", Amount: decp("12.34"),
	})
	require.NoError(t, err)
	require.True(t, tx.Amount.Equal(dec("12.34")))
}

func TestRedeemExpired(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	past := time.Now().UTC().Add(-time.Hour)
	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("50.00"), Purpose: "rent", ExpiresAt: &past,
	})
	require.NoError(t, err)

	_, err = r.Redeem(ctx, domain.RedeemQRRequest{
		QRCodeID: desc.QRCodeID, RedeemerAccount: "4000",
	})
	require.ErrorIs(t, err, domain.ErrQRExpired)

	// No Transaction created, no balance change.
	acc, _ := st.GetAccount(ctx, "4000")
	require.True(t, acc.Balance.Equal(dec("100.00")))
}

func TestRedeemDeactivated(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("50.00"), Purpose: "rent",
	})
	require.NoError(t, err)

	// Only the bound account may deactivate.
	err = r.Deactivate(ctx, desc.QRCodeID, "4000")
	require.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, r.Deactivate(ctx, desc.QRCodeID, "3000"))

	_, err = r.Redeem(ctx, domain.RedeemQRRequest{
		QRCodeID: desc.QRCodeID, RedeemerAccount: "4000",
	})
	require.ErrorIs(t, err, domain.ErrQRInactive)
}

func TestRedeemNotSingleUse(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("10.00"), Purpose: "coffee",
	})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		tx, err := r.Redeem(ctx, domain.RedeemQRRequest{
			QRCodeID: desc.QRCodeID, RedeemerAccount: "4000",
		})
		require.NoError(t, err)
		require.Equal(t, domain.StatusCompleted, tx.Status)

		q, _ := st.GetQR(ctx, desc.QRCodeID)
		require.Equal(t, i, q.UsedCount)
	}

	bound, _ := st.GetAccount(ctx, "3000")
	require.True(t, bound.Balance.Equal(dec("30.00")))
}

func TestRedeemWithCallerReferenceIsIdempotent(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("10.00"), Purpose: "coffee",
	})
	require.NoError(t, err)

	req := domain.RedeemQRRequest{
		QRCodeID:        desc.QRCodeID,
		RedeemerAccount: "4000",
		RedemptionRef:   "POS-12345",
	}
	tx1, err := r.Redeem(ctx, req)
	require.NoError(t, err)
	tx2, err := r.Redeem(ctx, req)
	require.NoError(t, err)
	require.Equal(t, tx1.ID, tx2.ID)

	bound, _ := st.GetAccount(ctx, "3000")
	require.True(t, bound.Balance.Equal(dec("10.00")), "duplicate delivery must pay once")

	// One logical redemption, one usage count.
	q, err := st.GetQR(ctx, desc.QRCodeID)
	require.NoError(t, err)
	require.Equal(t, 1, q.UsedCount)
}

func TestUsageNotCountedWhenTransferFails(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "5.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("10.00"), Purpose: "coffee",
	})
	require.NoError(t, err)

	_, err = r.Redeem(ctx, domain.RedeemQRRequest{
		QRCodeID: desc.QRCodeID, RedeemerAccount: "4000",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	q, err := st.GetQR(ctx, desc.QRCodeID)
	require.NoError(t, err)
	require.Equal(t, 0, q.UsedCount)
}

func TestRedeemByToken(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("25.00"), Purpose: "invoice",
	})
	require.NoError(t, err)

	tx, err := r.Redeem(ctx, domain.RedeemQRRequest{
		Token:           desc.Token,
		RedeemerAccount: "4000",
	})
	require.NoError(t, err)
	require.Equal(t, "3000", tx.ToAccount)
}

func TestTamperedTokenRejected(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	mustAccount(t, st, "3000", "0.00")
	mustAccount(t, st, "4000", "100.00")

	desc, err := r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("25.00"), Purpose: "invoice",
	})
	require.NoError(t, err)

	// Flip a character in the signature.
	tampered := desc.Token[:len(desc.Token)-2] + "xx"
	_, err = r.Redeem(ctx, domain.RedeemQRRequest{
		Token:           tampered,
		RedeemerAccount: "4000",
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	// A token signed with a different secret is just as dead.
	other := New(st, nil, []byte("other-secret"), zap.NewNop())
	foreign, err := other.signToken(domain.QRPaymentRequest{
		ID: desc.QRCodeID, Account: "3000", Purpose: "invoice",
	})
	require.NoError(t, err)
	_, err = r.VerifyToken(foreign)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestRedeemUnknownQR(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	mustAccount(t, st, "4000", "100.00")

	_, err := r.Redeem(ctx, domain.RedeemQRRequest{
		QRCodeID:        uuid.New(),
		RedeemerAccount: "4000",
	})
	require.ErrorIs(t, err, domain.ErrQRNotFound)
}

func TestIssueValidation(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	mustAccount(t, st, "3000", "0.00")

	_, err := r.Issue(ctx, domain.IssueQRRequest{AccountNumber: "3000", Purpose: ""})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "3000", Amount: decp("-1.00"), Purpose: "x",
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = r.Issue(ctx, domain.IssueQRRequest{
		AccountNumber: "9999", Purpose: "x",
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
