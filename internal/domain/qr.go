package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QRPaymentRequest is a pre-issued, scannable payment request bound to an
// account. When Amount is nil the redeemer supplies the amount. Requests are
// deactivated, never deleted.
type QRPaymentRequest struct {
	ID      uuid.UUID
	Account string
	// Amount, when set, fixes the redemption amount exactly.
	Amount    *decimal.Decimal
	Purpose   string
	Active    bool
	ExpiresAt *time.Time
	UsedCount int
	CreatedAt time.Time
}

// Expired reports whether the request has an expiry in the past.
func (q QRPaymentRequest) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}

// Redeemable reports whether a redemption attempt may proceed at all.
func (q QRPaymentRequest) Redeemable(now time.Time) bool {
	return q.Active && !q.Expired(now)
}
