package qr

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bank-core/internal/domain"
)

// TokenClaims bind the QR payload to the issuing account and amount. An
// unsigned payload could name an amount the issuer never intended, so the
// encoded code is an HS256 token verified on redemption.
type TokenClaims struct {
	QRCodeID uuid.UUID `json:"qr_id"`
	Account  string    `json:"account"`
	Amount   string    `json:"amount,omitempty"`
	Purpose  string    `json:"purpose"`
	jwt.RegisteredClaims
}

func (r *Registry) signToken(q domain.QRPaymentRequest) (string, error) {
	claims := TokenClaims{
		QRCodeID: q.ID,
		Account:  q.Account,
		Purpose:  q.Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(q.CreatedAt),
			ID:       q.ID.String(),
		},
	}
	if q.Amount != nil {
		claims.Amount = q.Amount.StringFixed(2)
	}
	if q.ExpiresAt != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*q.ExpiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("signing qr token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates the signature and expiry of a scanned payload.
func (r *Registry) VerifyToken(tokenString string) (TokenClaims, error) {
	var claims TokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, fmt.Errorf("%w: token expired", domain.ErrQRExpired)
		}
		return TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !token.Valid {
		return TokenClaims{}, fmt.Errorf("%w: invalid qr token", domain.ErrValidation)
	}
	return claims, nil
}
