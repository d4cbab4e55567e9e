package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OpenAccountRequest struct {
	AccountNumber  string          `json:"account_number"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	MinimumBalance decimal.Decimal `json:"minimum_balance"`
	DailyLimit     decimal.Decimal `json:"daily_limit"`
}

type AccountResponse struct {
	AccountNumber  string          `json:"account_number"`
	Balance        decimal.Decimal `json:"balance"`
	MinimumBalance decimal.Decimal `json:"minimum_balance"`
	DailyLimit     decimal.Decimal `json:"daily_limit"`
	Status         AccountStatus   `json:"status"`
}

type TransferAPIRequest struct {
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
}

type TransactionResponse struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	Reference     string            `json:"reference"`
	FromAccount   string            `json:"from_account,omitempty"`
	ToAccount     string            `json:"to_account,omitempty"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        TransactionStatus `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func NewTransactionResponse(tx Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		FromAccount:   tx.FromAccount,
		ToAccount:     tx.ToAccount,
		Type:          tx.Type,
		Amount:        tx.Amount,
		Status:        tx.Status,
		FailureReason: tx.FailureReason,
		CreatedAt:     tx.CreatedAt,
		CompletedAt:   tx.CompletedAt,
	}
}

type IssueQRRequest struct {
	AccountNumber string           `json:"account_number"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Purpose       string           `json:"purpose"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
}

type QRDescriptor struct {
	QRCodeID  uuid.UUID        `json:"qr_code_id"`
	Account   string           `json:"account"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Purpose   string           `json:"purpose"`
	Active    bool             `json:"active"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	UsedCount int              `json:"used_count"`
	// Token is the signed payload encoded into the scannable code.
	Token string `json:"token"`
}

type RedeemQRRequest struct {
	QRCodeID uuid.UUID `json:"qr_code_id"`
	// Token may be supplied instead of QRCodeID; it is verified against the
	// issuing secret before redemption.
	Token           string           `json:"token,omitempty"`
	RedeemerAccount string           `json:"redeemer_account"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	// RedemptionRef lets a caller retry a delivery with its own idempotency
	// key instead of the registry-generated one.
	RedemptionRef string `json:"redemption_ref,omitempty"`
}
