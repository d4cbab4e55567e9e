package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
	AccountFrozen   AccountStatus = "frozen"
	AccountClosed   AccountStatus = "closed"
)

// DefaultDailyLimit applies when an account is opened without an explicit
// transfer/withdrawal limit.
var DefaultDailyLimit = decimal.NewFromInt(50000)

// Account is a bank account as seen by the money-movement core. The balance
// is only ever changed through the store's Debit/Credit; nothing else
// read-modify-writes it.
type Account struct {
	Number         string
	Balance        decimal.Decimal
	MinimumBalance decimal.Decimal
	DailyLimit     decimal.Decimal
	Status         AccountStatus
	CreatedAt      time.Time
}

// CanSend reports whether the account may be the source of an outgoing
// movement. Frozen and closed accounts may not send; inactive ones neither.
func (a Account) CanSend() bool {
	return a.Status == AccountActive
}

// CanReceive reports whether the account may receive funds. Only closed
// accounts are barred from receiving.
func (a Account) CanReceive() bool {
	return a.Status != AccountClosed
}
