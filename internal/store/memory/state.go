package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-core/internal/domain"
)

func (s *state) getAccount(number string) (domain.Account, error) {
	acc, ok := s.accounts[number]
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: account %s", domain.ErrNotFound, number)
	}
	return acc, nil
}

func (s *state) createAccount(acc domain.Account) error {
	if acc.Number == "" {
		return fmt.Errorf("%w: empty account number", domain.ErrValidation)
	}
	if _, exists := s.accounts[acc.Number]; exists {
		return fmt.Errorf("%w: account %s already exists", domain.ErrValidation, acc.Number)
	}
	if acc.Status == "" {
		acc.Status = domain.AccountActive
	}
	if acc.DailyLimit.IsZero() {
		acc.DailyLimit = domain.DefaultDailyLimit
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	s.accounts[acc.Number] = acc
	return nil
}

func (s *state) debit(number string, amount decimal.Decimal) (decimal.Decimal, error) {
	acc, ok := s.accounts[number]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: account %s", domain.ErrNotFound, number)
	}
	if !acc.CanSend() {
		return decimal.Zero, fmt.Errorf("%w: account %s is %s", domain.ErrAccountNotActive, number, acc.Status)
	}
	next := acc.Balance.Sub(amount)
	if next.LessThan(acc.MinimumBalance) {
		return decimal.Zero, fmt.Errorf("%w: balance %s, minimum %s, requested %s",
			domain.ErrInsufficientFunds, acc.Balance.StringFixed(2), acc.MinimumBalance.StringFixed(2), amount.StringFixed(2))
	}
	acc.Balance = next
	s.accounts[number] = acc
	return next, nil
}

func (s *state) credit(number string, amount decimal.Decimal) (decimal.Decimal, error) {
	acc, ok := s.accounts[number]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: account %s", domain.ErrNotFound, number)
	}
	if !acc.CanReceive() {
		return decimal.Zero, fmt.Errorf("%w: account %s is closed", domain.ErrAccountNotActive, number)
	}
	acc.Balance = acc.Balance.Add(amount)
	s.accounts[number] = acc
	return acc.Balance, nil
}

func (s *state) createTransaction(tx domain.Transaction) error {
	if tx.ID == uuid.Nil || tx.Reference == "" {
		return fmt.Errorf("%w: transaction needs id and reference", domain.ErrValidation)
	}
	if _, exists := s.byReference[tx.Reference]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateReference, tx.Reference)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.transactions[tx.ID] = tx
	s.byReference[tx.Reference] = tx.ID
	return nil
}

func (s *state) getTransaction(id uuid.UUID) (domain.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	return tx, nil
}

func (s *state) getTransactionByReference(reference string) (domain.Transaction, error) {
	id, ok := s.byReference[reference]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("%w: reference %s", domain.ErrNotFound, reference)
	}
	return s.transactions[id], nil
}

func (s *state) transitionTransaction(id uuid.UUID, to domain.TransactionStatus, reason string) (domain.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	if !tx.Status.CanTransition(to) {
		return domain.Transaction{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, tx.Status, to)
	}
	tx.Status = to
	if to == domain.StatusFailed || to == domain.StatusCancelled {
		tx.FailureReason = reason
	}
	if to == domain.StatusCompleted {
		now := time.Now().UTC()
		tx.CompletedAt = &now
	}
	s.transactions[id] = tx
	return tx, nil
}

func (s *state) createQR(qr domain.QRPaymentRequest) error {
	if qr.ID == uuid.Nil || qr.Account == "" {
		return fmt.Errorf("%w: qr request needs id and account", domain.ErrValidation)
	}
	if _, exists := s.qrs[qr.ID]; exists {
		return fmt.Errorf("%w: qr %s already exists", domain.ErrValidation, qr.ID)
	}
	if qr.CreatedAt.IsZero() {
		qr.CreatedAt = time.Now().UTC()
	}
	s.qrs[qr.ID] = qr
	return nil
}

func (s *state) getQR(id uuid.UUID) (domain.QRPaymentRequest, error) {
	qr, ok := s.qrs[id]
	if !ok {
		return domain.QRPaymentRequest{}, fmt.Errorf("%w: %s", domain.ErrQRNotFound, id)
	}
	return qr, nil
}

func (s *state) deactivateQR(id uuid.UUID) error {
	qr, ok := s.qrs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQRNotFound, id)
	}
	qr.Active = false
	s.qrs[id] = qr
	return nil
}

func (s *state) incrementQRUsage(id uuid.UUID) error {
	qr, ok := s.qrs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQRNotFound, id)
	}
	qr.UsedCount++
	s.qrs[id] = qr
	return nil
}

func (s *state) nextQRSequence(id uuid.UUID) (int64, error) {
	if _, ok := s.qrs[id]; !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrQRNotFound, id)
	}
	s.qrSequences[id]++
	return s.qrSequences[id], nil
}
