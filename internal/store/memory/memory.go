// Package memory is the in-memory Store. It backs the engine's deterministic
// tests and single-node deployments without a database. Atomic works on a
// deep copy of the whole state and swaps it in on success, so a failure
// mid-callback leaves nothing applied.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-core/internal/domain"
	"bank-core/internal/store"
)

type state struct {
	accounts     map[string]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	byReference  map[string]uuid.UUID
	qrs          map[uuid.UUID]domain.QRPaymentRequest
	qrSequences  map[uuid.UUID]int64
}

func newState() *state {
	return &state{
		accounts:     make(map[string]domain.Account),
		transactions: make(map[uuid.UUID]domain.Transaction),
		byReference:  make(map[string]uuid.UUID),
		qrs:          make(map[uuid.UUID]domain.QRPaymentRequest),
		qrSequences:  make(map[uuid.UUID]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.byReference {
		c.byReference[k] = v
	}
	for k, v := range s.qrs {
		c.qrs[k] = v
	}
	for k, v := range s.qrSequences {
		c.qrSequences[k] = v
	}
	return c
}

type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store { return &Store{st: newState()} }

var _ store.Store = (*Store)(nil)

func (s *Store) GetAccount(ctx context.Context, number string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getAccount(number)
}

func (s *Store) CreateAccount(ctx context.Context, acc domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createAccount(acc)
}

func (s *Store) Debit(ctx context.Context, number string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.debit(number, amount)
}

func (s *Store) Credit(ctx context.Context, number string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.credit(number, amount)
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createTransaction(tx)
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getTransaction(id)
}

func (s *Store) GetTransactionByReference(ctx context.Context, reference string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getTransactionByReference(reference)
}

func (s *Store) TransitionTransaction(ctx context.Context, id uuid.UUID, to domain.TransactionStatus, reason string) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.transitionTransaction(id, to, reason)
}

func (s *Store) CreateQR(ctx context.Context, qr domain.QRPaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createQR(qr)
}

func (s *Store) GetQR(ctx context.Context, id uuid.UUID) (domain.QRPaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getQR(id)
}

func (s *Store) DeactivateQR(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deactivateQR(id)
}

func (s *Store) IncrementQRUsage(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.incrementQRUsage(id)
}

func (s *Store) NextQRSequence(ctx context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.nextQRSequence(id)
}

// Atomic runs fn against a clone of the current state and swaps the clone in
// only when fn succeeds. The store-wide lock is held throughout, which is
// acceptable because callers already serialize per account and keep the
// mutation section small.
func (s *Store) Atomic(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := &Store{st: s.st.clone()}
	// The scratch store must not re-lock s.mu; it has its own zero mutex.
	if err := fn(&txView{scratch}); err != nil {
		return err
	}
	s.st = scratch.st
	return nil
}

// txView exposes the scratch store inside Atomic. Nested Atomic calls apply
// directly; the outermost call still commits or discards everything.
type txView struct{ *Store }

func (v *txView) Atomic(ctx context.Context, fn func(store.Store) error) error {
	return fn(v)
}
