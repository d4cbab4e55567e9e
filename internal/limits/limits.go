// Package limits tracks how much of an account's daily transfer/withdrawal
// limit has been consumed. The engine checks Used+amount against the
// account's configured limit while holding the source account's lock, then
// records the usage before releasing it, so the check-and-record pair is
// race-free.
package limits

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Tracker interface {
	Used(ctx context.Context, account string, at time.Time) (decimal.Decimal, error)
	Record(ctx context.Context, account string, at time.Time, amount decimal.Decimal) error
}

// day buckets are UTC calendar days.
func dayKey(account string, at time.Time) string {
	return account + ":" + at.UTC().Format("2006-01-02")
}

// Memory is the in-process tracker used by tests and single-node deployments.
type Memory struct {
	mu   sync.Mutex
	used map[string]decimal.Decimal
}

func NewMemory() *Memory {
	return &Memory{used: make(map[string]decimal.Decimal)}
}

func (m *Memory) Used(ctx context.Context, account string, at time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[dayKey(account, at)], nil
}

func (m *Memory) Record(ctx context.Context, account string, at time.Time, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey(account, at)
	m.used[key] = m.used[key].Add(amount)
	return nil
}
