package limits

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMemoryTrackerAccumulatesPerDay(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	require.NoError(t, m.Record(ctx, "1000", day1, decimal.NewFromInt(100)))
	require.NoError(t, m.Record(ctx, "1000", day1, decimal.NewFromInt(250)))
	require.NoError(t, m.Record(ctx, "2000", day1, decimal.NewFromInt(999)))

	used, err := m.Used(ctx, "1000", day1)
	require.NoError(t, err)
	require.True(t, used.Equal(decimal.NewFromInt(350)))

	// A new UTC day starts a fresh bucket.
	used, err = m.Used(ctx, "1000", day2)
	require.NoError(t, err)
	require.True(t, used.IsZero())

	// Other accounts are independent.
	used, err = m.Used(ctx, "2000", day1)
	require.NoError(t, err)
	require.True(t, used.Equal(decimal.NewFromInt(999)))
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 02:00 on March 2nd in UTC+9 is still March 1st in UTC.
	at := time.Date(2026, 3, 2, 2, 0, 0, 0, loc)
	require.Equal(t, "1000:2026-03-01", dayKey("1000", at))
}
