package limits

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Redis tracks daily usage in minor units (cents) via INCRBY, so multiple
// engine instances sharing one Redis see the same consumption. Keys expire
// two days after creation; yesterday's bucket is never read again.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "limits:"}
}

func (r *Redis) key(account string, at time.Time) string {
	return r.prefix + dayKey(account, at)
}

func (r *Redis) Used(ctx context.Context, account string, at time.Time) (decimal.Decimal, error) {
	cents, err := r.client.Get(ctx, r.key(account, at)).Int64()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(cents, -2), nil
}

func (r *Redis) Record(ctx context.Context, account string, at time.Time, amount decimal.Decimal) error {
	key := r.key(account, at)
	cents := amount.Shift(2).IntPart()

	pipe := r.client.TxPipeline()
	pipe.IncrBy(ctx, key, cents)
	pipe.Expire(ctx, key, 48*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
