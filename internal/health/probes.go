package health

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Pinger is implemented by the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probes checks the real dependencies. A nil DB means the in-memory store is
// in use and always reports healthy.
type Probes struct {
	DB    Pinger
	Redis redis.Cmdable
}

// PingDB implements Checker.
func (p Probes) PingDB(ctx context.Context, timeout time.Duration) error {
	if p.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.DB.Ping(ctx)
}

// PingRedis implements Checker.
func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}
