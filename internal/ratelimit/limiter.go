package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Result is the outcome of counting one request against a key.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Ulule adapts a ulule limiter to Limiter.
type Ulule struct {
	L *limiter.Limiter
}

// NewUlule builds a limiter from a formatted rate such as "60-M".
func NewUlule(rate string, store limiter.Store) (*Ulule, error) {
	parsed, err := limiter.NewRateFromFormatted(strings.TrimSpace(rate))
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	return &Ulule{L: limiter.New(store, parsed)}, nil
}

// NewRedisStore shares counters across API replicas.
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	return redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

// NewMemoryStore keeps counters in process.
func NewMemoryStore(prefix string) limiter.Store {
	return memorystore.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute})
}

// Allow implements Limiter.
func (u Ulule) Allow(ctx context.Context, key string) (Result, error) {
	lctx, err := u.L.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		Reset:     time.Unix(lctx.Reset, 0),
	}, nil
}

// ClientIP keys requests by remote address without the port.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
