package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another worker already holds the pass lease
// for the tenant. Overlapping consolidation passes for one tenant would race
// on shared canonical rows, so the caller must back off and retry later.
var ErrLeaseHeld = fmt.Errorf("redisdb: lease already held")

// Lease is a per-tenant mutual exclusion token for batch passes.
type Lease struct {
	rdb   *goredis.Client
	key   string
	token string
	ttl   time.Duration
}

// releaseScript deletes the key only if we still own it.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only if we still own the key.
var refreshScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// AcquireLease takes the lease for (kind, tenant) or returns ErrLeaseHeld.
// A nil client grants a no-op lease so single-process deployments without
// Redis keep working.
func (c *Client) AcquireLease(ctx context.Context, kind, tenantID string, ttl time.Duration) (*Lease, error) {
	if c == nil || c.RDB == nil {
		return &Lease{}, nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	key := "kbgraph:lease:" + kind + ":" + tenantID
	token := uuid.NewString()
	ok, err := c.RDB.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redisdb: acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &Lease{rdb: c.RDB, key: key, token: token, ttl: ttl}, nil
}

// Refresh extends the lease TTL; call it between pages of a long pass.
func (l *Lease) Refresh(ctx context.Context) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redisdb: refresh lease: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("redisdb: lease lost")
	}
	return nil
}

func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.rdb == nil {
		return
	}
	_, _ = releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Result()
}
