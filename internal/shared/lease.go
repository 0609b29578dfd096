package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another owner keeps the lease past the wait budget.
var ErrLeaseHeld = errors.New("lease held by another owner")

// ErrLeaseLost is returned on release when the lease expired or changed owner.
var ErrLeaseLost = errors.New("lease no longer owned")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is an exclusive claim on a key. The token identifies the owner.
type Lease struct {
	Key   string
	Token string
}

// LeaseOptions tunes acquisition polling.
type LeaseOptions struct {
	Wait time.Duration
	Poll time.Duration
}

// LeaseManager hands out short-lived exclusive leases stored in Redis.
type LeaseManager struct {
	client redis.UniversalClient
	wait   time.Duration
	poll   time.Duration
}

// NewLeaseManager constructs a LeaseManager.
func NewLeaseManager(client redis.UniversalClient, opts LeaseOptions) *LeaseManager {
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Millisecond
	}
	return &LeaseManager{client: client, wait: opts.Wait, poll: opts.Poll}
}

// Acquire claims key for ttl, polling until the wait budget is spent.
func (m *LeaseManager) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if m == nil || m.client == nil {
		return Lease{}, errors.New("lease manager not initialised")
	}
	if ttl <= 0 {
		return Lease{}, fmt.Errorf("lease %s: ttl must be positive", key)
	}
	lease := Lease{Key: key, Token: uuid.NewString()}
	deadline := time.Now().Add(m.wait)
	for {
		ok, err := m.client.SetNX(ctx, key, lease.Token, ttl).Result()
		if err != nil {
			return Lease{}, fmt.Errorf("lease %s: %w", key, err)
		}
		if ok {
			return lease, nil
		}
		if !time.Now().Add(m.poll).Before(deadline) {
			return Lease{}, fmt.Errorf("%w: %s", ErrLeaseHeld, key)
		}
		select {
		case <-ctx.Done():
			return Lease{}, ctx.Err()
		case <-time.After(m.poll):
		}
	}
}

// Release drops the lease if it is still owned by lease.Token.
func (m *LeaseManager) Release(ctx context.Context, lease Lease) error {
	if m == nil || m.client == nil || lease.Key == "" {
		return nil
	}
	deleted, err := releaseScript.Run(ctx, m.client, []string{lease.Key}, lease.Token).Int64()
	if err != nil {
		return fmt.Errorf("lease %s: release: %w", lease.Key, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrLeaseLost, lease.Key)
	}
	return nil
}
