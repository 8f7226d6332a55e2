// Package dibs implements short-lived advisory leases on Redis. A lease
// ("dibs") guards a shared record against concurrent mutation: credential
// refreshes and invocation executions both take dibs before writing.
package dibs

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// DefaultTTL bounds how long a crashed holder can block others.
const DefaultTTL = 30 * time.Second

// releaseScript deletes the lease only if the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out leases keyed by arbitrary strings.
type Locker struct {
	client *redis.Client
}

// NewLocker returns a Locker backed by the given Redis client.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lease is a held advisory lock. Release it when done; the TTL reclaims it
// if the holder crashes.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes dibs on key, failing fast with a DibsDenied error when
// another holder has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, gverrors.New(gverrors.KindUnexpectedAddonError, "acquiring dibs", err)
	}
	if !ok {
		return nil, gverrors.Newf(gverrors.KindDibsDenied, "dibs on %q already held", key)
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

// AcquireWait takes dibs on key, retrying with exponential backoff until it
// succeeds or maxWait elapses. A DibsDenied error after the wait means the
// holder outlived our patience.
func (l *Locker) AcquireWait(ctx context.Context, key string, ttl, maxWait time.Duration) (*Lease, error) {
	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 50 * time.Millisecond
	expBackoff.MaxInterval = time.Second

	lease, err := backoff.Retry(waitCtx, func() (*Lease, error) {
		lease, err := l.Acquire(ctx, key, ttl)
		if err != nil && gverrors.KindOf(err) != gverrors.KindDibsDenied {
			return nil, backoff.Permanent(err)
		}
		return lease, err
	}, backoff.WithBackOff(expBackoff))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return nil, gverrors.Newf(gverrors.KindDibsDenied,
				"dibs on %q still held after %s", key, maxWait)
		}
		return nil, err
	}
	return lease, nil
}

// Release gives the lease back. Releasing an expired or stolen lease is not
// an error; the script only deletes what we still hold.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil {
		return nil
	}
	err := releaseScript.Run(ctx, le.locker.client, []string{le.key}, le.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return gverrors.New(gverrors.KindUnexpectedAddonError, "releasing dibs", err)
	}
	return nil
}
