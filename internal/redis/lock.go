package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("doctor-day lock not acquired")
)

// Locker serialises writers to one doctor's ledger for one day.
type Locker interface {
	WithDayLock(ctx context.Context, doctor, day string, fn func(ctx context.Context) error) error
}

const retryInterval = 20 * time.Millisecond

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

type LockOption func(*redisDayLocker)

// WithAcquireWait lets a writer poll for a held lock for up to d before
// giving up with ErrLockNotAcquired. Zero fails on the first attempt.
func WithAcquireWait(d time.Duration) LockOption {
	return func(l *redisDayLocker) { l.wait = d }
}

// NewRedisDayLocker creates a locker that uses a per doctor-day Redis key
func NewRedisDayLocker(client *redis.Client, ttl time.Duration, opts ...LockOption) Locker {
	l := &redisDayLocker{
		client: client,
		ttl:    ttl,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DayLockKey matches doctors by name, case and surrounding space ignored.
func DayLockKey(doctor, day string) string {
	return fmt.Sprintf("lock:day:%s:%s", strings.ToLower(strings.TrimSpace(doctor)), day)
}

func (l *redisDayLocker) WithDayLock(ctx context.Context, doctor, day string, fn func(ctx context.Context) error) error {
	key := DayLockKey(doctor, day)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire day lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Add(retryInterval).Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release day lock: %w", err)
	}
	return nil
}

// NoopLocker runs fn directly. Single-process tools and tests use it.
type NoopLocker struct{}

func (NoopLocker) WithDayLock(ctx context.Context, _, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
