package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custodial-wallet-engine/pkg/apperror"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only if it still holds our token.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// UserLock implements ports.UserLocker across engine instances with SET NX PX.
// The TTL bounds how long a crashed holder can block a user; a live holder
// keeps extending it every ttl/3 until unlock.
type UserLock struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	log    zerolog.Logger
}

// NewUserLock creates a Redis-backed user lock.
func NewUserLock(client goredis.UniversalClient, ttl, wait time.Duration, log zerolog.Logger) *UserLock {
	return &UserLock{
		client: client,
		prefix: "lock:user:",
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
		log:    log,
	}
}

// Lock blocks until the user's lock is acquired, the wait timeout elapses or ctx is done.
func (l *UserLock) Lock(ctx context.Context, userID string) (func(), error) {
	key := l.prefix + userID
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("redis user lock: %w", err)
		}
		if ok {
			return l.hold(key, token), nil
		}

		select {
		case <-waitCtx.Done():
			return nil, apperror.ErrLockTimeout(fmt.Errorf("user %s: %w", userID, waitCtx.Err()))
		case <-ticker.C:
		}
	}
}

// hold starts the renewal watchdog and returns the matching unlock func.
func (l *UserLock) hold(key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(key, token)
		})
	}
}

func (l *UserLock) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if l.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			l.log.Warn().Err(err).Str("key", key).Msg("failed to renew user lock")
		case n == 0:
			l.log.Error().Str("key", key).Msg("user lock lost before release")
			return
		}
	}
}

func (l *UserLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("failed to release user lock")
	}
}
