package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript pushes the expiry forward while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisClient is the part of go-redis used by RedisLocker. Both
// *redis.Client and redis.UniversalClient satisfy it.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// RedisLocker is a cross-process lock based on SET NX PX. A held lock is
// renewed every ttl/3 until it is released, so runs longer than ttl keep
// it. If a renewal finds the key gone or owned by another token the lock
// is lost and renewal stops.
type RedisLocker struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    zerolog.Logger
}

// NewRedisLocker creates a RedisLocker. Keys are stored as prefix+key and
// expire after ttl if the holder stops renewing them.
func NewRedisLocker(client RedisClient, prefix string, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  200 * time.Millisecond,
		log:    log.With().Str("component", "lock").Logger(),
	}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Lock polls SET NX until it succeeds or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			return l.hold(name, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold starts renewing name and returns the release func.
func (l *RedisLocker) hold(name, token string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go l.renew(name, token, done, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
			l.release(name, token)
		})
	}
}

func (l *RedisLocker) renew(name, token string, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		n, err := extendScript.Run(ctx, l.client, []string{name}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.log.Warn().Err(err).Str("key", name).Msg("extend lock failed")
			continue
		}
		if n == 0 {
			l.log.Error().Str("key", name).Msg("lock lost before release")
			return
		}
	}
}

func (l *RedisLocker) release(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{name}, token).Err(); err != nil {
		l.log.Warn().Err(err).Str("key", name).Msg("release lock failed")
	}
}
