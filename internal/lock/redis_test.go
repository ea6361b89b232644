package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// fakeRedis keeps string keys in memory and runs the two lock scripts by
// hash. Expiry is recorded but never enforced.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	extends int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, exp time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = exp
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := keys[0], args[0].(string)
	if f.values[key] != token {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch sha {
	case releaseScript.Hash():
		delete(f.values, key)
		delete(f.ttls, key)
	case extendScript.Hash():
		f.ttls[key] = time.Duration(args[1].(int64)) * time.Millisecond
		f.extends++
	default:
		return redis.NewCmdResult(nil, errors.New("NOSCRIPT unknown script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) Eval(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("eval not supported"))
}

func (f *fakeRedis) EvalRO(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("eval not supported"))
}

func (f *fakeRedis) EvalShaRO(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("eval not supported"))
}

func (f *fakeRedis) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(nil, nil)
}

func (f *fakeRedis) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeRedis) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeRedis) extendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extends
}

func newTestRedisLocker(f *fakeRedis, ttl time.Duration) *RedisLocker {
	l := NewRedisLocker(f, "test:", ttl, zerolog.Nop())
	l.retry = time.Millisecond
	return l
}

func TestRedisLocker_ExcludesSecondHolder(t *testing.T) {
	f := newFakeRedis()
	l := newTestRedisLocker(f, time.Minute)
	ctx := context.Background()

	release, err := l.Lock(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, ok := f.value("test:AAPL"); !ok {
		t.Fatal("expected key test:AAPL to be set")
	}

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(cctx, "AAPL"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock err = %v, want deadline exceeded", err)
	}

	release()
	release()
	if _, ok := f.value("test:AAPL"); ok {
		t.Fatal("key still set after release")
	}
	again, err := l.Lock(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}

func TestRedisLocker_RenewsUntilReleased(t *testing.T) {
	f := newFakeRedis()
	l := newTestRedisLocker(f, 30*time.Millisecond)

	release, err := l.Lock(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if n := f.extendCount(); n == 0 {
		t.Fatal("expected the lock to be extended while held")
	}

	release()
	n := f.extendCount()
	time.Sleep(40 * time.Millisecond)
	if got := f.extendCount(); got != n {
		t.Errorf("extends after release = %d, want %d", got, n)
	}
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	f := newFakeRedis()
	l := newTestRedisLocker(f, time.Minute)

	release, err := l.Lock(context.Background(), "TSLA")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	// Simulate expiry followed by another process taking the lock.
	f.mu.Lock()
	f.values["test:TSLA"] = "other-token"
	f.mu.Unlock()

	release()
	if v, _ := f.value("test:TSLA"); v != "other-token" {
		t.Errorf("foreign lock value = %q, want other-token", v)
	}
}
