package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 15 * time.Minute

func newLimiter(t *testing.T, maxAttempts int) (*RedisLoginLimiter, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLoginLimiter(client, maxAttempts, window), mr, client
}

// expireを失敗させる、もしくはINCRの直後にctxをキャンセルするhook
type faultHook struct {
	failExpire atomic.Bool
	afterIncr  func()
}

func (h *faultHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	if cmd.Name() == "expire" && h.failExpire.Load() {
		return ctx, errors.New("connection reset by peer")
	}
	return ctx, nil
}

func (h *faultHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error { return nil }

func (h *faultHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (h *faultHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	if h.afterIncr != nil {
		h.afterIncr()
	}
	return nil
}

func TestRedisLoginLimiter_BlocksAfterMaxAttempts(t *testing.T) {
	l, mr, _ := newLimiter(t, 3)
	ctx := context.Background()
	const who = "alice@example.com"

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, who)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
		require.NoError(t, l.RecordFailure(ctx, who))
	}

	ok, err := l.Allow(ctx, who)
	require.NoError(t, err)
	assert.False(t, ok)

	// 他のアドレスには影響しない
	ok, err = l.Allow(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	// TTLは最初の失敗から。後続の失敗で延長しない
	assert.Equal(t, window, mr.TTL(key(who)))
}

func TestRedisLoginLimiter_WindowExpiry(t *testing.T) {
	l, mr, _ := newLimiter(t, 2)
	ctx := context.Background()
	const who = "alice@example.com"

	require.NoError(t, l.RecordFailure(ctx, who))
	require.NoError(t, l.RecordFailure(ctx, who))
	ok, err := l.Allow(ctx, who)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(window)

	ok, err = l.Allow(ctx, who)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists(key(who)))
}

func TestRedisLoginLimiter_Reset(t *testing.T) {
	l, mr, _ := newLimiter(t, 2)
	ctx := context.Background()
	const who = "alice@example.com"

	require.NoError(t, l.RecordFailure(ctx, who))
	require.NoError(t, l.RecordFailure(ctx, who))

	require.NoError(t, l.Reset(ctx, who))
	assert.False(t, mr.Exists(key(who)))

	ok, err := l.Allow(ctx, who)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLoginLimiter_FailedExpireIsRepaired(t *testing.T) {
	l, mr, client := newLimiter(t, 3)
	hook := &faultHook{}
	client.AddHook(hook)
	ctx := context.Background()
	const who = "alice@example.com"

	hook.failExpire.Store(true)
	for i := 0; i < 3; i++ {
		assert.Error(t, l.RecordFailure(ctx, who))
	}
	// カウントだけ残ってTTLが無い
	assert.Equal(t, "3", mustGet(t, mr, key(who)))
	assert.Equal(t, time.Duration(0), mr.TTL(key(who)))

	hook.failExpire.Store(false)
	ok, err := l.Allow(ctx, who)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, window, mr.TTL(key(who)))

	mr.FastForward(window)
	ok, err = l.Allow(ctx, who)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLoginLimiter_NextFailureRepairsMissingTTL(t *testing.T) {
	l, mr, _ := newLimiter(t, 5)
	ctx := context.Background()
	const who = "alice@example.com"

	require.NoError(t, mr.Set(key(who), "2"))
	require.NoError(t, l.RecordFailure(ctx, who))

	assert.Equal(t, "3", mustGet(t, mr, key(who)))
	assert.Equal(t, window, mr.TTL(key(who)))
}

func TestRedisLoginLimiter_CanceledRequestStillSetsTTL(t *testing.T) {
	l, mr, client := newLimiter(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.AddHook(&faultHook{afterIncr: cancel})
	const who = "alice@example.com"

	require.NoError(t, l.RecordFailure(ctx, who))
	assert.Equal(t, window, mr.TTL(key(who)))
}

func TestRedisLoginLimiter_ReportsUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedisLoginLimiter(client, 5, time.Minute)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "alice@example.com")
	assert.Error(t, err)
	assert.False(t, ok)

	assert.Error(t, l.RecordFailure(ctx, "alice@example.com"))
	assert.Error(t, l.Reset(ctx, "alice@example.com"))
	assert.Error(t, l.Ping(ctx))
}

func TestKeyIsPerIdentity(t *testing.T) {
	assert.Equal(t, "login_fail:alice@example.com", key("alice@example.com"))
	assert.NotEqual(t, key("alice@example.com"), key("bob@example.com"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, k string) string {
	t.Helper()
	v, err := mr.Get(k)
	require.NoError(t, err)
	return v
}
