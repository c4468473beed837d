// ログイン失敗をメールアドレス単位でredisに数える
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type RedisLoginLimiter struct {
	client      *redis.Client
	maxAttempts int64
	window      time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// 失敗がmaxAttempts回に達したら、最初の失敗からwindowの間ロックする
func NewRedisLoginLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLoginLimiter {
	return &RedisLoginLimiter{client: client, maxAttempts: int64(maxAttempts), window: window}
}

func key(identity string) string {
	return fmt.Sprintf("login_fail:%s", identity)
}

func (l *RedisLoginLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	k := key(identity)
	n, err := l.client.Get(ctx, k).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if n < l.maxAttempts {
		return true, nil
	}

	// TTLの無いキーが残っていると永久にロックされるので、ここでも付け直す
	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if err := l.ensureTTL(ctx, k, ttl); err != nil {
		return false, err
	}
	return false, nil
}

func (l *RedisLoginLimiter) RecordFailure(ctx context.Context, identity string) error {
	k := key(identity)
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, k)
		ttl = p.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return err
	}
	return l.ensureTTL(ctx, k, ttl.Val())
}

// TTLが無ければwindowを付ける。既にあれば延長しない（最初の失敗から数える）
func (l *RedisLoginLimiter) ensureTTL(ctx context.Context, k string, ttl time.Duration) error {
	if ttl >= 0 {
		return nil
	}
	// リクエストが切断されても付け損ねないよう、キャンセルは引き継がない
	return l.client.Expire(context.WithoutCancel(ctx), k, l.window).Err()
}

func (l *RedisLoginLimiter) Reset(ctx context.Context, identity string) error {
	return l.client.Del(ctx, key(identity)).Err()
}

func (l *RedisLoginLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
