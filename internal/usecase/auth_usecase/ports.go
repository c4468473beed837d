package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// 平文パスワードとハッシュの変換・照合
type PasswordHasher interface {
	Hash(plain string) (string, error)
	// 形式が壊れたハッシュはerror、不一致は(false, nil)
	Verify(plain string, encoded string) (bool, error)
}

// ログイン失敗回数の制限
type LoginLimiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
	RecordFailure(ctx context.Context, identity string) error
	Reset(ctx context.Context, identity string) error
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NoopLimiter はredisが無いときに使う。常に許可
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NoopLimiter) RecordFailure(context.Context, string) error { return nil }
func (NoopLimiter) Reset(context.Context, string) error         { return nil }
