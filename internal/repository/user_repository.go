package repository

import (
	"context"
	"time"

	"delivery/internal/domain/model"
)

// 見つからない場合はErrNotFound、email重複はErrDuplicateを返す。
type UserRepository interface {
	//新規ユーザー作成
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//メールからユーザーを一件取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	//ADMINが1人でもいるか
	ExistsAdmin(ctx context.Context) (bool, error)
	//初期ADMIN作成を直列化する。トランザクション終了まで保持される
	LockAdminBootstrap(ctx context.Context) error
	//最終ログイン時刻
	UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error
	//パスワード変更。token_versionも+1して発行済みトークンを無効にする
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	//トークンのバージョンを＋１
	IncrementTokenVersion(ctx context.Context, userID int64) error
	Delete(ctx context.Context, userID int64) error
}
