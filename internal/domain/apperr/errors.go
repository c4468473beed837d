// usecase・middleware・handlerで共有するエラーの種類
package apperr

import (
	"errors"
	"fmt"
)

var (
	// 入力不正（400）
	ErrValidation = errors.New("validation error")

	// 会員登録
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrWeakCredential    = errors.New("weak credential")

	// 認証（401）
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("expired token")
	ErrUnknownSubject     = errors.New("unknown subject")

	// 権限（403）
	ErrForbidden = errors.New("forbidden")

	// 注文ステータス
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")

	// ログイン試行回数の上限
	ErrTooManyAttempts = errors.New("too many attempts")

	// 500
	ErrInternal = errors.New("internal error")
)

// 種類にクライアントへ返してよいメッセージを付ける。errors.Is(Wrap(k, ...), k)は常に真
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// 入力エラー
func Validation(format string, args ...any) error {
	return Wrap(ErrValidation, format, args...)
}

// DBなどインフラ側の失敗。causeはログ用に残すが、レスポンスには出さない
func Internal(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, cause)
}
