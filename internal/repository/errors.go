package repository

import "errors"

var (
	// 対象が存在しない
	ErrNotFound = errors.New("not found")
	// unique制約違反
	ErrDuplicate = errors.New("duplicate key")
	// 条件付き更新で0件（別リクエストが先に更新した）
	ErrConflict = errors.New("concurrent update")
)
