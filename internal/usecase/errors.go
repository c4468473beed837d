package usecase

import (
	"errors"

	"delivery/internal/domain/apperr"
	repo "delivery/internal/repository"
)

// storageErr はrepositoryのエラーをアプリのエラーに変換する。
// 分類済みのエラーはそのまま返す
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case apperr.Known(err):
		return err
	case errors.Is(err, repo.ErrNotFound):
		return apperr.ErrNotFound
	case errors.Is(err, repo.ErrConflict):
		return apperr.Wrap(apperr.ErrConflict, "the resource was modified concurrently, retry the request")
	case errors.Is(err, repo.ErrDuplicate):
		return apperr.Wrap(apperr.ErrConflict, "duplicate resource")
	}
	return apperr.Internal(op, err)
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// page/limitを補正する。0は既定値、負数やlimit超過はエラー
func normalizePage(page, limit int) (int, int, error) {
	if page < 0 {
		return 0, 0, apperr.Validation("page must be 1 or more")
	}
	if limit < 0 || limit > maxPageLimit {
		return 0, 0, apperr.Validation("limit must be between 1 and %d", maxPageLimit)
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	return page, limit, nil
}
