package handler

import (
	"strconv"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	"delivery/internal/middleware"

	"github.com/labstack/echo/v4"
)

// middleware.AuthJWTが入れたユーザーを取り出す
func currentUser(c echo.Context) (*model.User, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, apperr.ErrMissingToken
	}
	return u, nil
}

// パスの:idなど。数値でなければ400
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return id, nil
}

// 無ければ0（usecase側で既定値にする）
func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

func queryInt64Ptr(c echo.Context, name string) (*int64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Validation("%s must be an integer", name)
	}
	return &n, nil
}

// bodyを読み取ってvalidateタグを検証する
func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("request body is not valid JSON")
	}
	return c.Validate(dst)
}
