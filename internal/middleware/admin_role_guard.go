package middleware

import (
	"delivery/internal/domain/apperr"

	"github.com/labstack/echo/v4"
)

// AuthJWTの後ろで使う。USERは拒否、ADMINだけ許可
func AdminRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return apperr.ErrMissingToken
			}
			if !user.IsAdmin() {
				return apperr.Wrap(apperr.ErrForbidden, "admin only")
			}
			return next(c)
		}
	}
}
