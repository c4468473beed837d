package middleware

import (
	"context"
	"strings"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"

	"github.com/labstack/echo/v4"
)

const CtxCurrentUserKey = "current_user" // *model.User

// CurrentUserResolver はアクセストークンからユーザーを解決する。
// 署名・期限・token_version・退会済みのチェックは実装側で行う
type CurrentUserResolver interface {
	ResolveCurrentUser(ctx context.Context, rawToken string) (*model.User, error)
}

// bearerAuth用のミドルウェア。Authorizationヘッダが無ければ401
func AuthJWT(resolver CurrentUserResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			user, err := resolver.ResolveCurrentUser(c.Request().Context(), rawToken)
			if err != nil {
				return err
			}

			c.Set(CtxCurrentUserKey, user)
			return next(c)
		}
	}
}

// ヘッダが無ければ匿名のまま通す。ヘッダがあって不正なら401
func OptionalAuthJWT(resolver CurrentUserResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return next(c)
			}
			return AuthJWT(resolver)(next)(c)
		}
	}
}

// CurrentUser はAuthJWTが入れたユーザーを返す
func CurrentUser(c echo.Context) (*model.User, bool) {
	u, ok := c.Get(CtxCurrentUserKey).(*model.User)
	return u, ok && u != nil
}

// Bearer形式か確認してtokenを抜く
func bearerToken(c echo.Context) (string, error) {
	authz := c.Request().Header.Get(echo.HeaderAuthorization)
	if authz == "" {
		return "", apperr.ErrMissingToken
	}

	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.ErrInvalidToken
	}
	rawToken := strings.TrimSpace(parts[1])
	if rawToken == "" {
		return "", apperr.ErrMissingToken
	}
	return rawToken, nil
}
