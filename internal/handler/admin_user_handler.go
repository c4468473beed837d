package handler

import (
	"net/http"

	"delivery/internal/middleware"
	auth "delivery/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type AdminUserHandler struct {
	creds *auth.CredentialStore
	log   *zap.Logger
}

func NewAdminUserHandler(creds *auth.CredentialStore, log *zap.Logger) *AdminUserHandler {
	return &AdminUserHandler{creds: creds, log: log}
}

func (h *AdminUserHandler) RegisterRoutes(e *echo.Echo, resolver middleware.CurrentUserResolver) {
	// /admin 配下は全部「JWT必須 + ADMIN限定」
	admin := e.Group("/admin",
		middleware.AuthJWT(resolver),
		middleware.AdminRoleGuard(),
	)

	admin.POST("/users/:id/force-logout", h.forceLogout)
}

// token_versionを上げて、対象ユーザーの発行済みトークンを全部無効にする
func (h *AdminUserHandler) forceLogout(c echo.Context) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	res, err := h.creds.ForceLogout(c.Request().Context(), admin, userID)
	if err != nil {
		return err
	}

	h.log.Info("force logout",
		zap.Int64("admin_id", admin.ID),
		zap.Int64("user_id", res.UserID),
		zap.Int("token_version", res.NewTokenVersion),
	)
	return c.JSON(http.StatusOK, res)
}
