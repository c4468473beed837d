package handler

import (
	"net/http"

	"delivery/internal/middleware"
	"delivery/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /admin/orders と /admin/audit-logs
type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, resolver middleware.CurrentUserResolver) {
	admin := e.Group("/admin",
		middleware.AuthJWT(resolver),
		middleware.AdminRoleGuard(),
	)

	admin.GET("/orders", h.list)
	admin.GET("/audit-logs", h.auditLogs)
}

// status, user_id, from, to(RFC3339)で絞り込み
func (h *AdminOrderHandler) list(c echo.Context) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	page, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	userID, err := queryInt64Ptr(c, "user_id")
	if err != nil {
		return err
	}

	out, err := h.uc.List(c.Request().Context(), admin, usecase.AdminOrderListInput{
		Page:   page,
		Limit:  limit,
		Status: c.QueryParam("status"),
		UserID: userID,
		From:   c.QueryParam("from"),
		To:     c.QueryParam("to"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) auditLogs(c echo.Context) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	actorID, err := queryInt64Ptr(c, "actor_user_id")
	if err != nil {
		return err
	}
	resourceID, err := queryInt64Ptr(c, "resource_id")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return err
	}

	logs, err := h.uc.ListAuditLogs(c.Request().Context(), admin, usecase.AuditLogListInput{
		ActorUserID:  actorID,
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   resourceID,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, logs)
}
