package handler

import (
	"net/http"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	"delivery/internal/middleware"
	"delivery/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 所有者チェックはusecaseに任せる。handlerはユーザーとパラメータを渡すだけ
type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

type orderStatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, resolver middleware.CurrentUserResolver) {
	g := e.Group("/orders", middleware.AuthJWT(resolver))

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.PATCH("/:id/status", h.updateStatus)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/items", h.addItem)
	g.DELETE("/:id/items/:item_id", h.removeItem)

	e.GET("/users/:id/orders", h.listByUser, middleware.AuthJWT(resolver))
}

func (h *OrderHandler) create(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req usecase.CreateOrderInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	out, err := h.uc.CreateOrder(c.Request().Context(), user, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	page, limit, err := pageParams(c)
	if err != nil {
		return err
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), user, page, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) listByUser(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	page, limit, err := pageParams(c)
	if err != nil {
		return err
	}

	out, err := h.uc.ListUserOrders(c.Request().Context(), user, userID, page, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	out, err := h.uc.GetOrder(c.Request().Context(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// bodyの検証はusecaseの所有者チェックの後（他人の注文には常に403）
func (h *OrderHandler) updateStatus(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req orderStatusUpdateRequest
	if err := h.bindOwned(c, user, id, &req); err != nil {
		return err
	}

	out, err := h.uc.UpdateOrderStatus(c.Request().Context(), user, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// 本文が壊れていても、他人の注文なら400より先に403を返す
func (h *OrderHandler) bindOwned(c echo.Context, user *model.User, orderID int64, dst any) error {
	if err := c.Bind(dst); err != nil {
		if _, err := h.uc.GetOrder(c.Request().Context(), user, orderID); err != nil {
			return err
		}
		return apperr.Validation("request body is not valid JSON")
	}
	return nil
}

func (h *OrderHandler) delete(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.uc.DeleteOrder(c.Request().Context(), user, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *OrderHandler) addItem(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req usecase.OrderItemInput
	if err := h.bindOwned(c, user, id, &req); err != nil {
		return err
	}

	out, err := h.uc.AddItem(c.Request().Context(), user, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) removeItem(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := pathID(c, "item_id")
	if err != nil {
		return err
	}

	out, err := h.uc.RemoveItem(c.Request().Context(), user, id, itemID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func pageParams(c echo.Context) (int, int, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}
