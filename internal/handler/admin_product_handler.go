package handler

import (
	"net/http"

	"delivery/internal/middleware"
	"delivery/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /admin/products
type AdminProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewAdminProductHandler(uc *usecase.ProductUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc}
}

// adminを登録
func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, resolver middleware.CurrentUserResolver) {
	admin := e.Group("/admin",
		middleware.AuthJWT(resolver),
		middleware.AdminRoleGuard(),
	)

	admin.POST("/products", h.createProduct)
	admin.PATCH("/products/:id", h.updateProduct)
}

func (h *AdminProductHandler) createProduct(c echo.Context) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}

	var req usecase.AdminCreateProductInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	p, err := h.uc.AdminCreateProduct(c.Request().Context(), admin, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// 送られた項目だけ更新する
func (h *AdminProductHandler) updateProduct(c echo.Context) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req usecase.AdminUpdateProductInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	p, err := h.uc.AdminUpdateProduct(c.Request().Context(), admin, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
