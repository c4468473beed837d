package server

import (
	"delivery/internal/handler"
	"delivery/internal/middleware"

	"github.com/labstack/echo/v4"
)

// Routes はecho に登録するhandler一式
type Routes struct {
	Resolver     middleware.CurrentUserResolver
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Products     *handler.ProductHandler
	Orders       *handler.OrderHandler
	AdminOrders  *handler.AdminOrderHandler
	AdminProduct *handler.AdminProductHandler
	AdminUsers   *handler.AdminUserHandler
}

func (r Routes) register(e *echo.Echo) {
	r.Health.RegisterRoutes(e)
	r.Auth.RegisterRoutes(e)
	r.Products.RegisterRoutes(e)
	r.Orders.RegisterRoutes(e, r.Resolver)
	r.AdminOrders.RegisterRoutes(e, r.Resolver)
	r.AdminProduct.RegisterRoutes(e, r.Resolver)
	r.AdminUsers.RegisterRoutes(e, r.Resolver)
}
