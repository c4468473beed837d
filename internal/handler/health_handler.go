package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthCheck は依存先1つの疎通確認
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks   map[string]HealthCheck
	optional map[string]HealthCheck
	log      *zap.Logger
}

// optionalは落ちていてもサービスを続けられる依存先（ログイン制限のredisなど）
func NewHealthHandler(checks, optional map[string]HealthCheck, log *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, optional: optional, log: log}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
}

// 必須の依存先が1つでも落ちていたら503。optionalだけならdegradedで200
func (h *HealthHandler) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: map[string]string{}}
	for _, name := range sortedNames(h.checks) {
		if err := h.checks[name](ctx); err != nil {
			h.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			res.Status = "unavailable"
			res.Checks[name] = "down"
			continue
		}
		res.Checks[name] = "up"
	}
	for _, name := range sortedNames(h.optional) {
		if err := h.optional[name](ctx); err != nil {
			h.log.Warn("optional health check failed", zap.String("check", name), zap.Error(err))
			if res.Status == "ok" {
				res.Status = "degraded"
			}
			res.Checks[name] = "degraded"
			continue
		}
		res.Checks[name] = "up"
	}

	if res.Status == "unavailable" {
		return c.JSON(http.StatusServiceUnavailable, res)
	}
	return c.JSON(http.StatusOK, res)
}

func sortedNames(checks map[string]HealthCheck) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
