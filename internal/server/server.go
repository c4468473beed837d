package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"delivery/internal/handler"
	"delivery/internal/middleware"
	"delivery/internal/validator"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Options はルーティング以外のサーバー設定
type Options struct {
	// CORSで許可するオリジン（カンマ区切り）。空ならCORSヘッダを出さない
	AllowOrigins string
	BodyLimit    string
}

// New はミドルウェアとエラーハンドラを設定したechoを作り、ルートを登録する
func New(log *zap.Logger, opts Options, routes Routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Validator = validator.NewRequestValidator()

	// Recover -> RequestID -> ログ の順
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	if opts.AllowOrigins != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     splitOrigins(opts.AllowOrigins),
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, "X-CSRF-Token"},
			AllowCredentials: true,
		}))
	}
	limit := opts.BodyLimit
	if limit == "" {
		limit = "1M"
	}
	e.Use(echomw.BodyLimit(limit))

	routes.register(e)
	return e
}

// Run はctxがキャンセルされるまでサーバーを動かし、その後graceful shutdownする
func Run(ctx context.Context, e *echo.Echo, addr string, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
