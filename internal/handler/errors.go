package handler

import (
	"errors"
	"net/http"
	"strings"

	"delivery/internal/domain/apperr"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SuccessResponse は { message: string } の形
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorHandler はecho.HTTPErrorHandler。handlerとmiddlewareが返したエラーをここでJSONにする
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		_ = writeError(c, log, err)
	}
}

func writeError(c echo.Context, log *zap.Logger, err error) error {
	if err == nil {
		return nil
	}

	// ルーティングの404/405などecho自身のエラー
	var he *echo.HTTPError
	if errors.As(err, &he) && !apperr.Known(err) {
		if he.Code >= http.StatusInternalServerError {
			logInternal(c, log, err)
		}
		return respond(c, he.Code, apperr.ErrorBody{Error: statusCode(he.Code), Message: strings.ToLower(http.StatusText(he.Code))})
	}

	status, body := apperr.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		// 詳細はログにだけ出す
		logInternal(c, log, err)
	}
	return respond(c, status, body)
}

func respond(c echo.Context, status int, body apperr.ErrorBody) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, body)
}

func logInternal(c echo.Context, log *zap.Logger, err error) {
	log.Error("request failed",
		zap.Error(err),
		zap.String("method", c.Request().Method),
		zap.String("path", c.Request().URL.Path),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
	)
}

// 404 -> NOT_FOUND, 405 -> METHOD_NOT_ALLOWED
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "HTTP_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
