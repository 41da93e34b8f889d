package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
)

func recoverMiddleware(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panicked",
						slog.String("panic", fmt.Sprint(r)),
						slog.String("path", c.Request().URL.Path),
						slog.String("stack", string(debug.Stack())))
					_ = c.JSON(http.StatusInternalServerError, errorBody{Message: "internal server error"})
				}
			}()
			return next(c)
		}
	}
}

func requestLogging(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			log.Debug("http request",
				slog.String("method", req.Method),
				slog.String("uri", req.RequestURI),
				slog.Int("status", c.Response().Status),
				slog.Duration("latency", time.Since(start)))
			return nil
		}
	}
}
