package middleware

import (
	"net/http"
	"time"

	"EquiSaddles/limiter"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	Name    string                      // key namespace, e.g. "contact"
	Limit   int                         // 限制次数
	Window  time.Duration               // 时间窗口
	KeyFunc func(c echo.Context) string // 自定义 Key 生成器, defaults to the client IP
	Logger  *zap.Logger
}

// NewRateLimitMiddleware rejects with 429 once the limit is reached. A nil
// manager disables limiting, and redis errors fail open.
func NewRateLimitMiddleware(manager *limiter.Manager, config RateLimitConfig) echo.MiddlewareFunc {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if manager == nil {
			return next
		}
		return func(c echo.Context) error {
			var key string
			if config.KeyFunc != nil {
				key = config.KeyFunc(c)
			}
			if key == "" {
				key = c.RealIP()
			}

			allowed, err := manager.Allow(c.Request().Context(), config.Name+":"+key, config.Limit, config.Window)
			if err != nil {
				logger.Error("rate limit redis error", zap.String("limiter", config.Name), zap.Error(err))
				return next(c)
			}
			if !allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "too many requests",
				})
			}
			return next(c)
		}
	}
}
