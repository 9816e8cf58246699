package middleware

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// RequestLogger writes one access log line per request. WebSocket upgrades
// are logged when the connection ends.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	logger = logger.Named("http")
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.RequestID != "" {
				fields = append(fields, zap.String("request_id", v.RequestID))
			}
			switch {
			case v.Error != nil:
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
			case v.Status >= 500:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
			return nil
		},
	})
}
