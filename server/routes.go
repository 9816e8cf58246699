package server

import (
	"time"

	custommiddleware "EquiSaddles/middleware"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetupRoutes(adminMiddleware echo.MiddlewareFunc) {
	e := s.Echo
	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))

	// 客户聊天窗口
	e.GET("/ws/chat", s.ChatWebSocketHandler.HandleCustomer)

	api := e.Group("/api/v1")
	// Auth routes (unprotected)
	auth := api.Group("/auth")
	{
		auth.GET("/providers", s.AuthHandler.GetProviders)
		auth.POST("/login", s.AuthHandler.Login, s.rateLimit("login", 10, time.Minute))
		auth.POST("/refresh", s.AuthHandler.RefreshToken)
		auth.GET("/oauth/:provider", s.AuthHandler.OAuthLogin)
		auth.GET("/oauth/:provider/callback", s.AuthHandler.OAuthCallback)
	}
	// 公开路由
	api.GET("/chat/user-session", s.ChatHandler.GetUserSession)
	api.POST("/contact", s.ContactHandler.SubmitContactForm, s.rateLimit("contact", 5, time.Hour))

	// 需要管理员权限
	admin := api.Group("/admin")
	admin.Use(adminMiddleware)
	{
		admin.GET("/chat/ws", s.ChatWebSocketHandler.HandleAdmin)
		admin.GET("/chat/sessions", s.ChatHandler.ListSessions)
		admin.GET("/chat/sessions/:sessionId/messages", s.ChatHandler.GetSessionMessages)
		admin.GET("/chat/online", s.ChatHandler.GetOnline)
		admin.POST("/test-email", s.ContactHandler.SendTestEmail, s.rateLimit("test-email", 10, time.Hour))
	}
}

func (s *Server) rateLimit(name string, limit int, window time.Duration) echo.MiddlewareFunc {
	return custommiddleware.NewRateLimitMiddleware(s.limiter, custommiddleware.RateLimitConfig{
		Name:   name,
		Limit:  limit,
		Window: window,
		Logger: s.Logger,
	})
}
