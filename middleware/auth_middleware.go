package middleware

import (
	"errors"
	"net/http"
	"strings"

	"EquiSaddles/models"
	"EquiSaddles/services"

	"github.com/labstack/echo/v4"
)

const adminContextKey = "admin"

// AdminAuthMiddleware accepts a bearer token from the Authorization header or,
// for WebSocket upgrades, the token query parameter.
func AdminAuthMiddleware(authService *services.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			var tokenString string
			if authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error": "invalid authorization header",
					})
				}
				tokenString = parts[1]
			} else {
				tokenString = c.QueryParam("token")
				if tokenString == "" {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error": "missing authorization token",
					})
				}
				tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "invalid token",
				})
			}
			admin, err := authService.GetAdmin(c.Request().Context(), claims.AdminID)
			if err != nil {
				if errors.Is(err, services.ErrInvalidCredentials) {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error": "admin not found",
					})
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{
					"error": "failed to load admin",
				})
			}

			c.Set(adminContextKey, admin)
			return next(c)
		}
	}
}

// CurrentAdmin returns the admin set by AdminAuthMiddleware.
func CurrentAdmin(c echo.Context) (*models.AdminUser, bool) {
	admin, ok := c.Get(adminContextKey).(*models.AdminUser)
	return admin, ok
}
