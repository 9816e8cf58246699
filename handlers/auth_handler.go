package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"EquiSaddles/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const oauthStateCookie = "oauth_state"

type AuthHandler struct {
	authService  *services.AuthService
	oauthService *services.OAuthService
	publicURL    string
	logger       *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, oauthService *services.OAuthService, publicURL string, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		authService:  authService,
		oauthService: oauthService,
		publicURL:    publicURL,
		logger:       logger.Named("auth"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password are required"})
	}
	admin, err := h.authService.LoginLocal(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
		default:
			h.logger.Error("login failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "login failed"})
		}
	}
	tokens, err := h.authService.GenerateTokens(admin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to generate tokens"})
	}
	return c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "refresh_token is required"})
	}
	tokens, err := h.authService.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to refresh token"})
		}
	}
	return c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) GetProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"providers": h.oauthService.GetAvailableProviders(),
	})
}

// OAuthLogin redirects to the provider; state is kept in a short-lived cookie.
func (h *AuthHandler) OAuthLogin(c echo.Context) error {
	provider := c.Param("provider")
	state, err := randomState()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to start oauth"})
	}
	authURL, err := h.oauthService.GetAuthURL(provider, state)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
	return c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// OAuthCallback hands the tokens to the back office in the URL fragment.
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	provider := c.Param("provider")
	cookie, err := c.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != c.QueryParam("state") {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid oauth state"})
	}
	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing code"})
	}

	ctx := c.Request().Context()
	token, err := h.oauthService.ExchangeCode(ctx, provider, code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", zap.String("provider", provider), zap.Error(err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to exchange code"})
	}
	info, err := h.oauthService.GetUserInfo(ctx, provider, token)
	if err != nil {
		h.logger.Warn("oauth user info failed", zap.String("provider", provider), zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to fetch user info"})
	}
	admin, err := h.authService.FindOrCreateOAuthAdmin(ctx, info)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotAdmin):
			return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
		default:
			h.logger.Error("oauth admin lookup failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "login failed"})
		}
	}
	tokens, err := h.authService.GenerateTokens(admin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to generate tokens"})
	}

	c.SetCookie(&http.Cookie{Name: oauthStateCookie, Path: "/", MaxAge: -1})
	fragment := url.Values{
		"access_token":  {tokens.AccessToken},
		"refresh_token": {tokens.RefreshToken},
		"expires_in":    {strconv.Itoa(tokens.ExpiresIn)},
	}
	return c.Redirect(http.StatusFound, h.publicURL+"/admin/login#"+fragment.Encode())
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
