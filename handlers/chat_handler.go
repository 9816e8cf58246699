package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"EquiSaddles/chat"
	"EquiSaddles/redis"
	"EquiSaddles/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 200
)

type PresenceReader interface {
	GetPresence(ctx context.Context) (redis.Presence, error)
}

type ChatHandler struct {
	store    services.SessionStore
	registry *chat.Registry
	presence PresenceReader
	logger   *zap.Logger
}

// NewChatHandler; presence may be nil.
func NewChatHandler(store services.SessionStore, registry *chat.Registry, presence PresenceReader, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{store: store, registry: registry, presence: presence, logger: logger.Named("chat")}
}

type sessionView struct {
	SessionID      string    `json:"sessionId"`
	CustomerName   string    `json:"customerName"`
	CustomerEmail  string    `json:"customerEmail"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Online         bool      `json:"online"`
}

// GetUserSession 根据邮箱查找客户已有会话 (用于邮件中的"继续对话"链接)
func (h *ChatHandler) GetUserSession(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email is required"})
	}
	session, err := h.store.GetSessionByEmail(c.Request().Context(), email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no session found for this email"})
		default:
			h.logger.Error("failed to look up session by email", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch session"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"sessionId":     session.SessionID,
		"customerName":  session.CustomerName,
		"customerEmail": session.CustomerEmail,
	})
}

// ListSessions 管理员获取会话列表
func (h *ChatHandler) ListSessions(c echo.Context) error {
	limit := defaultSessionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = min(n, maxSessionLimit)
	}

	sessions, err := h.store.ListSessions(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch sessions"})
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		_, online := h.registry.CustomerConnection(s.SessionID)
		views = append(views, sessionView{
			SessionID:      s.SessionID,
			CustomerName:   s.CustomerName,
			CustomerEmail:  s.CustomerEmail,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			Online:         online,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": views,
		"total":    len(views),
	})
}

// GetSessionMessages 获取会话历史消息
func (h *ChatHandler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("sessionId")
	messages, err := h.store.ListMessages(c.Request().Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		default:
			h.logger.Error("failed to list messages", zap.String("session_id", sessionID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch messages"})
		}
	}
	return c.JSON(http.StatusOK, chat.NewHistoryPayload(sessionID, messages))
}

// GetOnline reports this instance's live connections and, when redis is
// configured, the presence recorded by every instance.
func (h *ChatHandler) GetOnline(c echo.Context) error {
	customers, admins := h.registry.Counts()
	resp := map[string]interface{}{
		"customers": customers,
		"admins":    admins,
	}
	if h.presence != nil {
		presence, err := h.presence.GetPresence(c.Request().Context())
		if err != nil {
			h.logger.Warn("failed to fetch presence", zap.Error(err))
		} else {
			resp["cluster"] = map[string]int{
				"customers": len(presence.Customers),
				"admins":    len(presence.Admins),
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}
