package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"EquiSaddles/chat"
	custommiddleware "EquiSaddles/middleware"
	"EquiSaddles/redis"
	"EquiSaddles/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	sendBufferSize = 256
	pingPeriod     = 54 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxFrameSize   = 16 << 10
)

// PresenceTracker mirrors live connections into shared storage so every
// server instance can report who is online.
type PresenceTracker interface {
	MarkAdminOnline(ctx context.Context, connID string, info redis.PresenceInfo) error
	MarkCustomerOnline(ctx context.Context, connID string, info redis.PresenceInfo) error
	MarkOffline(ctx context.Context, connID string) error
}

// inboundFrame 客户端发来的消息
type inboundFrame struct {
	Type      string `json:"type"` // join, message
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Body      string `json:"body"`
}

// wsConn adapts a gorilla connection to chat.Conn. Payloads are queued and
// written by writePump; a full queue counts as a dead connection.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	send   chan chat.Payload
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsConn{
		id:     uuid.New().String(),
		ws:     ws,
		send:   make(chan chat.Payload, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(p chat.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return chat.ErrConnectionClosed
	}
	select {
	case c.send <- p:
		return nil
	default:
		return chat.ErrConnectionClosed
	}
}

// Close stops the write pump, which closes the socket and so ends the read pump.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.cancel()
	}
	return nil
}

type ChatWebSocketHandler struct {
	relay    *chat.Relay
	presence PresenceTracker
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewChatWebSocketHandler accepts any origin when allowOrigins is empty.
// presence may be nil.
func NewChatWebSocketHandler(relay *chat.Relay, presence PresenceTracker, allowOrigins []string, logger *zap.Logger) *ChatWebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatWebSocketHandler{
		relay:    relay,
		presence: presence,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(allowOrigins)},
		logger:   logger.Named("ws"),
	}
}

func originChecker(allowOrigins []string) func(r *http.Request) bool {
	if len(allowOrigins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

// HandleCustomer serves the storefront chat widget. The customer is bound
// on the first join frame, or immediately when sessionId/email are given
// in the query string.
func (h *ChatWebSocketHandler) HandleCustomer(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := newWSConn(ws)
	go h.writePump(conn)

	state := &customerState{
		sessionID: c.QueryParam("sessionId"),
		name:      c.QueryParam("name"),
		email:     c.QueryParam("email"),
	}
	ctx := c.Request().Context()
	if state.sessionID != "" || state.email != "" {
		h.join(ctx, conn, state)
	}

	h.readPump(conn, func(frame inboundFrame) {
		switch frame.Type {
		case "join":
			state.merge(frame)
			h.join(ctx, conn, state)
		case chat.PayloadMessage:
			state.merge(frame)
			res, err := h.relay.Handle(ctx, chat.CustomerMessage{
				Conn:      conn,
				SessionID: state.sessionID,
				Name:      state.name,
				Email:     state.email,
				Body:      frame.Body,
			})
			if res.SessionID != "" && res.SessionID != state.sessionID {
				state.sessionID = res.SessionID
				h.markCustomer(conn, state)
			}
			h.reportError(conn, state.sessionID, err)
		default:
			h.reportError(conn, state.sessionID, errUnknownFrame)
		}
	})
	return nil
}

// HandleAdmin serves the back office chat tab; AdminAuthMiddleware runs first.
func (h *ChatWebSocketHandler) HandleAdmin(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := newWSConn(ws)
	go h.writePump(conn)

	ctx := c.Request().Context()
	_, _ = h.relay.Handle(ctx, chat.AdminConnected{Conn: conn})
	if h.presence != nil {
		info := redis.PresenceInfo{ConnectedAt: time.Now().UTC()}
		if admin, ok := custommiddleware.CurrentAdmin(c); ok {
			info.Name, info.Email = admin.Name, admin.Email
		}
		if err := h.presence.MarkAdminOnline(ctx, conn.ID(), info); err != nil {
			h.logger.Warn("failed to record admin presence", zap.Error(err))
		}
	}

	h.readPump(conn, func(frame inboundFrame) {
		if frame.Type != chat.PayloadMessage {
			h.reportError(conn, frame.SessionID, errUnknownFrame)
			return
		}
		_, err := h.relay.Handle(ctx, chat.AdminMessage{
			Conn:      conn,
			SessionID: frame.SessionID,
			Body:      frame.Body,
		})
		h.reportError(conn, frame.SessionID, err)
	})
	return nil
}

type customerState struct {
	sessionID string
	name      string
	email     string
}

func (s *customerState) merge(frame inboundFrame) {
	if frame.SessionID != "" {
		s.sessionID = frame.SessionID
	}
	if frame.Name != "" {
		s.name = frame.Name
	}
	if frame.Email != "" {
		s.email = frame.Email
	}
}

func (h *ChatWebSocketHandler) join(ctx context.Context, conn *wsConn, state *customerState) {
	res, err := h.relay.Handle(ctx, chat.CustomerConnected{
		Conn:      conn,
		SessionID: state.sessionID,
		Name:      state.name,
		Email:     state.email,
	})
	if res.SessionID != "" {
		state.sessionID = res.SessionID
		h.markCustomer(conn, state)
	}
	h.reportError(conn, state.sessionID, err)
}

func (h *ChatWebSocketHandler) markCustomer(conn *wsConn, state *customerState) {
	if h.presence == nil {
		return
	}
	err := h.presence.MarkCustomerOnline(context.Background(), conn.ID(), redis.PresenceInfo{
		SessionID:   state.sessionID,
		Name:        state.name,
		Email:       state.email,
		ConnectedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Warn("failed to record customer presence", zap.Error(err))
	}
}

var errUnknownFrame = errors.New("unknown message type")

// reportError tells the client what went wrong with its last frame.
func (h *ChatWebSocketHandler) reportError(conn *wsConn, sessionID string, err error) {
	if err == nil {
		return
	}
	var perr *services.PersistenceError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		err = services.ErrSessionNotFound
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, errUnknownFrame):
	case errors.As(err, &perr):
		h.logger.Error("chat persistence failure", zap.String("session_id", sessionID), zap.Error(err))
		err = errors.New("message could not be saved, please try again")
	default:
		h.logger.Error("chat event failed", zap.String("session_id", sessionID), zap.Error(err))
		err = errors.New("internal error")
	}
	_ = conn.Send(chat.NewErrorPayload(sessionID, err))
}

// 读取客户端消息
func (h *ChatWebSocketHandler) readPump(conn *wsConn, handle func(inboundFrame)) {
	defer func() {
		_, _ = h.relay.Handle(context.Background(), chat.ConnectionClosed{Conn: conn})
		if h.presence != nil {
			if err := h.presence.MarkOffline(context.Background(), conn.ID()); err != nil {
				h.logger.Warn("failed to clear presence", zap.Error(err))
			}
		}
		_ = conn.Close()
		_ = conn.ws.Close()
	}()

	conn.ws.SetReadLimit(maxFrameSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := conn.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			if isDecodeError(err) {
				h.reportError(conn, "", errUnknownFrame)
				continue
			}
			return
		}
		handle(frame)
	}
}

// isDecodeError reports a well-formed frame with a bad JSON body; the
// connection itself is still usable.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// 向客户端写入消息
func (h *ChatWebSocketHandler) writePump(conn *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case <-conn.ctx.Done():
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteJSON(payload); err != nil {
				h.logger.Debug("websocket write error", zap.String("conn_id", conn.ID()), zap.Error(err))
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
