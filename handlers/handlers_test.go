package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"EquiSaddles/chat"
	"EquiSaddles/config"
	"EquiSaddles/models"
	"EquiSaddles/notify"
	"EquiSaddles/redis"
	"EquiSaddles/services"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "handlers.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrateAll(db))
	return db
}

type countingNotifier struct {
	mu       sync.Mutex
	admin    int
	customer int
	contact  int
	err      error
}

func (n *countingNotifier) NotifyAdminOfCustomerMessage(context.Context, string, string, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin++
	return n.err
}

func (n *countingNotifier) NotifyCustomerOfAdminReply(context.Context, string, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.customer++
	return n.err
}

func (n *countingNotifier) SendContactForm(context.Context, string, string, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contact++
	return n.err
}

func (n *countingNotifier) Enabled() bool { return true }

func (n *countingNotifier) counts() (admin, customer int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.admin, n.customer
}

type wsFixture struct {
	srv      *httptest.Server
	store    *services.GormSessionStore
	registry *chat.Registry
	notifier *countingNotifier
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	f := &wsFixture{
		store:    services.NewGormSessionStore(newTestDB(t)),
		registry: chat.NewRegistry(),
		notifier: &countingNotifier{},
	}
	relay := chat.NewRelay(f.store, f.registry, f.notifier, nil)
	h := NewChatWebSocketHandler(relay, nil, nil, nil)

	e := echo.New()
	e.GET("/ws/chat", h.HandleCustomer)
	e.GET("/admin/ws", h.HandleAdmin)
	f.srv = httptest.NewServer(e)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestWebSocketConversation(t *testing.T) {
	f := newWSFixture(t)

	customer := f.dial(t, "/ws/chat")
	require.NoError(t, customer.WriteJSON(map[string]string{"type": "join", "name": "Alice", "email": "alice@example.com"}))
	session := readFrame(t, customer)
	assert.Equal(t, "session", session["type"])
	sessionID, _ := session["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	admin := f.dial(t, "/admin/ws")
	require.Eventually(t, func() bool {
		_, admins := f.registry.Counts()
		return admins == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, customer.WriteJSON(map[string]string{"type": "message", "body": "Hello, is this saddle still available?"}))
	msg := readFrame(t, admin)
	assert.Equal(t, "message", msg["type"])
	assert.Equal(t, "customer", msg["sender"])
	assert.Equal(t, sessionID, msg["sessionId"])
	assert.Equal(t, "alice@example.com", msg["customerEmail"])

	require.NoError(t, admin.WriteJSON(map[string]string{"type": "message", "sessionId": sessionID, "body": "Yes, it's available!"}))
	reply := readFrame(t, customer)
	assert.Equal(t, "admin", reply["sender"])
	assert.Equal(t, "Yes, it's available!", reply["body"])

	adminCalls, customerCalls := f.notifier.counts()
	assert.Zero(t, adminCalls)
	assert.Zero(t, customerCalls)

	messages, err := f.store.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestWebSocketAdminReplyToUnknownSession(t *testing.T) {
	f := newWSFixture(t)
	admin := f.dial(t, "/admin/ws")

	require.NoError(t, admin.WriteJSON(map[string]string{"type": "message", "sessionId": "missing", "body": "Hi"}))
	frame := readFrame(t, admin)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, services.ErrSessionNotFound.Error(), frame["error"])
	assert.Equal(t, "missing", frame["sessionId"])
}

func TestWebSocketRejectsUnknownFrames(t *testing.T) {
	f := newWSFixture(t)
	customer := f.dial(t, "/ws/chat")

	require.NoError(t, customer.WriteJSON(map[string]string{"type": "typing"}))
	assert.Equal(t, errUnknownFrame.Error(), readFrame(t, customer)["error"])

	require.NoError(t, customer.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, errUnknownFrame.Error(), readFrame(t, customer)["error"])

	require.NoError(t, customer.WriteJSON(map[string]string{"type": "message", "body": "  "}))
	assert.Equal(t, chat.ErrEmptyMessage.Error(), readFrame(t, customer)["error"])
}

func TestWebSocketResumeFromEmailLink(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()
	session, err := f.store.GetOrCreateSession(ctx, "sess-1", "Alice", "alice@example.com")
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, session.SessionID, models.SenderCustomer, "Hello")
	require.NoError(t, err)

	customer := f.dial(t, "/ws/chat?email=alice%40example.com")
	assert.Equal(t, "sess-1", readFrame(t, customer)["sessionId"])
	history := readFrame(t, customer)
	assert.Equal(t, "history", history["type"])
	assert.Len(t, history["messages"], 1)
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	f := newWSFixture(t)
	customer := f.dial(t, "/ws/chat?sessionId=sess-1")
	readFrame(t, customer)
	require.Eventually(t, func() bool {
		customers, _ := f.registry.Counts()
		return customers == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, customer.Close())
	require.Eventually(t, func() bool {
		customers, _ := f.registry.Counts()
		return customers == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSConnSendFailsWhenFullOrClosed(t *testing.T) {
	conn := newWSConn(nil)
	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, conn.Send(chat.NewSessionPayload("s", "", "")))
	}
	assert.ErrorIs(t, conn.Send(chat.NewSessionPayload("s", "", "")), chat.ErrConnectionClosed)

	conn = newWSConn(nil)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Send(chat.NewSessionPayload("s", "", "")), chat.ErrConnectionClosed)
	assert.Error(t, conn.ctx.Err())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://equisaddles.com/"})
	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://EquiSaddles.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}

type stubPresence struct {
	presence redis.Presence
}

func (s stubPresence) GetPresence(context.Context) (redis.Presence, error) { return s.presence, nil }

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestChatHandler(t *testing.T) {
	store := services.NewGormSessionStore(newTestDB(t))
	registry := chat.NewRegistry()
	ctx := context.Background()
	_, err := store.GetOrCreateSession(ctx, "sess-1", "Alice", "alice@example.com")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, "sess-1", models.SenderCustomer, "Hello")
	require.NoError(t, err)
	_, err = store.GetOrCreateSession(ctx, "sess-2", "Bob", "bob@example.com")
	require.NoError(t, err)

	presence := stubPresence{presence: redis.Presence{
		Admins:    map[string]redis.PresenceInfo{"a": {}},
		Customers: map[string]redis.PresenceInfo{"c1": {}, "c2": {}},
	}}
	h := NewChatHandler(store, registry, presence, nil)
	e := echo.New()
	e.GET("/chat/user-session", h.GetUserSession)
	e.GET("/sessions", h.ListSessions)
	e.GET("/sessions/:sessionId/messages", h.GetSessionMessages)
	e.GET("/online", h.GetOnline)

	rec := serve(e, http.MethodGet, "/chat/user-session", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(e, http.MethodGet, "/chat/user-session?email=nobody@example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(e, http.MethodGet, "/chat/user-session?email=ALICE@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessionId":"sess-1","customerName":"Alice","customerEmail":"alice@example.com"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/sessions?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []sessionView `json:"sessions"`
		Total    int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "sess-2", list.Sessions[0].SessionID)
	rec = serve(e, http.MethodGet, "/sessions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodGet, "/sessions/sess-1/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history chat.HistoryPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "Hello", history.Messages[0].Body)
	rec = serve(e, http.MethodGet, "/sessions/missing/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, http.MethodGet, "/online", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"customers":0,"admins":0,"cluster":{"customers":2,"admins":1}}`, rec.Body.String())
}

func TestContactHandler(t *testing.T) {
	mailer := &countingNotifier{}
	h := NewContactHandler(mailer, nil)
	e := echo.New()
	e.POST("/contact", h.SubmitContactForm)
	e.POST("/test-email", h.SendTestEmail)

	rec := serve(e, http.MethodPost, "/contact", `{"name":"Bob","email":"bob@example.com","subject":"","message":"Hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(e, http.MethodPost, "/contact", `{"name":"Bob","email":"bob@example","subject":"Fit","message":"Hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email format")

	rec = serve(e, http.MethodPost, "/contact", `{"name":"Bob","email":"bob@example.com","subject":"Fit","message":"Hi"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mailer.contact)

	rec = serve(e, http.MethodPost, "/test-email", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mailer.admin)

	mailer.err = notify.ErrMailDisabled
	rec = serve(e, http.MethodPost, "/contact", `{"name":"Bob","email":"bob@example.com","subject":"Fit","message":"Hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthHandler(t *testing.T) {
	db := newTestDB(t)
	authCfg := &config.AuthConfig{JWTSecret: "secret", TokenExpiry: 1, RefreshExpiry: 2}
	authService := services.NewAuthService(db, authCfg)
	_, err := authService.CreateAdmin(context.Background(), "owner@equisaddles.com", "Owner", "pw")
	require.NoError(t, err)

	h := NewAuthHandler(authService, services.NewOAuthService(authCfg), "https://equisaddles.com", nil)
	e := echo.New()
	e.POST("/login", h.Login)
	e.POST("/refresh", h.RefreshToken)
	e.GET("/providers", h.GetProviders)
	e.GET("/oauth/:provider", h.OAuthLogin)
	e.GET("/oauth/:provider/callback", h.OAuthCallback)

	rec := serve(e, http.MethodPost, "/login", `{"email":"owner@equisaddles.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodPost, "/login", `{"email":"owner@equisaddles.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.NotEmpty(t, tokens.RefreshToken)

	rec = serve(e, http.MethodPost, "/refresh", `{"refresh_token":"`+tokens.RefreshToken+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(e, http.MethodPost, "/refresh", `{"refresh_token":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/providers", "")
	assert.JSONEq(t, `{"providers":[]}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/oauth/google", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodGet, "/oauth/google/callback?state=x&code=y", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid oauth state")
}
