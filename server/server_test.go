package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"EquiSaddles/config"
	"EquiSaddles/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, redisAddr string) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.PublicURL = "https://equisaddles.com"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "server.db")
	cfg.Auth.JWTSecret = "secret"
	cfg.Auth.TokenExpiry = 1
	cfg.Auth.RefreshExpiry = 2
	cfg.Redis.Addr = redisAddr

	db, err := OpenDB(cfg.Database)
	require.NoError(t, err)
	s, err := NewServer(cfg, db, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func do(s *Server, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestServerOpsEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	rec := do(s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"database":"ok"}`, rec.Body.String())

	rec = do(s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "equisaddles_chat_connected_customers")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServerAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, "")

	rec := do(s, http.MethodGet, "/api/v1/admin/chat/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := s.AuthService.CreateAdmin(context.Background(), "owner@equisaddles.com", "Owner", "pw")
	require.NoError(t, err)
	rec = do(s, http.MethodPost, "/api/v1/auth/login", `{"email":"owner@equisaddles.com","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))

	rec = do(s, http.MethodGet, "/api/v1/admin/chat/sessions", "", tokens.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":[],"total":0}`, rec.Body.String())

	// no Brevo key configured
	rec = do(s, http.MethodPost, "/api/v1/admin/test-email", `{}`, tokens.AccessToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestServer(t, mr.Addr())

	rec := do(s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"database":"ok","redis":"ok"}`, rec.Body.String())

	form := `{"name":"Bob","email":"bob@example","subject":"Fit","message":"Hi"}`
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/api/v1/contact", form, "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodPost, "/api/v1/contact", form, "").Code)

	mr.Close()
	rec = do(s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
