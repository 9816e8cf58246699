package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigJSONDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"database": {"dsn": "postgres://localhost/equi"},
		"auth": {"jwt_secret": "s3cret"},
		"mail": {"timeout": "2s"}
	}`)
	for _, key := range []string{"PORT", "PUBLIC_URL", "KAFKA_BROKERS", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "https://equisaddles.com", cfg.Server.PublicURL)
	assert.Equal(t, "chat.events", cfg.Kafka.Topic)
	assert.Equal(t, "equisaddles@gmail.com", cfg.Mail.AdminEmail)
	assert.Equal(t, 2*time.Second, cfg.Mail.Timeout.Std())
	assert.Equal(t, 12, cfg.Auth.TokenExpiry)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadConfigYAMLWithEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
database:
  dsn: postgres://file/equi
auth:
  jwt_secret: from-file
  admin_emails: ["Owner@EquiSaddles.com"]
server:
  public_url: https://shop.example.com/
`)
	t.Setenv("DATABASE_URL", "postgres://env/equi")
	t.Setenv("BREVO_API_KEY", "xkeysib-123")
	t.Setenv("PORT", "8081")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/equi", cfg.Database.DSN)
	assert.Equal(t, "xkeysib-123", cfg.Mail.APIKey)
	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, "https://shop.example.com", cfg.Server.PublicURL)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Mail.Timeout.Std())
	assert.True(t, cfg.Auth.IsAdminEmail(" owner@equisaddles.com"))
	assert.False(t, cfg.Auth.IsAdminEmail("alice@example.com"))
}

func TestLoadConfigValidation(t *testing.T) {
	path := writeFile(t, "config.json", `{"database": {"driver": "mysql"}, "kafka": {"enabled": true}}`)
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn is required")
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
	assert.Contains(t, err.Error(), "kafka.brokers is required")
	assert.Contains(t, err.Error(), `database.driver "mysql" is not supported`)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
