package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"EquiSaddles/config"
	"EquiSaddles/models"
	"EquiSaddles/server"
	"EquiSaddles/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) (string, config.DatabaseConfig) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "KAFKA_BROKERS", "REDIS_ADDR", "BREVO_API_KEY"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	db := config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(dir, "cli.db")}
	path := filepath.Join(dir, "config.yaml")
	content := "database:\n  driver: sqlite\n  dsn: " + db.DSN + "\nauth:\n  jwt_secret: secret\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, db
}

func run(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestMigrateAndCreateAdmin(t *testing.T) {
	path, dbCfg := writeTestConfig(t)

	require.NoError(t, run("migrate", "--config", path))
	require.NoError(t, run("admin", "create", "-c", path,
		"--email", "Owner@EquiSaddles.com", "--name", "Owner", "--password", "pw"))

	db, err := server.OpenDB(dbCfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.True(t, db.Migrator().HasTable(&models.ChatSession{}))
	auth := services.NewAuthService(db, &config.AuthConfig{JWTSecret: "secret"})
	admin, err := auth.LoginLocal(context.Background(), "owner@equisaddles.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Owner", admin.Name)
}

func TestAdminCreateRequiresPassword(t *testing.T) {
	path, _ := writeTestConfig(t)
	assert.Error(t, run("admin", "create", "--config", path, "--email", "owner@equisaddles.com"))
}

func TestSendTestEmailWithoutAPIKey(t *testing.T) {
	path, _ := writeTestConfig(t)
	err := run("send-test-email", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BREVO_API_KEY")
}

func TestMissingConfig(t *testing.T) {
	err := run("migrate", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
