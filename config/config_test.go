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

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 400, cfg.Media.MaxDimension)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "socialsync.yaml", `
server:
  port: "9090"
  request_timeout: 3s
firebase:
  project_id: demo
sync:
  max_attempts: 7
logging:
  level: debug
  development: true
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, "demo", cfg.Firebase.ProjectID)
	assert.Equal(t, 7, cfg.Sync.MaxAttempts)
	assert.Equal(t, 100, cfg.Sync.PageSize, "unset keys keep defaults")
	assert.True(t, cfg.Logging.Development)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server: [")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("environment beats the file", func(t *testing.T) {
		path := writeFile(t, "c.yaml", "server:\n  port: \"9090\"\n")
		t.Setenv("PORT", "7070")
		t.Setenv("MONGODB_URI", "mongodb://db:27017")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

		cfg, err := Load(path, filepath.Join(t.TempDir(), "none.env"))
		require.NoError(t, err)
		assert.Equal(t, "7070", cfg.Server.Port)
		assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	})

	t.Run("dotenv fills unset variables only", func(t *testing.T) {
		t.Setenv("FIREBASE_API_KEY", "from-env")
		t.Setenv("FIREBASE_PROJECT_ID", "")
		require.NoError(t, os.Unsetenv("FIREBASE_PROJECT_ID"))
		env := writeFile(t, ".env", "FIREBASE_API_KEY=from-file\nFIREBASE_PROJECT_ID=file-project\n")

		cfg, err := Load("", env)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Firebase.APIKey)
		assert.Equal(t, "file-project", cfg.Firebase.ProjectID)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "FIREBASE_PROJECT_ID")

	cfg.Auth.JWTSecret = "s"
	cfg.Firebase.APIKey = "k"
	cfg.Firebase.ProjectID = "p"
	assert.NoError(t, cfg.Validate())

	cfg.Sync.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}
