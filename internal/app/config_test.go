package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTKey = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ODYSSEY_ENV_FILE", "")
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("JWT_SECRET_KEY", testJWTKey)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://kasir.example.com,https://gudang.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 30*time.Minute, cfg.AuthIdleTimeout)
	assert.Equal(t, 5<<20, cfg.MaxImageBytes)
	assert.Equal(t, []string{"https://kasir.example.com", "https://gudang.example.com"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsWeakJWTKey(t *testing.T) {
	t.Setenv("ODYSSEY_ENV_FILE", "")
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("JWT_SECRET_KEY", "short")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_ENV=production\nRATE_LIMIT_PER_MINUTE=30\n"), 0o600))
	t.Setenv("ODYSSEY_ENV_FILE", path)
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("JWT_SECRET_KEY", testJWTKey)
	t.Cleanup(func() {
		_ = os.Unsetenv("APP_ENV")
		_ = os.Unsetenv("RATE_LIMIT_PER_MINUTE")
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
}
