package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("requires DATABASE_URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "bolt://data/giftsend.db")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "https://sandbox-api.giftogram.com", cfg.ProviderURL)
		assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
		assert.Equal(t, 1, cfg.WorkerCount)
		assert.Equal(t, 10, cfg.RateLimit)
		assert.Equal(t, int64(5*1024*1024), cfg.MaxUploadSize)
		assert.Equal(t, 90*time.Second, cfg.ShutdownTimeout)
		assert.False(t, cfg.NotificationsEnabled())
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/giftsend")
		t.Setenv("GIFTOGRAM_API_KEY", "key-123")
		t.Setenv("WORKER_COUNT", "3")
		t.Setenv("SMTP_HOST", "smtp.example.com")
		t.Setenv("NOTIFY_TO", "ops@example.com")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "key-123", cfg.ProviderAPIKey)
		assert.Equal(t, 3, cfg.WorkerCount)
		assert.True(t, cfg.NotificationsEnabled())
	})
}
