package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults select in-memory backends", func(t *testing.T) {
		t.Setenv("LEDGER_ADMIN", "0xAdmin")
		cfg := FromEnv()

		assert.Equal(t, ":8080", cfg.Addr)
		assert.Empty(t, cfg.Database.URL)
		assert.Empty(t, cfg.Kafka.Brokers)
		assert.Equal(t, int64(10<<20), cfg.MaxDocumentBytes)
		assert.Equal(t, "@every 1m", cfg.ReconcileSchedule)
		require.NoError(t, cfg.Validate())
	})

	t.Run("parses durations and ints", func(t *testing.T) {
		t.Setenv("LEDGER_ADMIN", "0xadmin")
		t.Setenv("VERIFY_TIMEOUT", "750ms")
		t.Setenv("INDEX_WRITE_RETRIES", "9")
		t.Setenv("JWT_TTL", "not-a-duration")
		cfg := FromEnv()

		assert.Equal(t, 750*time.Millisecond, cfg.VerifyTimeout)
		assert.Equal(t, 9, cfg.IndexWriteRetries)
		assert.Equal(t, 12*time.Hour, cfg.TokenTTL, "invalid values fall back to defaults")
	})

	t.Run("rate limits", func(t *testing.T) {
		t.Setenv("LEDGER_ADMIN", "0xadmin")
		t.Setenv("RATE_LIMIT_DISABLED", "true")
		t.Setenv("RATE_LIMIT_PUBLIC_PER_MIN", "10")
		cfg := FromEnv()

		assert.True(t, cfg.RateLimit.Disabled)
		assert.Equal(t, 10, cfg.RateLimit.PublicPerMin)
		assert.Equal(t, 30, cfg.RateLimit.AdminPerMin)
	})

	t.Run("admin is required", func(t *testing.T) {
		t.Setenv("LEDGER_ADMIN", "")
		assert.Error(t, FromEnv().Validate())
	})

	t.Run("production refuses the development signing key", func(t *testing.T) {
		t.Setenv("LEDGER_ADMIN", "0xadmin")
		t.Setenv("SHIKKHA_ENV", "production")
		t.Setenv("JWT_SIGNING_KEY", "")
		assert.Error(t, FromEnv().Validate())
	})
}
