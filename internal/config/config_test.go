package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SYNC_CHUNK_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.SyncChunkSize)
	assert.Equal(t, 200, cfg.UploadChunkSize)
	assert.Equal(t, 3, cfg.SyncMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.SyncRetryBackoff)
	assert.False(t, cfg.UseSupabase())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("SUPABASE_SERVICE_KEY", "secret")
	t.Setenv("SYNC_CHUNK_SIZE", "25")
	t.Setenv("WOO_PAGE_DELAY", "1s")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://abc.supabase.co", cfg.SupabaseURL)
	assert.True(t, cfg.UseSupabase())
	assert.Equal(t, 25, cfg.SyncChunkSize)
	assert.Equal(t, time.Second, cfg.WooPageDelay)
	assert.False(t, cfg.SchedulerEnabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers())
}

func TestGetEnvAsInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))
}
