package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"NATS_REQUEST_SUBJECT", "NATS_END_SUBJECT", "SESSION_TTL", "PAGE_SIZE", "DATA_SANDBOX", "REDIS_URL", "DATA_REALM_ID", "DATA_BASE_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg := Load()
	assert.Equal(t, "dialog.turn", cfg.NatsRequestSubject)
	assert.Equal(t, "dialog.end", cfg.NatsEndSubject)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 100, cfg.DataPageSize)
	assert.True(t, cfg.DataSandbox)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.DataEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("DATA_SANDBOX", "false")
	t.Setenv("DATA_REALM_ID", "9130")
	t.Setenv("LLM_TIMEOUT", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 25, cfg.DataPageSize)
	assert.False(t, cfg.DataSandbox)
	assert.True(t, cfg.DataEnabled())
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
}

func TestValidateReportsEverything(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("PAGE_SIZE", "0")

	err := Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
	assert.Contains(t, err.Error(), "PAGE_SIZE")
}
