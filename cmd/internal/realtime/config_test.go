package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("ROOMCHAT_MAX_SENDS", "4")
	t.Setenv("ROOMCHAT_SEND_TIMEOUT", "750ms")
	t.Setenv("ROOMCHAT_HISTORY_LIMIT", "50")
	t.Setenv("ROOMCHAT_WS_ALLOWED_ORIGINS", "https://chat.example,https://admin.example")
	t.Setenv("ROOMCHAT_WS_RATE_EVENTS", "30")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxSends)
	assert.Equal(t, 750*time.Millisecond, cfg.SendTimeout)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, []string{"https://chat.example", "https://admin.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.RateEvents)
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	for key, val := range map[string]string{
		"ROOMCHAT_MAX_SENDS":      "0",
		"ROOMCHAT_HISTORY_LIMIT":  "5000",
		"ROOMCHAT_SEND_TIMEOUT":   "soon",
		"ROOMCHAT_WS_SEND_QUEUE":  "0",
		"ROOMCHAT_WS_RATE_WINDOW": "-1s",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := LoadConfigFromEnv()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig), "err = %v", err)
		})
	}
}
