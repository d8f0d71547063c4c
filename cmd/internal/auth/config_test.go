package auth

import (
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

func TestLoadConfigFromEnv_Override(t *testing.T) {
	t.Setenv("ROOMCHAT_AUTH_MAX_TOKENS", "3")
	t.Setenv("ROOMCHAT_AUTH_MAX_TOKEN_LENGTH", "64")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxTokens)
	assert.Equal(t, 64, cfg.MaxTokenLength)
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	for _, v := range []string{"0", "101", "ten"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("ROOMCHAT_AUTH_MAX_TOKENS", v)
			_, err := LoadConfigFromEnv()
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestLoadConfigFromEnv_LockoutOverride(t *testing.T) {
	t.Setenv("ROOMCHAT_AUTH_LOCKOUT_SHORT_THRESHOLD", "2")
	t.Setenv("ROOMCHAT_AUTH_LOCKOUT_SHORT_DURATION", "30s")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.LockoutShortThreshold)
	assert.Equal(t, 30*time.Second, cfg.LockoutShortDuration)

	t.Setenv("ROOMCHAT_AUTH_LOCKOUT_LONG_DURATION", "0s")
	_, err = LoadConfigFromEnv()
	assert.ErrorIs(t, err, ErrConfig)
}
