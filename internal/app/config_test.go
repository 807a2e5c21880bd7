package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 10*time.Minute, cfg.SummaryCacheTTL)
	require.Equal(t, 360*time.Hour, cfg.OverdueGrace)
	require.False(t, cfg.IsProduction())
}

func TestIsProduction(t *testing.T) {
	require.False(t, (*Config)(nil).IsProduction())
	require.True(t, (&Config{AppEnv: "production"}).IsProduction())
}

func TestTestModeRefresh(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
