package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSettings_Defaults(t *testing.T) {
	path := writeSettings(t, "symbols: [BTCUSDT]\n")

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, ":8000", s.ListenAddr)
	assert.Equal(t, 5, s.Leverage)
	assert.Equal(t, 3.0, s.TakeProfitPercent)
	assert.Equal(t, 1.5, s.StopLossPercent)
	assert.Equal(t, 3.3, s.TrendTouchGate())
	assert.Equal(t, "USDT", s.QuoteAsset)
	assert.Equal(t, "percent", s.Sizing.Mode)
	assert.Equal(t, 10.0, s.Sizing.Percent)
	assert.Equal(t, 3, s.Retry.Attempts)
	assert.Equal(t, 200, s.Market.CandleLimit)
	assert.Empty(t, s.validate())
}

func TestLoadSettings_ExplicitZeroDisablesTrendGate(t *testing.T) {
	path := writeSettings(t, "symbols: [BTCUSDT]\ntrend_touch_min_change: 0\n")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.TrendTouchGate())
	assert.Empty(t, s.validate())
}

func TestLoadSettings_Overrides(t *testing.T) {
	path := writeSettings(t, `
symbols: [BTCUSDT, SOLUSDT]
leverage: 5
take_profit_percent: 3.0
stop_loss_percent: 1.5
overrides:
  SOLUSDT:
    leverage: 10
    take_profit_percent: 4.5
`)

	s, err := LoadSettings(path)
	require.NoError(t, err)

	base := s.ParamsFor("BTCUSDT")
	assert.Equal(t, 5, base.Leverage)
	assert.Equal(t, 3.0, base.TakeProfitPercent)

	sol := s.ParamsFor("SOLUSDT")
	assert.Equal(t, 10, sol.Leverage)
	assert.Equal(t, 4.5, sol.TakeProfitPercent)
	assert.Equal(t, 1.5, sol.StopLossPercent, "unset override fields inherit the global value")

	m := s.SymbolParamMap()
	require.Len(t, m, 2)
	assert.Equal(t, sol, m["SOLUSDT"])
}

func TestLoadSettings_Validation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no symbols", "leverage: 5\n", "symbols must not be empty"},
		{"bad sizing mode", "symbols: [BTCUSDT]\nsizing:\n  mode: martingale\n", "unknown sizing.mode"},
		{"percent out of range", "symbols: [BTCUSDT]\nsizing:\n  mode: percent\n  percent: 150\n", "sizing.percent"},
		{"bad override", "symbols: [BTCUSDT]\noverrides:\n  BTCUSDT:\n    leverage: -1\n", "overrides.BTCUSDT.leverage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := LoadSettings(writeSettings(t, tc.content))
			require.NoError(t, err)
			errs := s.validate()
			require.NotEmpty(t, errs)
			joined := ""
			for _, e := range errs {
				joined += e + "; "
			}
			assert.Contains(t, joined, tc.wantErr)
		})
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	path := writeSettings(t, "symbols: [BTCUSDT]\n")
	t.Setenv("BINANCE_API_KEY", "k")
	t.Setenv("BINANCE_API_SECRET", "s")
	t.Setenv("ANTHROPIC_API_KEY", "a")
	t.Setenv("SETTINGS_PATH", path)
	t.Setenv("IS_TESTNET", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.APIKey)
	assert.False(t, cfg.IsTestnet)
	require.NotNil(t, cfg.Settings)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Settings.Symbols)
}

func TestLoadConfig_MissingSecrets(t *testing.T) {
	path := writeSettings(t, "symbols: [BTCUSDT]\n")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("SETTINGS_PATH", path)

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BINANCE_API_KEY must be set")
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY must be set")
}
