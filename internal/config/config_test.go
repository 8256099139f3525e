package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("OPENCAGE_API_KEY", "opencage-key")
	t.Setenv("ASTROLOGY_CLIENT_ID", "client")
	t.Setenv("ASTROLOGY_CLIENT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.GeminiModel)
	assert.InDelta(t, 0.7, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 40, cfg.AI.TopK)
	assert.Equal(t, 1000, cfg.AI.MaxOutputTokens)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "us", cfg.Geocode.CountryCode)
	assert.Equal(t, 5, cfg.Geocode.Limit)
	assert.Equal(t, "https://api.prokerala.com", cfg.Chart.BaseURL)
	assert.Equal(t, 22, cfg.Session.HistoryCeiling)
	assert.Equal(t, 24*time.Hour, cfg.Session.Retention)
	assert.Equal(t, time.Hour, cfg.Session.ReapInterval)
	assert.Empty(t, cfg.Session.DatabaseURL)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENCAGE_API_KEY", "")
	t.Setenv("ASTROLOGY_CLIENT_ID", "")
	t.Setenv("ASTROLOGY_CLIENT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "OPENCAGE_API_KEY")
	assert.Contains(t, err.Error(), "ASTROLOGY_CLIENT_SECRET")
}

func TestLoadArkProviderRequiresModel(t *testing.T) {
	setRequired(t)
	t.Setenv("MODEL_PROVIDER", "ark")
	t.Setenv("ARK_API_KEY", "ark-key")
	t.Setenv("ARK_MODEL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARK_MODEL")

	t.Setenv("ARK_MODEL", "doubao-pro")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AI.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("SESSION_HISTORY_CEILING", "42")
	t.Setenv("SESSION_REAP_INTERVAL", "10m")
	t.Setenv("GEOCODE_COUNTRY_CODE", "")
	t.Setenv("ASTROLOGY_BASE_URL", "http://localhost:8081/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 42, cfg.Session.HistoryCeiling)
	assert.Equal(t, 10*time.Minute, cfg.Session.ReapInterval)
	assert.Empty(t, cfg.Geocode.CountryCode)
	assert.Equal(t, "http://localhost:8081", cfg.Chart.BaseURL)
}

func TestLoadCeilingFloor(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_HISTORY_CEILING", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Session.HistoryCeiling)
}

func TestLoadInvalidValues(t *testing.T) {
	cases := map[string]string{
		"MODEL_TEMPERATURE":  "warm",
		"MODEL_TIMEOUT":      "soon",
		"SESSION_RETENTION":  "-1h",
		"MODEL_PROVIDER":     "openai",
		"PORT":               "80 80",
		"ASTROLOGY_AYANAMSA": "lahiri",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
