package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("catalog-sync-test")

	require.NoError(t, err)
	assert.Equal(t, "catalog-sync-service", cfg.AppName)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "catalog.events", cfg.Kafka.EventsTopic)
	assert.Equal(t, 24*time.Hour, cfg.Sync.StaleThreshold)
	assert.True(t, cfg.Sync.DefaultSyncEnabled)
	assert.Equal(t, "10", cfg.Pricing.MinMarginPercent)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "development", cfg.ENV)
}

func TestLoad_EnvOverrides(t *testing.T) {
	// Arrange
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("SYNC_STALE_THRESHOLD", "6h")
	t.Setenv("SUPPLIER_ACCESS_TOKEN", "secret-token")
	t.Setenv("PRICING_MIN_MARGIN_PERCENT", "12.5")
	t.Setenv("APP_ENV", "production")

	// Act
	cfg, err := Load("catalog-sync-test")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 6*time.Hour, cfg.Sync.StaleThreshold)
	assert.Equal(t, "secret-token", cfg.Supplier.AccessToken)
	assert.Equal(t, "production", cfg.ENV)

	marginPolicy, err := cfg.MarginPolicy()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.5").Equal(marginPolicy.MinimumPercent))
}

func TestLoad_InvalidMargin(t *testing.T) {
	t.Setenv("PRICING_MIN_MARGIN_PERCENT", "ten")

	_, err := Load("catalog-sync-test")

	assert.Error(t, err)
}

func TestConfig_MarginPolicyOverrides(t *testing.T) {
	testCases := []struct {
		name        string
		overrides   map[string]string
		expectedErr bool
	}{
		{"valid", map[string]string{"electronics": "25", "toys": "15.5"}, false},
		{"invalid value", map[string]string{"electronics": "lots"}, true},
		{"empty", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			cfg.Pricing.MinMarginPercent = "10"
			cfg.Pricing.CategoryOverrides = tc.overrides

			marginPolicy, err := cfg.MarginPolicy()

			if tc.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, marginPolicy.CategoryOverrides, len(tc.overrides))
			for category, raw := range tc.overrides {
				assert.True(t, decimal.RequireFromString(raw).Equal(marginPolicy.MinimumFor(category)))
			}
		})
	}
}
