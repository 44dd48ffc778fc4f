package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "barrioalarm", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "https://gate.whapi.cloud", cfg.Gateway.BaseURL)
	assert.Equal(t, []string{"eu", "us", "as"}, cfg.Device.Regions)

	assert.Equal(t, 3, cfg.Broadcast.BlinkCycles)
	assert.Equal(t, 3, cfg.Broadcast.SuccessThreshold)

	assert.Equal(t, "barrio:chat:", cfg.Cache.RecentKeyPrefix)
	assert.Equal(t, 7, cfg.Cache.RecentLimit)
	assert.Equal(t, "barrio:processed:", cfg.Cache.ProcessedKeyPrefix)
	assert.Equal(t, 86400, cfg.Cache.ProcessedTTL)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("GATEWAY_TOKEN", "test-token")
	os.Setenv("BROADCAST_BLINK_CYCLES", "5")
	os.Setenv("DEVICE_REGIONS", "us, eu")
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "test-token", cfg.Gateway.Token)
	assert.Equal(t, 5, cfg.Broadcast.BlinkCycles)
	assert.Equal(t, []string{"us", "eu"}, cfg.Device.Regions)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "barrioalarm", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=barrioalarm sslmode=disable",
		c.GetDSN(),
	)
}

func TestGetEnvInt_Invalid(t *testing.T) {
	os.Setenv("TEST_INT", "not-a-number")
	defer os.Unsetenv("TEST_INT")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))
}

func TestGetEnvList(t *testing.T) {
	os.Setenv("TEST_LIST", " a ,b,, c")
	defer os.Unsetenv("TEST_LIST")

	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST", "x,y"))
	assert.Equal(t, []string{"x", "y"}, getEnvList("TEST_LIST_MISSING", "x,y"))
}
