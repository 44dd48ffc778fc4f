package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig holds the local device broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // switch command topic prefix, device id appended
	QoS      byte
}

// GatewayConfig holds the chat gateway API client settings.
type GatewayConfig struct {
	BaseURL string
	Token   string
}

// DeviceConfig holds the smart-switch cloud API settings.
type DeviceConfig struct {
	AppID     string
	AppSecret string
	Email     string
	Password  string
	Regions   []string // tried in order when authenticating
	DeviceID  string
}

// SpeechConfig holds the speech synthesis client settings.
type SpeechConfig struct {
	BaseURL string
	APIKey  string
	Voice   string
	Model   string
}

// ComposerConfig holds the language-model message composer settings.
type ComposerConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// RenderConfig holds the alert render webhook settings.
type RenderConfig struct {
	BaseURL string
}

// BroadcastConfig holds orchestrator tunables.
type BroadcastConfig struct {
	BlinkCycles      int
	SuccessThreshold int
	TempDir          string
}

// CacheConfig holds the conversation cache tunables.
type CacheConfig struct {
	RecentKeyPrefix    string // per-chat recent message list, chat id appended
	RecentLimit        int
	ProcessedKeyPrefix string // per-message processed marker, message id appended
	ProcessedTTL       int    // seconds
}

// Config is the full service configuration.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	MQTT      MQTTConfig
	Gateway   GatewayConfig
	Device    DeviceConfig
	Speech    SpeechConfig
	Composer  ComposerConfig
	Render    RenderConfig
	Broadcast BroadcastConfig
	Cache     CacheConfig

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "barrioalarm")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "barrio-alarm")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_SWITCH_TOPIC", "barrio/switch/")
	cfg.MQTT.QoS = 1

	cfg.Gateway.BaseURL = getEnv("GATEWAY_BASE_URL", "https://gate.whapi.cloud")
	cfg.Gateway.Token = getEnv("GATEWAY_TOKEN", "")

	cfg.Device.AppID = getEnv("DEVICE_APP_ID", "")
	cfg.Device.AppSecret = getEnv("DEVICE_APP_SECRET", "")
	cfg.Device.Email = getEnv("DEVICE_EMAIL", "")
	cfg.Device.Password = getEnv("DEVICE_PASSWORD", "")
	cfg.Device.Regions = getEnvList("DEVICE_REGIONS", "eu,us,as")
	cfg.Device.DeviceID = getEnv("DEVICE_ID", "")

	cfg.Speech.BaseURL = getEnv("SPEECH_BASE_URL", "https://api.openai.com")
	cfg.Speech.APIKey = getEnv("SPEECH_API_KEY", "")
	cfg.Speech.Voice = getEnv("SPEECH_VOICE", "nova")
	cfg.Speech.Model = getEnv("SPEECH_MODEL", "tts-1")

	cfg.Composer.BaseURL = getEnv("COMPOSER_BASE_URL", "https://api.openai.com")
	cfg.Composer.APIKey = getEnv("COMPOSER_API_KEY", "")
	cfg.Composer.Model = getEnv("COMPOSER_MODEL", "gpt-4o-mini")

	cfg.Render.BaseURL = getEnv("RENDER_BASE_URL", "")

	cfg.Broadcast.BlinkCycles = getEnvInt("BROADCAST_BLINK_CYCLES", 3)
	cfg.Broadcast.SuccessThreshold = getEnvInt("BROADCAST_SUCCESS_THRESHOLD", 3)
	cfg.Broadcast.TempDir = getEnv("BROADCAST_TEMP_DIR", os.TempDir())

	cfg.Cache.RecentKeyPrefix = getEnv("CACHE_RECENT_PREFIX", "barrio:chat:")
	cfg.Cache.RecentLimit = 7
	cfg.Cache.ProcessedKeyPrefix = getEnv("CACHE_PROCESSED_PREFIX", "barrio:processed:")
	cfg.Cache.ProcessedTTL = getEnvInt("CACHE_PROCESSED_TTL", 86400)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
