package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
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

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// PushConfig holds the push-notification gateway settings.
type PushConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Push     PushConfig

	Router struct {
		Topics struct {
			Sensor string // sensor data topic, e.g. "sensor/#"
			Config string // device config topic, e.g. "config/#"
		}
		TenantCacheTTL time.Duration
	}

	Meter struct {
		Threshold     int           // flush when reads+writes reach this
		FlushInterval time.Duration // periodic flush of all tenants
	}

	Publisher struct {
		Stream        string // config change stream, e.g. "config:changes"
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int64
	}

	Metrics struct {
		Enabled bool
		Port    int
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
	cfg.Database.Database = getEnv("DB_NAME", "toilet")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "server-toilet")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 0))

	cfg.Push.BaseURL = getEnv("PUSH_BASE_URL", "https://fcm.googleapis.com")
	cfg.Push.APIKey = getEnv("PUSH_API_KEY", "")
	cfg.Push.Timeout = getEnvDuration("PUSH_TIMEOUT", 10*time.Second)

	cfg.Router.Topics.Sensor = getEnv("ROUTER_TOPIC_SENSOR", "sensor/#")
	cfg.Router.Topics.Config = getEnv("ROUTER_TOPIC_CONFIG", "config/#")
	cfg.Router.TenantCacheTTL = getEnvDuration("ROUTER_TENANT_CACHE_TTL", 5*time.Minute)

	cfg.Meter.Threshold = getEnvInt("METER_THRESHOLD", 2000)
	cfg.Meter.FlushInterval = getEnvDuration("METER_FLUSH_INTERVAL", time.Hour)

	cfg.Publisher.Stream = getEnv("PUBLISHER_STREAM", "config:changes")
	cfg.Publisher.ConsumerGroup = getEnv("PUBLISHER_CONSUMER_GROUP", "config-publisher-group")
	cfg.Publisher.ConsumerName = getEnv("PUBLISHER_CONSUMER_NAME", "config-publisher-1")
	cfg.Publisher.BatchSize = int64(getEnvInt("PUBLISHER_BATCH_SIZE", 10))

	cfg.Metrics.Enabled = getEnv("METRICS_ENABLED", "true") == "true"
	cfg.Metrics.Port = getEnvInt("METRICS_PORT", 9091)

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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
