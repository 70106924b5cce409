package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected DB_HOST default 'localhost', got '%s'", cfg.Database.Host)
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("Expected DB_PORT default 5432, got %d", cfg.Database.Port)
	}

	if cfg.Database.Database != "toilet" {
		t.Errorf("Expected DB_NAME default 'toilet', got '%s'", cfg.Database.Database)
	}

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR default 'localhost:6379', got '%s'", cfg.Redis.Addr)
	}

	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Expected MQTT_BROKER default 'tcp://localhost:1883', got '%s'", cfg.MQTT.Broker)
	}

	if cfg.Router.Topics.Sensor != "sensor/#" {
		t.Errorf("Expected sensor topic default 'sensor/#', got '%s'", cfg.Router.Topics.Sensor)
	}

	if cfg.Meter.Threshold != 2000 {
		t.Errorf("Expected meter threshold default 2000, got %d", cfg.Meter.Threshold)
	}

	if cfg.Meter.FlushInterval != time.Hour {
		t.Errorf("Expected meter flush interval default 1h, got %v", cfg.Meter.FlushInterval)
	}

	if cfg.Publisher.Stream != "config:changes" {
		t.Errorf("Expected publisher stream default 'config:changes', got '%s'", cfg.Publisher.Stream)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("METER_THRESHOLD", "1000")
	os.Setenv("METER_FLUSH_INTERVAL", "30m")
	os.Setenv("MQTT_CLIENT_ID", "server-toilet-2")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("Expected DB_HOST 'db.internal', got '%s'", cfg.Database.Host)
	}

	if cfg.Meter.Threshold != 1000 {
		t.Errorf("Expected meter threshold 1000, got %d", cfg.Meter.Threshold)
	}

	if cfg.Meter.FlushInterval != 30*time.Minute {
		t.Errorf("Expected meter flush interval 30m, got %v", cfg.Meter.FlushInterval)
	}

	if cfg.MQTT.ClientID != "server-toilet-2" {
		t.Errorf("Expected MQTT_CLIENT_ID 'server-toilet-2', got '%s'", cfg.MQTT.ClientID)
	}
}
