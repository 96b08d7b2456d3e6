package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.HTTP.Addr != ":2137" {
		t.Errorf("Expected HTTP addr default ':2137', got '%s'", cfg.HTTP.Addr)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Expected MQTT broker default 'tcp://localhost:1883', got '%s'", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Topic != "pcc/in" {
		t.Errorf("Expected MQTT topic default 'pcc/in', got '%s'", cfg.MQTT.Topic)
	}
	if cfg.Status.URL != "http://localhost:2138/" {
		t.Errorf("Expected status url default, got '%s'", cfg.Status.URL)
	}
	if cfg.Broadcast.Interval != 500*time.Millisecond {
		t.Errorf("Expected broadcast interval 500ms, got %s", cfg.Broadcast.Interval)
	}
	if cfg.Location.TrailThreshold != 1.0 {
		t.Errorf("Expected trail threshold 1.0, got %f", cfg.Location.TrailThreshold)
	}
	if cfg.Outlier.Tolerance != 0 {
		t.Errorf("Expected outlier filter disabled by default, got tolerance %f", cfg.Outlier.Tolerance)
	}
	if cfg.ProfilesConfig != "profiles-config.json" || cfg.ReceiverConfig != "app_config.json" {
		t.Errorf("Unexpected config file defaults: %s, %s", cfg.ProfilesConfig, cfg.ReceiverConfig)
	}
	if cfg.Redis.Enabled {
		t.Errorf("Expected redis snapshot cache disabled by default")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	os.Clearenv()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
pcc-port: 9000
mqtt-host: broker.local
mqtt-port: 1884
mqtt-topic: telemetry/in
status-app: http://status:2138/
trail-threshold: 5
broadcast-interval-ms: 250
allowed-origins:
  - http://localhost:5173
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("Expected ':9000', got '%s'", cfg.HTTP.Addr)
	}
	if cfg.MQTT.Broker != "tcp://broker.local:1884" {
		t.Errorf("Expected 'tcp://broker.local:1884', got '%s'", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Topic != "telemetry/in" {
		t.Errorf("Expected 'telemetry/in', got '%s'", cfg.MQTT.Topic)
	}
	if cfg.Location.TrailThreshold != 5 {
		t.Errorf("Expected trail threshold 5, got %f", cfg.Location.TrailThreshold)
	}
	if cfg.Broadcast.Interval != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", cfg.Broadcast.Interval)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("Unexpected allowed origins: %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	os.Clearenv()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.MQTT.Topic != "pcc/in" {
		t.Errorf("Expected defaults when config file is missing, got topic '%s'", cfg.MQTT.Topic)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	os.Clearenv()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pcc-port: [not, a, port"), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("Expected error for malformed config file")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("MQTT_BROKER", "tcp://mqtt:1883")
	t.Setenv("MQTT_TOPIC", "pcc/test")
	t.Setenv("TRAIL_THRESHOLD_M", "2.5")
	t.Setenv("BROADCAST_INTERVAL_MS", "100")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "http://a, http://b")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.MQTT.Broker != "tcp://mqtt:1883" {
		t.Errorf("Expected MQTT_BROKER override, got '%s'", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Topic != "pcc/test" {
		t.Errorf("Expected MQTT_TOPIC override, got '%s'", cfg.MQTT.Topic)
	}
	if cfg.Location.TrailThreshold != 2.5 {
		t.Errorf("Expected TRAIL_THRESHOLD_M override, got %f", cfg.Location.TrailThreshold)
	}
	if cfg.Broadcast.Interval != 100*time.Millisecond {
		t.Errorf("Expected BROADCAST_INTERVAL_MS override, got %s", cfg.Broadcast.Interval)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Expected redis overrides, got %+v", cfg.Redis)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "http://b" {
		t.Errorf("Unexpected allowed origins: %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected LOG_LEVEL 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestValidate_RejectsNegativeThreshold(t *testing.T) {
	os.Clearenv()
	t.Setenv("TRAIL_THRESHOLD_M", "-1")

	if _, err := Load(""); err == nil {
		t.Fatalf("Expected validation error for negative trail threshold")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	if value := getEnv("TEST_VAR", "default"); value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}
	if value := getEnv("NON_EXISTENT_VAR", "default-value"); value != "default-value" {
		t.Errorf("Expected 'default-value', got '%s'", value)
	}
}
