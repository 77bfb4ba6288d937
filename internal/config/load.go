package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Load merges Defaults(), the YAML file at path (skipped when path is empty) and WIFID_*
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	config := Defaults()

	if path != "" {
		if err := loadFromFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// loadFromFile decodes path over config. Keys absent from the file keep their current value.
func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, config)
}

// applyEnvOverrides applies WIFID_* environment variables to the config. Unparsable values
// are ignored.
func applyEnvOverrides(config *Config) {
	config.LogLevel = GetEnvVar("WIFID_LOG_LEVEL", config.LogLevel)

	// Wi-Fi
	w := &config.WiFi
	w.StationInterface = GetEnvVar("WIFID_WIFI_STATION_INTERFACE", w.StationInterface)
	w.SSIDPrefix = GetEnvVar("WIFID_WIFI_SSID_PREFIX", w.SSIDPrefix)
	w.APBand = GetEnvVar("WIFID_WIFI_AP_BAND", w.APBand)
	w.APChannel = GetEnvInt("WIFID_WIFI_AP_CHANNEL", w.APChannel)
	w.APMode = GetEnvVar("WIFID_WIFI_AP_MODE", w.APMode)
	w.APIdleTimeout = GetEnvDuration("WIFID_WIFI_AP_IDLE_TIMEOUT", w.APIdleTimeout)
	w.StationReconnectInterval = GetEnvDuration("WIFID_WIFI_STATION_RECONNECT_INTERVAL", w.StationReconnectInterval)
	w.SupplicantBus = GetEnvVar("WIFID_WIFI_SUPPLICANT_BUS", w.SupplicantBus)
	w.CallTimeout = GetEnvDuration("WIFID_WIFI_CALL_TIMEOUT", w.CallTimeout)
	w.Backoff.InitialDelay = GetEnvDuration("WIFID_WIFI_BACKOFF_INITIAL", w.Backoff.InitialDelay)
	w.Backoff.MaxDelay = GetEnvDuration("WIFID_WIFI_BACKOFF_MAX", w.Backoff.MaxDelay)
	w.Backoff.Multiplier = GetEnvFloat("WIFID_WIFI_BACKOFF_MULTIPLIER", w.Backoff.Multiplier)

	config.Identity.Path = GetEnvVar("WIFID_IDENTITY_PATH", config.Identity.Path)

	config.DHCP.Enabled = GetEnvBool("WIFID_DHCP_ENABLED", config.DHCP.Enabled)
	config.DHCP.Command = GetEnvVar("WIFID_DHCP_COMMAND", config.DHCP.Command)

	config.HTTP.Addr = GetEnvVar("WIFID_HTTP_ADDR", config.HTTP.Addr)

	// Auth secrets are commonly injected through the environment.
	config.Auth.Enabled = GetEnvBool("WIFID_AUTH_ENABLED", config.Auth.Enabled)
	config.Auth.Algorithm = GetEnvVar("WIFID_AUTH_ALGORITHM", config.Auth.Algorithm)
	config.Auth.Secret = GetEnvVar("WIFID_AUTH_SECRET", config.Auth.Secret)
	config.Auth.PublicKeyPath = GetEnvVar("WIFID_AUTH_PUBLIC_KEY_PATH", config.Auth.PublicKeyPath)

	config.Telemetry.HeartbeatInterval = GetEnvDuration("WIFID_TELEMETRY_HEARTBEAT_INTERVAL", config.Telemetry.HeartbeatInterval)
	config.Telemetry.HeartbeatJitter = GetEnvDuration("WIFID_TELEMETRY_HEARTBEAT_JITTER", config.Telemetry.HeartbeatJitter)
	config.Telemetry.EventBufferSize = GetEnvInt("WIFID_TELEMETRY_EVENT_BUFFER_SIZE", config.Telemetry.EventBufferSize)

	config.MQTT.Enabled = GetEnvBool("WIFID_MQTT_ENABLED", config.MQTT.Enabled)
	config.MQTT.Broker = GetEnvVar("WIFID_MQTT_BROKER", config.MQTT.Broker)
	config.MQTT.ClientID = GetEnvVar("WIFID_MQTT_CLIENT_ID", config.MQTT.ClientID)
	config.MQTT.TopicPrefix = GetEnvVar("WIFID_MQTT_TOPIC_PREFIX", config.MQTT.TopicPrefix)
	config.MQTT.Username = GetEnvVar("WIFID_MQTT_USERNAME", config.MQTT.Username)
	config.MQTT.Password = GetEnvVar("WIFID_MQTT_PASSWORD", config.MQTT.Password)

	config.Audit.Dir = GetEnvVar("WIFID_AUDIT_DIR", config.Audit.Dir)
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns the value of an environment variable as a duration with a default.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvFloat returns the value of an environment variable as a float64 with a default.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GetEnvInt returns the value of an environment variable as an int with a default.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// GetEnvBool returns the value of an environment variable as a bool with a default.
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
