package config

import (
	"fmt"
	"strings"

	"github.com/radio-control/wifid/internal/netdiag"
	"github.com/radio-control/wifid/internal/wifi"
)

// maxSSIDPrefixLen leaves room for the 4-digit discriminator in a 31-byte SSID.
const maxSSIDPrefixLen = 27

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the merged configuration.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if !logLevels[strings.ToLower(config.LogLevel)] {
		return fmt.Errorf("unknown log level %q", config.LogLevel)
	}
	if err := validateWiFi(&config.WiFi); err != nil {
		return fmt.Errorf("wifi validation failed: %w", err)
	}
	if err := validateHTTP(&config.HTTP); err != nil {
		return fmt.Errorf("http validation failed: %w", err)
	}
	if err := validateAuth(&config.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	if err := validateTelemetry(&config.Telemetry); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}
	if config.MQTT.Enabled && config.MQTT.Broker == "" {
		return fmt.Errorf("mqtt validation failed: broker is required when enabled")
	}
	if config.Audit.Dir == "" {
		return fmt.Errorf("audit validation failed: dir is required")
	}
	return nil
}

func validateWiFi(w *WiFiConfig) error {
	if w.StationInterface == "" {
		return fmt.Errorf("station interface must be set")
	}
	if len(w.SSIDPrefix) > maxSSIDPrefixLen {
		return fmt.Errorf("ssid prefix %q longer than %d bytes", w.SSIDPrefix, maxSSIDPrefixLen)
	}

	band, err := netdiag.ParseBand(w.APBand)
	if err != nil {
		return err
	}
	if _, err := netdiag.ChannelToFrequency(band, w.APChannel); err != nil {
		return err
	}

	mode, err := wifi.ParseAPMode(w.APMode)
	if err != nil {
		return err
	}
	if mode == wifi.APModeNotSupported {
		return fmt.Errorf("ap mode %s cannot be configured", mode)
	}

	if w.APIdleTimeout <= 0 {
		return fmt.Errorf("ap idle timeout must be positive, got %v", w.APIdleTimeout)
	}
	if w.StationReconnectInterval <= 0 {
		return fmt.Errorf("station reconnect interval must be positive, got %v", w.StationReconnectInterval)
	}
	if w.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", w.CallTimeout)
	}
	switch w.SupplicantBus {
	case "system", "session":
	default:
		return fmt.Errorf("supplicant bus must be system or session, got %q", w.SupplicantBus)
	}

	b := w.Backoff
	if b.InitialDelay <= 0 {
		return fmt.Errorf("backoff initial delay must be positive, got %v", b.InitialDelay)
	}
	if b.MaxDelay < b.InitialDelay {
		return fmt.Errorf("backoff max delay %v must be >= initial %v", b.MaxDelay, b.InitialDelay)
	}
	if b.Multiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be >= 1.0, got %v", b.Multiplier)
	}
	return nil
}

func validateHTTP(h *HTTPConfig) error {
	if h.Addr == "" {
		return fmt.Errorf("addr must be set")
	}
	if h.ReadTimeout <= 0 || h.WriteTimeout <= 0 || h.IdleTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	if !a.Enabled {
		return nil
	}
	switch a.Algorithm {
	case "HS256":
		if a.Secret == "" {
			return fmt.Errorf("HS256 requires a secret")
		}
	case "RS256":
		if a.PublicKeyPath == "" {
			return fmt.Errorf("RS256 requires a public key path")
		}
	default:
		return fmt.Errorf("unsupported algorithm %q", a.Algorithm)
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) error {
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval)
	}
	if t.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", t.HeartbeatJitter)
	}
	if t.HeartbeatJitter > t.HeartbeatInterval/2 {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", t.HeartbeatJitter, t.HeartbeatInterval)
	}
	if t.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", t.EventBufferSize)
	}
	return nil
}
