package config

import "time"

// Config is the complete daemon configuration.
type Config struct {
	LogLevel  string          `yaml:"logLevel"`
	WiFi      WiFiConfig      `yaml:"wifi"`
	Identity  IdentityConfig  `yaml:"identity"`
	DHCP      DHCPConfig      `yaml:"dhcp"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Audit     AuditConfig     `yaml:"audit"`
}

// WiFiConfig configures the supplicant session and the connectivity manager.
type WiFiConfig struct {
	StationInterface         string        `yaml:"stationInterface"`
	SSIDPrefix               string        `yaml:"ssidPrefix"`
	APBand                   string        `yaml:"apBand"`
	APChannel                int           `yaml:"apChannel"`
	APMode                   string        `yaml:"apMode"`
	APIdleTimeout            time.Duration `yaml:"apIdleTimeout"`
	StationReconnectInterval time.Duration `yaml:"stationReconnectInterval"`
	SupplicantBus            string        `yaml:"supplicantBus"`
	CallTimeout              time.Duration `yaml:"callTimeout"`
	Backoff                  BackoffConfig `yaml:"backoff"`
}

// BackoffConfig controls how the supplicant session is restarted after a service failure.
type BackoffConfig struct {
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	Multiplier   float64       `yaml:"multiplier"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// IdentityConfig locates the device identity file.
type IdentityConfig struct {
	Path string `yaml:"path"`
}

// DHCPConfig controls the DHCP client launched after provisioning.
type DHCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
}

// HTTPConfig configures the control API listener.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Algorithm     string `yaml:"algorithm"`
	Secret        string `yaml:"secret"`
	PublicKeyPath string `yaml:"publicKeyPath"`
}

// TelemetryConfig configures the SSE hub.
type TelemetryConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter   time.Duration `yaml:"heartbeatJitter"`
	EventBufferSize   int           `yaml:"eventBufferSize"`
}

// MQTTConfig configures the optional MQTT event publisher.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"clientId"`
	TopicPrefix string        `yaml:"topicPrefix"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	KeepAlive   time.Duration `yaml:"keepAlive"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		WiFi: WiFiConfig{
			StationInterface:         "wlan0",
			SSIDPrefix:               "wifid-",
			APBand:                   "2.4",
			APChannel:                6,
			APMode:                   "on-demand",
			APIdleTimeout:            5 * time.Minute,
			StationReconnectInterval: 30 * time.Second,
			SupplicantBus:            "system",
			CallTimeout:              5 * time.Second,
			Backoff: BackoffConfig{
				InitialDelay: 2 * time.Second,
				MaxDelay:     time.Minute,
				Multiplier:   2.0,
				PollInterval: time.Second,
			},
		},
		Identity: IdentityConfig{
			Path: "/etc/wifid/identity.yaml",
		},
		DHCP: DHCPConfig{
			Enabled: true,
			Command: "dhclient -nw %s",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Auth: AuthConfig{
			Algorithm: "HS256",
		},
		Telemetry: TelemetryConfig{
			HeartbeatInterval: 15 * time.Second,
			HeartbeatJitter:   2 * time.Second,
			EventBufferSize:   50,
		},
		MQTT: MQTTConfig{
			ClientID:    "wifid",
			TopicPrefix: "wifid",
			KeepAlive:   30 * time.Second,
		},
		Audit: AuditConfig{
			Dir:        "/var/log/wifid",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}
