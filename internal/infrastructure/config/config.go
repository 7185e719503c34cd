package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a Gray Logic add-on.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Plugin    PluginConfig    `yaml:"plugin"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Engine    EngineConfig    `yaml:"engine"`
	Settings  SettingsConfig  `yaml:"settings"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Adapters  AdaptersConfig  `yaml:"adapters"`
}

// PluginConfig identifies this add-on to the gateway.
type PluginConfig struct {
	// ID is the plugin identifier used in the registration handshake.
	// It must be stable across restarts.
	ID string `yaml:"id"`

	// PackageName is the add-on package name, used as the settings key.
	PackageName string `yaml:"package_name"`
}

// GatewayConfig contains the gateway IPC connection settings.
type GatewayConfig struct {
	// URL is the gateway plugin socket address (e.g. "ws://127.0.0.1:9500/plugin").
	URL string `yaml:"url"`

	// ConnectTimeout is the maximum time to wait for the socket to open (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// HandshakeTimeout bounds the register request/response exchange (seconds).
	HandshakeTimeout int `yaml:"handshake_timeout"`

	// WriteTimeout bounds individual message writes (seconds).
	WriteTimeout int `yaml:"write_timeout"`

	// MaxMessageSize is the largest inbound envelope accepted (bytes).
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// EngineConfig contains protocol engine settings.
type EngineConfig struct {
	// RequestTimeout is the maximum pending age of a correlated request (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// Reconnect controls backoff after a transport failure.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// OutboundQueueSize is the capacity of the ordered outbound queue.
	OutboundQueueSize int `yaml:"outbound_queue_size"`

	// DrainGrace bounds how long draining may take before the channel is
	// closed regardless (seconds).
	DrainGrace int `yaml:"drain_grace"`
}

// ReconnectConfig contains reconnection backoff settings.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// SettingsConfig contains the add-on settings store location.
type SettingsConfig struct {
	Path    string `yaml:"path"`
	WALMode bool   `yaml:"wal_mode"`

	// BusyTimeout is the SQLite busy timeout in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TelemetryConfig contains the optional InfluxDB property history settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	// BatchSize is the number of points buffered before a write.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the maximum buffering time in seconds.
	FlushInterval int `yaml:"flush_interval"`
}

// AdaptersConfig contains per-adapter settings.
type AdaptersConfig struct {
	Virtual VirtualConfig    `yaml:"virtual"`
	MQTT    MQTTBridgeConfig `yaml:"mqtt"`
}

// VirtualConfig contains virtual adapter settings.
type VirtualConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AdapterID string `yaml:"adapter_id"`

	// MotionInterval is how often the virtual motion sensor fires (seconds).
	// 0 disables periodic motion events.
	MotionInterval int `yaml:"motion_interval"`
}

// MQTTBridgeConfig contains MQTT bridge adapter settings.
type MQTTBridgeConfig struct {
	Enabled   bool               `yaml:"enabled"`
	AdapterID string             `yaml:"adapter_id"`
	Broker    MQTTBrokerConfig   `yaml:"broker"`
	Auth      MQTTAuthConfig     `yaml:"auth"`
	QoS       int                `yaml:"qos"`
	Reconnect ReconnectConfig    `yaml:"reconnect"`
	Devices   []MQTTDeviceConfig `yaml:"devices"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTDeviceConfig maps a broker topic pair onto a bridged device property.
type MQTTDeviceConfig struct {
	// ID is the device identifier exposed to the gateway.
	ID string `yaml:"id"`

	// Title is the human-readable device name.
	Title string `yaml:"title"`

	// Property is the property name the topics carry (e.g. "on").
	Property string `yaml:"property"`

	// Type is the property value type: "boolean", "integer", "number" or "string".
	Type string `yaml:"type"`

	// StateTopic is subscribed for inbound state (payload is the JSON value).
	StateTopic string `yaml:"state_topic"`

	// CommandTopic receives gateway-initiated writes. Empty means read-only.
	CommandTopic string `yaml:"command_topic,omitempty"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ADDON_SECTION_KEY
// For example: ADDON_GATEWAY_URL, ADDON_SETTINGS_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Plugin: PluginConfig{
			ID:          "gray-logic-addon",
			PackageName: "gray-logic-addon",
		},
		Gateway: GatewayConfig{
			URL:              "ws://127.0.0.1:9500/plugin",
			ConnectTimeout:   10,
			HandshakeTimeout: 10,
			WriteTimeout:     5,
			MaxMessageSize:   1 << 20,
		},
		Engine: EngineConfig{
			RequestTimeout: 30,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     120,
				MaxAttempts:  0,
			},
			OutboundQueueSize: 256,
			DrainGrace:        5,
		},
		Settings: SettingsConfig{
			Path:        "./data/addon.db",
			WALMode:     true,
			BusyTimeout: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Adapters: AdaptersConfig{
			Virtual: VirtualConfig{
				Enabled:   true,
				AdapterID: "virtual-things",
			},
			MQTT: MQTTBridgeConfig{
				AdapterID: "mqtt-bridge",
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     1883,
					ClientID: "gray-logic-addon",
				},
				QoS: 1,
				Reconnect: ReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ADDON_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Plugin
	if v := os.Getenv("ADDON_PLUGIN_ID"); v != "" {
		cfg.Plugin.ID = v
	}

	// Gateway
	if v := os.Getenv("ADDON_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}

	// Settings
	if v := os.Getenv("ADDON_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}

	// MQTT bridge
	if v := os.Getenv("ADDON_MQTT_HOST"); v != "" {
		cfg.Adapters.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ADDON_MQTT_USERNAME"); v != "" {
		cfg.Adapters.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ADDON_MQTT_PASSWORD"); v != "" {
		cfg.Adapters.MQTT.Auth.Password = v
	}

	// Telemetry
	if v := os.Getenv("ADDON_INFLUXDB_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Plugin.ID == "" {
		errs = append(errs, "plugin.id is required")
	}
	if c.Plugin.PackageName == "" {
		errs = append(errs, "plugin.package_name is required")
	}

	if c.Gateway.URL == "" {
		errs = append(errs, "gateway.url is required")
	} else if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		errs = append(errs, "gateway.url must use the ws or wss scheme")
	}

	if c.Engine.RequestTimeout <= 0 {
		errs = append(errs, "engine.request_timeout must be positive")
	}
	if c.Engine.OutboundQueueSize <= 0 {
		errs = append(errs, "engine.outbound_queue_size must be positive")
	}
	if c.Engine.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "engine.reconnect.initial_delay must be positive")
	}
	if c.Engine.Reconnect.MaxDelay < c.Engine.Reconnect.InitialDelay {
		errs = append(errs, "engine.reconnect.max_delay must be >= initial_delay")
	}

	if c.Adapters.MQTT.Enabled {
		if c.Adapters.MQTT.QoS < 0 || c.Adapters.MQTT.QoS > 2 {
			errs = append(errs, "adapters.mqtt.qos must be 0, 1, or 2")
		}
		for i, d := range c.Adapters.MQTT.Devices {
			if d.ID == "" || d.Property == "" || d.StateTopic == "" {
				errs = append(errs, fmt.Sprintf("adapters.mqtt.devices[%d] requires id, property and state_topic", i))
			}
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Bucket == "" || c.Telemetry.Org == "" {
			errs = append(errs, "telemetry.org and telemetry.bucket are required when telemetry is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the pending request timeout as a Duration.
func (c *EngineConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetDrainGrace returns the drain grace period as a Duration.
func (c *EngineConfig) GetDrainGrace() time.Duration {
	return time.Duration(c.DrainGrace) * time.Second
}

// GetConnectTimeout returns the gateway connect timeout as a Duration.
func (c *GatewayConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetHandshakeTimeout returns the handshake timeout as a Duration.
func (c *GatewayConfig) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeout) * time.Second
}

// GetWriteTimeout returns the write timeout as a Duration.
func (c *GatewayConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

// GetInitialDelay returns the first reconnect backoff delay as a Duration.
func (c *ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelay) * time.Second
}

// GetMaxDelay returns the reconnect backoff cap as a Duration.
func (c *ReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.MaxDelay) * time.Second
}
