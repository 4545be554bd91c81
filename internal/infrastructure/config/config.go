package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the echo control core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Slots     SlotsConfig     `yaml:"slots"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// RuntimeConfig contains device actor and supervisor settings.
type RuntimeConfig struct {
	// PushBuffer is the capacity of the push channel between actors and sinks.
	PushBuffer int `yaml:"push_buffer"`

	// ReadTimeout bounds one driver read, in milliseconds.
	ReadTimeout int `yaml:"read_timeout"`

	// ReconnectInterval is the first retry delay after a failed connect,
	// in milliseconds. It grows up to MaxReconnectInterval.
	ReconnectInterval int `yaml:"reconnect_interval"`

	// MaxReconnectInterval caps the retry delay, in seconds.
	MaxReconnectInterval int `yaml:"max_reconnect_interval"`

	// AutoConnect starts connecting every device as soon as it is loaded.
	AutoConnect bool `yaml:"auto_connect"`
}

// SlotsConfig locates the device slot definitions.
//
// Slots may be listed inline under Devices or in a separate YAML file
// named by File. Inline sections win over file sections with the same name.
type SlotsConfig struct {
	File    string                       `yaml:"file"`
	Devices map[string]map[string]string `yaml:"devices"`
	Rules   map[int]SlotRuleConfig       `yaml:"rules"`
}

// SlotRuleConfig constrains one slot number.
type SlotRuleConfig struct {
	Mandatory     bool     `yaml:"mandatory"`
	AllowedModels []string `yaml:"allowed_models"`
}

// GatewayConfig contains the binary packet gateway listener settings.
type GatewayConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	MaxFrame   int    `yaml:"max_frame"`
	MaxClients int    `yaml:"max_clients"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how many days of status history to keep.
	// Zero keeps everything.
	HistoryRetention int `yaml:"history_retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT      JWTConfig       `yaml:"jwt"`
	Accounts []AccountConfig `yaml:"accounts"`
}

// AccountConfig is an API login. PasswordHash is an Argon2id PHC string as
// printed by the -hash-password flag.
type AccountConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ECHOCTL_SECTION_KEY
// For example: ECHOCTL_DATABASE_PATH, ECHOCTL_API_PORT
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
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Echo Control",
		},
		Runtime: RuntimeConfig{
			PushBuffer:           256,
			ReadTimeout:          200,
			ReconnectInterval:    1000,
			MaxReconnectInterval: 120,
			AutoConnect:          true,
		},
		Gateway: GatewayConfig{
			Host:       "0.0.0.0",
			Port:       9100,
			MaxFrame:   64 * 1024,
			MaxClients: 16,
		},
		Database: DatabaseConfig{
			Path:             "./data/echocontrol.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "echocontrol-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ECHOCTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Slots
	if v := os.Getenv("ECHOCTL_SLOTS_FILE"); v != "" {
		cfg.Slots.File = v
	}

	// Database
	if v := os.Getenv("ECHOCTL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Gateway
	if v := os.Getenv("ECHOCTL_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("ECHOCTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ECHOCTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ECHOCTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ECHOCTL_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ECHOCTL_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("ECHOCTL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("ECHOCTL_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Runtime.PushBuffer < 1 {
		errs = append(errs, "runtime.push_buffer must be at least 1")
	}
	if c.Runtime.ReadTimeout < 1 {
		errs = append(errs, "runtime.read_timeout must be positive")
	}
	if c.Runtime.ReconnectInterval < 1 {
		errs = append(errs, "runtime.reconnect_interval must be positive")
	}

	for n := range c.Slots.Rules {
		if n < 1 || n > 255 {
			errs = append(errs, fmt.Sprintf("slots.rules: slot %d out of range 1-255", n))
		}
	}

	if c.Gateway.Enabled {
		if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
			errs = append(errs, "gateway.port must be between 1 and 65535")
		}
		if c.Gateway.MaxFrame < 8 {
			errs = append(errs, "gateway.max_frame must be at least 8")
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// The API drives physical devices; a weak secret allows forged tokens.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set ECHOCTL_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// DeviceReadTimeout returns the per-read driver timeout.
func (c *Config) DeviceReadTimeout() time.Duration {
	return time.Duration(c.Runtime.ReadTimeout) * time.Millisecond
}

// ReconnectInterval returns the first reconnect delay.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Runtime.ReconnectInterval) * time.Millisecond
}

// MaxReconnectInterval returns the reconnect delay cap.
func (c *Config) MaxReconnectInterval() time.Duration {
	return time.Duration(c.Runtime.MaxReconnectInterval) * time.Second
}

// DeviceSections returns the slot sections from Slots.File merged with the
// inline Slots.Devices. A missing file is an error; an empty File is not.
func (c *Config) DeviceSections() (map[string]map[string]string, error) {
	sections := make(map[string]map[string]string)
	if c.Slots.File != "" {
		fromFile, err := LoadDeviceSlots(c.Slots.File)
		if err != nil {
			return nil, err
		}
		for name, values := range fromFile {
			sections[name] = values
		}
	}
	for name, values := range c.Slots.Devices {
		sections[name] = values
	}
	return sections, nil
}

// LoadDeviceSlots reads a slot file. The file is a YAML mapping of section
// name to a flat mapping of property key to scalar value:
//
//	Slot_1:
//	  Enable: true
//	  Model: HL-525
//	  ID: 0x01000201
//	  IP: 192.168.1.50
//
// Scalar values are kept as written, so 0x01000201 stays a hex string.
func LoadDeviceSlots(path string) (map[string]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading slot file: %w", err)
	}

	sections := make(map[string]map[string]string)
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parsing slot file: %w", err)
	}
	return sections, nil
}
