package config

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for hellod.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig describes the register device and where its nodes appear.
type DeviceConfig struct {
	Name     string `yaml:"name"`
	DevDir   string `yaml:"dev_dir"`
	ProcDir  string `yaml:"proc_dir"`
	ClassDir string `yaml:"class_dir"`

	// Modes are octal permission strings, e.g. "0666".
	DeviceMode string `yaml:"device_mode"`
	ProcMode   string `yaml:"proc_mode"`
	AttrMode   string `yaml:"attr_mode"`

	// UID and GID own the nodes. -1 means the daemon's own credentials.
	UID int `yaml:"uid"`
	GID int `yaml:"gid"`
}

// ServerConfig contains node socket server settings.
type ServerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Socket       string `yaml:"socket"`
	SocketMode   string `yaml:"socket_mode"`
	MaxOpenFiles int    `yaml:"max_open_files"`
}

// APIConfig contains HTTP introspection server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// AuditConfig controls the register write trail.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HELLO_SECTION_KEY
// For example: HELLO_DEVICE_NAME, HELLO_SERVER_SOCKET
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

// Default returns the built-in configuration with environment overrides
// applied, for running without a config file.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:       "hello",
			DevDir:     "/dev",
			ProcDir:    "/proc",
			ClassDir:   "/sys/class",
			DeviceMode: "0666",
			ProcMode:   "0644",
			AttrMode:   "0644",
			UID:        -1,
			GID:        -1,
		},
		Server: ServerConfig{
			Enabled:      true,
			Socket:       "/run/hellod/hellod.sock",
			SocketMode:   "0666",
			MaxOpenFiles: 1024,
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8087,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hellod",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/hellod.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Audit: AuditConfig{
			Enabled:   false,
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HELLO_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("HELLO_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}

	// Server
	if v := os.Getenv("HELLO_SERVER_SOCKET"); v != "" {
		cfg.Server.Socket = v
	}

	// API
	if v := os.Getenv("HELLO_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HELLO_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("HELLO_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HELLO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HELLO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("HELLO_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Logging
	if v := os.Getenv("HELLO_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.Name == "" || strings.Contains(c.Device.Name, "/") {
		errs = append(errs, "device.name must be a non-empty name without '/'")
	}
	for key, dir := range map[string]string{
		"device.dev_dir":   c.Device.DevDir,
		"device.proc_dir":  c.Device.ProcDir,
		"device.class_dir": c.Device.ClassDir,
	} {
		if !path.IsAbs(dir) {
			errs = append(errs, key+" must be an absolute path")
		}
	}
	for key, mode := range map[string]string{
		"device.device_mode": c.Device.DeviceMode,
		"device.proc_mode":   c.Device.ProcMode,
		"device.attr_mode":   c.Device.AttrMode,
	} {
		if _, err := ParseMode(mode); err != nil {
			errs = append(errs, key+": "+err.Error())
		}
	}

	// Server validation
	if c.Server.Enabled {
		if c.Server.Socket == "" {
			errs = append(errs, "server.socket is required when the server is enabled")
		}
		if _, err := ParseMode(c.Server.SocketMode); err != nil {
			errs = append(errs, "server.socket_mode: "+err.Error())
		}
		if c.Server.MaxOpenFiles < 1 {
			errs = append(errs, "server.max_open_files must be at least 1")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Audit needs the database
	if c.Audit.Enabled {
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required when audit is enabled")
		}
		if c.Audit.QueueSize < 1 {
			errs = append(errs, "audit.queue_size must be at least 1")
		}
	}

	if len(errs) > 0 {
		// Map iteration above is unordered.
		sort.Strings(errs)
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ParseMode parses an octal permission string such as "0644".
func ParseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q", s)
	}
	if v&^uint64(os.ModePerm) != 0 {
		return 0, fmt.Errorf("mode %q has bits outside 0777", s)
	}
	return os.FileMode(v), nil
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
