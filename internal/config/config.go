// Package config handles configuration loading, validation, and management
// for lyrad.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the complete daemon configuration.
type Config struct {
	// Device selects the controller on the I2C bus.
	Device DeviceConfig `toml:"device" json:"device" yaml:"device"`

	// Mouse holds the pointer scaling parameters.
	Mouse MouseConfig `toml:"mouse" json:"mouse" yaml:"mouse"`

	// Poll holds the poll loop parameters.
	Poll PollConfig `toml:"poll" json:"poll" yaml:"poll"`

	// Keymap holds the layout customization.
	Keymap KeymapConfig `toml:"keymap" json:"keymap" yaml:"keymap"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Debug exposes metrics and health over HTTP when set.
	Debug DebugConfig `toml:"debug" json:"debug" yaml:"debug"`

	// Sleep controls system sleep integration.
	Sleep SleepConfig `toml:"sleep" json:"sleep" yaml:"sleep"`
}

// DeviceConfig identifies the controller.
type DeviceConfig struct {
	// I2CBus is the bus number, addressed as /dev/i2c-<n>.
	I2CBus int `toml:"i2c_bus" json:"i2c_bus" yaml:"i2c_bus"`

	// Addr is the 7-bit slave address of the controller.
	Addr uint8 `toml:"addr" json:"addr" yaml:"addr"`

	// Sim replaces the hardware with the in-memory simulator. Useful on
	// machines without the peripheral attached.
	Sim bool `toml:"sim" json:"sim" yaml:"sim"`
}

// MouseConfig holds pointer scaling.
type MouseConfig struct {
	// SpeedX is the X-axis multiplier in percent, 10 to 500.
	SpeedX int `toml:"speed_x" json:"speed_x" yaml:"speed_x"`

	// SpeedY is the Y-axis multiplier in percent, 10 to 500.
	SpeedY int `toml:"speed_y" json:"speed_y" yaml:"speed_y"`
}

// PollConfig holds the poll loop parameters.
type PollConfig struct {
	// IntervalMs is the poll period in milliseconds, 5 to 100.
	IntervalMs int `toml:"interval_ms" json:"interval_ms" yaml:"interval_ms"`
}

// KeymapConfig holds layout customization.
type KeymapConfig struct {
	// OverlayPath is an optional YAML overlay remapping individual scan
	// codes. Empty means the built-in layout.
	OverlayPath string `toml:"overlay_path" json:"overlay_path" yaml:"overlay_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file (when Output includes "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server is started.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the path to the Unix socket.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// MaxConnections is the maximum concurrent connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the per-request timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// DebugConfig holds the optional HTTP debug endpoint.
type DebugConfig struct {
	// ListenAddr enables the /metrics and /healthz endpoint when non-empty,
	// e.g. "127.0.0.1:9331".
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// SleepConfig holds system sleep integration.
type SleepConfig struct {
	// Enabled subscribes to logind PrepareForSleep and suspends polling
	// across system sleep.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			I2CBus: 2,
			Addr:   0x55,
		},
		Mouse: MouseConfig{
			SpeedX: 100,
			SpeedY: 100,
		},
		Poll: PollConfig{
			IntervalMs: 10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   "/var/log/lyrad/lyrad.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			MaxConnections: 4,
			TimeoutSec:     10,
		},
		Sleep: SleepConfig{
			Enabled: true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return "/etc/lyrad/config.toml"
}

func defaultSocketPath() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, "lyrad.sock")
	}
	return "/run/lyrad.sock"
}

// Load reads configuration from the specified path. A missing file yields
// the defaults; a present but malformed file is an error. The format follows
// the extension: .yaml/.yml decode as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies LYRAD_* environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LYRAD_I2C_BUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Device.I2CBus = n
		}
	}
	if v := os.Getenv("LYRAD_I2C_ADDR"); v != "" {
		if n, err := strconv.ParseUint(v, 0, 8); err == nil {
			c.Device.Addr = uint8(n)
		}
	}
	if v := os.Getenv("LYRAD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LYRAD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("LYRAD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("LYRAD_OVERLAY_PATH"); v != "" {
		c.Keymap.OverlayPath = v
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
