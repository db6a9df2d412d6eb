package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/motion-installer/internal/serialport"
	"github.com/chaz8081/motion-installer/internal/transfer"
)

// Config holds all application configuration.
type Config struct {
	Transport   string            `yaml:"transport"` // "ble" or "wired"
	Ports       []string          `yaml:"ports"`     // serial ports, or host adapter ids for the system backend
	Continuous  bool              `yaml:"continuous"`
	Serial      serialport.Config `yaml:"serial"`
	BLE         BLEConfig         `yaml:"ble"`
	Wired       WiredConfig       `yaml:"wired"`
	Teardown    transfer.Teardown `yaml:"teardown"`
	EventBuffer int               `yaml:"event_buffer"`
	LogLevel    string            `yaml:"log_level"`
}

// BLEConfig holds settings for uploads over Bluetooth Low Energy.
type BLEConfig struct {
	Backend string          `yaml:"backend"` // "dongle" or "system"
	Pacing  transfer.Pacing `yaml:"pacing"`
}

// WiredConfig holds settings for uploads over a serial cable.
type WiredConfig struct {
	Pacing transfer.Pacing `yaml:"pacing"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "motion-installer")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Transport: "ble",
		Serial:    serialport.DefaultConfig(),
		BLE: BLEConfig{
			Backend: "dongle",
			Pacing:  transfer.BLEPacing(),
		},
		Wired: WiredConfig{
			Pacing: transfer.WiredPacing(),
		},
		Teardown:    transfer.DefaultTeardown(),
		EventBuffer: 256,
		LogLevel:    "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in port paths is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for i, p := range cfg.Ports {
		cfg.Ports[i] = expandTilde(p)
	}

	return cfg, nil
}

// Pacing returns the write delays for the configured transport.
func (c *Config) Pacing() transfer.Pacing {
	if c.Transport == "wired" {
		return c.Wired.Pacing
	}
	return c.BLE.Pacing
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Transport {
	case "ble":
		switch c.BLE.Backend {
		case "dongle", "system":
		default:
			return fmt.Errorf("ble.backend must be \"dongle\" or \"system\", got %q", c.BLE.Backend)
		}
		if err := validatePacing("ble.pacing", c.BLE.Pacing); err != nil {
			return err
		}
	case "wired":
		if c.Continuous {
			return errors.New("continuous requires transport \"ble\"")
		}
		if err := validatePacing("wired.pacing", c.Wired.Pacing); err != nil {
			return err
		}
	default:
		return fmt.Errorf("transport must be \"ble\" or \"wired\", got %q", c.Transport)
	}

	for _, p := range c.Ports {
		if strings.TrimSpace(p) == "" {
			return errors.New("ports must not contain empty names")
		}
	}

	if c.Serial.BaudRate <= 0 {
		return errors.New("serial.baud_rate must be > 0")
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		return fmt.Errorf("serial.data_bits must be 5 to 8, got %d", c.Serial.DataBits)
	}

	if c.Teardown.Bound() <= 0 {
		return errors.New("teardown.retries and teardown.interval must be > 0")
	}

	if c.EventBuffer <= 0 {
		return errors.New("event_buffer must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

func validatePacing(field string, p transfer.Pacing) error {
	delays := map[string]int64{
		"write_delay":   int64(p.WriteDelay),
		"header_pause":  int64(p.HeaderPause),
		"group_pause":   int64(p.GroupPause),
		"program_pause": int64(p.ProgramPause),
		"finish_pause":  int64(p.FinishPause),
		"settle_delay":  int64(p.SettleDelay),
	}
	for name, d := range delays {
		if d < 0 {
			return fmt.Errorf("%s.%s must not be negative", field, name)
		}
	}
	return nil
}

const defaultHeader = `# motion-installer configuration
# transport: ble (BLED112 dongle or host adapter) or wired (serial cable)
# ports: serial ports to use; empty selects every detected dongle
`

// WriteDefault writes the default config to DefaultConfigPath and returns
// the path written. It returns ("", nil) when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// map to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
