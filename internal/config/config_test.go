package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/motion-installer/internal/transfer"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Transport != "ble" {
		t.Errorf("Transport = %q, want %q", cfg.Transport, "ble")
	}
	if cfg.BLE.Backend != "dongle" {
		t.Errorf("BLE.Backend = %q, want %q", cfg.BLE.Backend, "dongle")
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("Serial.BaudRate = %d, want 115200", cfg.Serial.BaudRate)
	}
	if !cfg.Serial.RTS {
		t.Error("Serial.RTS = false, want true")
	}
	if cfg.BLE.Pacing != transfer.BLEPacing() {
		t.Errorf("BLE.Pacing = %+v, want BLEPacing()", cfg.BLE.Pacing)
	}
	if cfg.Wired.Pacing != transfer.WiredPacing() {
		t.Errorf("Wired.Pacing = %+v, want WiredPacing()", cfg.Wired.Pacing)
	}
	if got := cfg.Teardown.Bound(); got != 50*time.Millisecond {
		t.Errorf("Teardown.Bound() = %v, want 50ms", got)
	}
	if cfg.Continuous {
		t.Error("Continuous = true, want false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
transport: ble
ports: ["/dev/ttyACM0", "/dev/ttyACM1"]
continuous: true
serial:
  baud_rate: 57600
ble:
  backend: system
  pacing:
    write_delay: 25ms
    program_pause: 1s
teardown:
  retries: 10
  interval: 5ms
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Ports) != 2 || cfg.Ports[0] != "/dev/ttyACM0" || cfg.Ports[1] != "/dev/ttyACM1" {
		t.Errorf("Ports = %v, want [/dev/ttyACM0 /dev/ttyACM1]", cfg.Ports)
	}
	if !cfg.Continuous {
		t.Error("Continuous = false, want true")
	}
	if cfg.Serial.BaudRate != 57600 {
		t.Errorf("Serial.BaudRate = %d, want 57600", cfg.Serial.BaudRate)
	}
	if cfg.Serial.DataBits != 8 {
		t.Errorf("Serial.DataBits = %d, want default 8", cfg.Serial.DataBits)
	}
	if cfg.BLE.Backend != "system" {
		t.Errorf("BLE.Backend = %q, want %q", cfg.BLE.Backend, "system")
	}
	if cfg.BLE.Pacing.WriteDelay != 25*time.Millisecond {
		t.Errorf("BLE.Pacing.WriteDelay = %v, want 25ms", cfg.BLE.Pacing.WriteDelay)
	}
	if cfg.BLE.Pacing.ProgramPause != time.Second {
		t.Errorf("BLE.Pacing.ProgramPause = %v, want 1s", cfg.BLE.Pacing.ProgramPause)
	}
	if cfg.BLE.Pacing.HeaderPause != 50*time.Millisecond {
		t.Errorf("BLE.Pacing.HeaderPause = %v, want default 50ms", cfg.BLE.Pacing.HeaderPause)
	}
	if got := cfg.Teardown.Bound(); got != 50*time.Millisecond {
		t.Errorf("Teardown.Bound() = %v, want 50ms", got)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Pacing() != cfg.BLE.Pacing {
		t.Error("Pacing() should return the BLE pacing for transport ble")
	}
}

func TestLoadWired(t *testing.T) {
	yamlContent := `
transport: wired
ports: ["~/dev/robot"]
wired:
  pacing:
    group_pause: 40ms
`
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, "dev/robot"); len(cfg.Ports) != 1 || cfg.Ports[0] != want {
		t.Errorf("Ports = %v, want [%s]", cfg.Ports, want)
	}
	p := cfg.Pacing()
	if p.GroupPause != 40*time.Millisecond {
		t.Errorf("Pacing().GroupPause = %v, want 40ms", p.GroupPause)
	}
	if p.FinishPause != 100*time.Millisecond {
		t.Errorf("Pacing().FinishPause = %v, want default 100ms", p.FinishPause)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("ports: [unclosed\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"wired", func(c *Config) { c.Transport = "wired" }, false},
		{"system backend", func(c *Config) { c.BLE.Backend = "system" }, false},
		{"continuous ble", func(c *Config) { c.Continuous = true }, false},
		{"unknown transport", func(c *Config) { c.Transport = "wifi" }, true},
		{"unknown backend", func(c *Config) { c.BLE.Backend = "usb" }, true},
		{"continuous wired", func(c *Config) { c.Transport = "wired"; c.Continuous = true }, true},
		{"negative ble pacing", func(c *Config) { c.BLE.Pacing.GroupPause = -time.Millisecond }, true},
		{"negative wired pacing", func(c *Config) { c.Transport = "wired"; c.Wired.Pacing.WriteDelay = -1 }, true},
		{"empty port", func(c *Config) { c.Ports = []string{"/dev/ttyACM0", " "} }, true},
		{"zero baud", func(c *Config) { c.Serial.BaudRate = 0 }, true},
		{"data bits", func(c *Config) { c.Serial.DataBits = 9 }, true},
		{"no teardown budget", func(c *Config) { c.Teardown.Retries = 0 }, true},
		{"zero event buffer", func(c *Config) { c.EventBuffer = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "motion-installer", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# motion-installer") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.BLE.Pacing.ProgramPause != 500*time.Millisecond {
		t.Errorf("written config BLE.Pacing.ProgramPause = %v, want 500ms", cfg.BLE.Pacing.ProgramPause)
	}
	if cfg.Transport != "ble" {
		t.Errorf("written config Transport = %q, want %q", cfg.Transport, "ble")
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "motion-installer")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("transport: wired\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
