package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/motion-installer/internal/ble"
	"github.com/chaz8081/motion-installer/internal/config"
	"github.com/chaz8081/motion-installer/internal/motion"
	"github.com/chaz8081/motion-installer/internal/serialport"
	"github.com/chaz8081/motion-installer/internal/transfer"
	"github.com/chaz8081/motion-installer/internal/wired"
)

type nopPort struct{ io.Reader }

func (nopPort) Write(b []byte) (int, error) { return len(b), nil }
func (nopPort) Close() error { return nil }

func TestSelectAdapters(t *testing.T) {
	dongles := func() ([]serialport.PortInfo, error) {
		return []serialport.PortInfo{
			{Name: "/dev/ttyACM0", Product: "Low Energy Dongle", USB: true},
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM1", Product: "Low Energy Dongle", USB: true},
		}, nil
	}
	none := func() ([]serialport.PortInfo, error) { return nil, nil }

	tests := []struct {
		name    string
		modify  func(*config.Config)
		flags   []string
		list    func() ([]serialport.PortInfo, error)
		want    []string
		wantErr bool
	}{
		{"flags win", func(c *config.Config) { c.Ports = []string{"/dev/cfg"} }, []string{"/dev/flag"}, dongles, []string{"/dev/flag"}, false},
		{"config ports", func(c *config.Config) { c.Ports = []string{"/dev/cfg"} }, nil, dongles, []string{"/dev/cfg"}, false},
		{"detected dongles", func(c *config.Config) {}, nil, dongles, []string{"/dev/ttyACM0", "/dev/ttyACM1"}, false},
		{"no dongles", func(c *config.Config) {}, nil, none, nil, true},
		{"system backend", func(c *config.Config) { c.BLE.Backend = "system" }, nil, none, []string{"hci0"}, false},
		{"wired needs a port", func(c *config.Config) { c.Transport = "wired" }, nil, dongles, nil, true},
		{"list error", func(c *config.Config) {}, nil, func() ([]serialport.PortInfo, error) { return nil, errors.New("denied") }, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)
			got, err := selectAdapters(cfg, tt.flags, tt.list)
			if (err != nil) != tt.wantErr {
				t.Fatalf("selectAdapters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("selectAdapters() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFactoryWired(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = "wired"
	var opened string
	f, err := newFactory(cfg, openers{
		serial: func(name string, _ serialport.Config) (serialport.Port, error) {
			opened = name
			return nopPort{strings.NewReader("")}, nil
		},
	})
	if err != nil {
		t.Fatalf("newFactory() error = %v", err)
	}
	s, err := f("/dev/ttyUSB0", transfer.SessionDeps{})
	if err != nil {
		t.Fatalf("factory error = %v", err)
	}
	if _, ok := s.(*wired.Session); !ok {
		t.Errorf("session = %T, want *wired.Session", s)
	}
	if opened != "/dev/ttyUSB0" || s.Adapter() != "/dev/ttyUSB0" {
		t.Errorf("opened %q, adapter %q", opened, s.Adapter())
	}
}

func TestFactoryDongle(t *testing.T) {
	cfg := config.Default()
	r, w := io.Pipe()
	defer w.Close()
	f, err := newFactory(cfg, openers{
		serial: func(string, serialport.Config) (serialport.Port, error) { return nopPort{r}, nil },
	})
	if err != nil {
		t.Fatalf("newFactory() error = %v", err)
	}
	s, err := f("/dev/ttyACM0", transfer.SessionDeps{})
	if err != nil {
		t.Fatalf("factory error = %v", err)
	}
	if _, ok := s.(*ble.Session); !ok {
		t.Errorf("session = %T, want *ble.Session", s)
	}
}

func TestFactoryOpenError(t *testing.T) {
	cfg := config.Default()
	cfg.BLE.Backend = "system"
	f, err := newFactory(cfg, openers{
		system: func(string) (ble.Radio, error) { return nil, errors.New("adapter busy") },
	})
	if err != nil {
		t.Fatalf("newFactory() error = %v", err)
	}
	if _, err := f("hci0", transfer.SessionDeps{}); err == nil || !strings.Contains(err.Error(), "adapter busy") {
		t.Errorf("factory error = %v, want adapter busy", err)
	}
}

func TestFactoryUnknownTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = "carrier-pigeon"
	if _, err := newFactory(cfg, hostOpeners()); err == nil {
		t.Error("newFactory() should reject an unknown transport")
	}
}

func TestEncodeCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wave.json")
	content := `{"slot": 3, "name": "wave", "codes": [], "frames": [{"transition_time_ms": 500, "outputs": []}]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write motion file: %v", err)
	}

	cmd := newEncodeCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--wire", path})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("encode error = %v", err)
	}
	line := strings.TrimSpace(out.String())
	if len(line) != 130 {
		t.Fatalf("wire line length = %d, want 130: %q", len(line), line)
	}
	if !strings.HasPrefix(line, "03wave") {
		t.Errorf("wire = %q, want slot 03 and name wave", line)
	}
}

func TestEncodeCommandNothingLoaded(t *testing.T) {
	cmd := newEncodeCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.mfx")})
	err := cmd.Execute()
	var accessErr *motion.FileAccessError
	if !errors.As(err, &accessErr) {
		t.Errorf("encode error = %v, want FileAccessError", err)
	}
}

func TestEncodeCommandKeepsGoodPrograms(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "wave.json")
	content := `{"slot": 3, "name": "wave", "codes": [], "frames": [{"transition_time_ms": 500, "outputs": []}]}`
	if err := os.WriteFile(good, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write motion file: %v", err)
	}
	bad := filepath.Join(dir, "slot.json")
	content = `{"slot": 300, "name": "high", "codes": [], "frames": []}`
	if err := os.WriteFile(bad, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write motion file: %v", err)
	}
	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write motion file: %v", err)
	}
	missing := filepath.Join(dir, "missing.mfx")

	cmd := newEncodeCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--wire", missing, good, broken, bad})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("encode error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "03wave") {
		t.Errorf("wire output = %q, want only the wave command", out.String())
	}
	report := errOut.String()
	for _, want := range []string{"missing.mfx", "broken.json", `"high"`} {
		if !strings.Contains(report, want) {
			t.Errorf("stderr = %q, want a failure naming %s", report, want)
		}
	}
}
