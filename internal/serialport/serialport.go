// Package serialport opens and lists the serial lines that carry BLE
// dongles and wired robot links.
package serialport

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Config holds serial line settings. Lines always use no parity and one
// stop bit.
type Config struct {
	BaudRate int  `yaml:"baud_rate"`
	DataBits int  `yaml:"data_bits"`
	RTS      bool `yaml:"rts"`
}

// DefaultConfig returns 115200 baud, 8N1, with RTS asserted.
func DefaultConfig() Config {
	return Config{BaudRate: 115200, DataBits: 8, RTS: true}
}

// Port is an open serial line.
type Port interface {
	io.ReadWriteCloser
}

// Open opens the named port with cfg. Zero fields take the defaults.
func Open(name string, cfg Config) (Port, error) {
	def := DefaultConfig()
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = def.BaudRate
	}
	if cfg.DataBits <= 0 {
		cfg.DataBits = def.DataBits
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}
	if cfg.RTS {
		if err := p.SetRTS(true); err != nil {
			p.Close()
			return nil, fmt.Errorf("serialport: set RTS on %s: %w", name, err)
		}
	}
	return p, nil
}

// PortInfo describes one serial port found on the host.
type PortInfo struct {
	Name    string
	Product string
	USB     bool
	VID     string
	PID     string
}

// LooksLikeDongle reports whether the port appears to be a BLE dongle.
func (p PortInfo) LooksLikeDongle() bool {
	return strings.Contains(p.Product, "Low Energy")
}

func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	if p.Product == "" {
		return fmt.Sprintf("%s (USB %s:%s)", p.Name, p.VID, p.PID)
	}
	return fmt.Sprintf("%s (%s, USB %s:%s)", p.Name, p.Product, p.VID, p.PID)
}

// List returns the host's serial ports sorted by name.
func List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			Product: d.Product,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// Dongles filters ports down to likely BLE dongles.
func Dongles(ports []PortInfo) []PortInfo {
	var out []PortInfo
	for _, p := range ports {
		if p.LooksLikeDongle() {
			out = append(out, p)
		}
	}
	return out
}
