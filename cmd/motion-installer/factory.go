package main

import (
	"errors"
	"fmt"

	"github.com/chaz8081/motion-installer/internal/ble"
	"github.com/chaz8081/motion-installer/internal/config"
	"github.com/chaz8081/motion-installer/internal/serialport"
	"github.com/chaz8081/motion-installer/internal/transfer"
	"github.com/chaz8081/motion-installer/internal/wired"
)

// defaultHostAdapter is used by the system backend when no port is given.
const defaultHostAdapter = "hci0"

// openers are the ways a session reaches its hardware.
type openers struct {
	serial func(name string, cfg serialport.Config) (serialport.Port, error)
	system func(id string) (ble.Radio, error)
}

func hostOpeners() openers {
	return openers{
		serial: serialport.Open,
		system: func(id string) (ble.Radio, error) {
			r, err := ble.OpenSystemRadio(id)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

// newFactory returns the session factory for the configured transport.
func newFactory(cfg *config.Config, open openers) (transfer.SessionFactory, error) {
	switch cfg.Transport {
	case "wired":
		pacing := cfg.Wired.Pacing
		return func(adapter string, deps transfer.SessionDeps) (transfer.Session, error) {
			port, err := open.serial(adapter, cfg.Serial)
			if err != nil {
				return nil, err
			}
			return wired.NewSession(adapter, port, deps, pacing), nil
		}, nil

	case "ble":
		opts := ble.DefaultSessionOptions()
		opts.Pacing = cfg.BLE.Pacing
		opts.Teardown = cfg.Teardown
		opts.Continuous = cfg.Continuous
		backend := cfg.BLE.Backend
		return func(adapter string, deps transfer.SessionDeps) (transfer.Session, error) {
			var radio ble.Radio
			switch backend {
			case "system":
				r, err := open.system(adapter)
				if err != nil {
					return nil, err
				}
				radio = r
			default:
				port, err := open.serial(adapter, cfg.Serial)
				if err != nil {
					return nil, err
				}
				radio = ble.NewDongle(adapter, port)
			}
			return ble.NewSession(adapter, radio, deps, opts), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// selectAdapters picks the adapters to run: flag ports, then config
// ports, then whatever the host offers for the transport.
func selectAdapters(cfg *config.Config, flagPorts []string, list func() ([]serialport.PortInfo, error)) ([]string, error) {
	if len(flagPorts) > 0 {
		return flagPorts, nil
	}
	if len(cfg.Ports) > 0 {
		return cfg.Ports, nil
	}

	switch {
	case cfg.Transport == "ble" && cfg.BLE.Backend == "system":
		return []string{defaultHostAdapter}, nil
	case cfg.Transport == "ble":
		ports, err := list()
		if err != nil {
			return nil, err
		}
		var names []string
		for _, p := range serialport.Dongles(ports) {
			names = append(names, p.Name)
		}
		if len(names) == 0 {
			return nil, errors.New("no BLE dongles found; plug one in or pass --port")
		}
		return names, nil
	default:
		return nil, errors.New("no serial port selected; pass --port or set ports in the config")
	}
}
