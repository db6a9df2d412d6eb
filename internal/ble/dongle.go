package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/chaz8081/motion-installer/internal/ble/bgapi"
	"github.com/chaz8081/motion-installer/internal/serialport"
)

// Dongle is a Radio backed by a Bluegiga BLED112 USB dongle.
type Dongle struct {
	name string
	port io.ReadWriteCloser

	cmdMu sync.Mutex // one command outstanding
	resp  chan bgapi.Response
	queue *eventQueue

	closeOnce sync.Once
	closed    chan struct{}
	readDone  chan struct{}
	closeErr  error
}

// OpenDongle opens the dongle on the named serial port.
func OpenDongle(name string, cfg serialport.Config) (*Dongle, error) {
	port, err := serialport.Open(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("ble: open dongle: %w", err)
	}
	return NewDongle(name, port), nil
}

// NewDongle starts a dongle over an already open port.
func NewDongle(name string, port io.ReadWriteCloser) *Dongle {
	d := &Dongle{
		name:     name,
		port:     port,
		resp:     make(chan bgapi.Response, 1),
		queue:    newEventQueue(),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go d.readLoop()
	return d
}

func (d *Dongle) readLoop() {
	defer close(d.readDone)
	defer d.queue.close()

	var parser bgapi.Parser
	buf := make([]byte, 256)
	for {
		n, err := d.port.Read(buf)
		if n > 0 {
			for _, p := range parser.Feed(buf[:n]) {
				d.dispatch(p)
			}
		}
		if err != nil {
			select {
			case <-d.closed:
			default:
				slog.Error("[BLE] dongle read failed", "port", d.name, "error", err)
			}
			return
		}
	}
}

func (d *Dongle) dispatch(p bgapi.Packet) {
	if !p.Event {
		r, err := bgapi.DecodeResponse(p)
		if err != nil {
			slog.Warn("[BLE] bad response", "port", d.name, "error", err)
			return
		}
		select {
		case d.resp <- r:
		default:
			slog.Debug("[BLE] unsolicited response dropped", "port", d.name, "command", bgapi.CommandName(r.Class, r.ID))
		}
		return
	}
	ev, err := bgapi.DecodeEvent(p)
	if err != nil {
		slog.Warn("[BLE] bad event", "port", d.name, "error", err)
		return
	}
	if _, ok := ev.(bgapi.UnknownEvent); ok {
		slog.Debug("[BLE] event ignored", "port", d.name, "packet", p.String())
		return
	}
	d.queue.push(ev)
}

// command writes pkt and waits for its response.
func (d *Dongle) command(ctx context.Context, pkt bgapi.Packet) error {
	raw, err := pkt.Marshal()
	if err != nil {
		return err
	}

	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	select {
	case <-d.closed:
		return ErrRadioClosed
	case <-d.readDone:
		return ErrRadioClosed
	default:
	}
	// Discard a late response to an abandoned command.
	select {
	case <-d.resp:
	default:
	}

	if _, err := d.port.Write(raw); err != nil {
		return fmt.Errorf("ble: write %s: %w", bgapi.CommandName(pkt.Class, pkt.ID), err)
	}
	for {
		select {
		case r := <-d.resp:
			if r.Class != pkt.Class || r.ID != pkt.ID {
				slog.Debug("[BLE] mismatched response dropped", "port", d.name,
					"want", bgapi.CommandName(pkt.Class, pkt.ID), "got", bgapi.CommandName(r.Class, r.ID))
				continue
			}
			return r.Err()
		case <-ctx.Done():
			return ctx.Err()
		case <-d.readDone:
			return ErrRadioClosed
		}
	}
}

func (d *Dongle) EndProcedure(ctx context.Context) error {
	return d.command(ctx, bgapi.EndProcedure())
}

func (d *Dongle) Disconnect(ctx context.Context, conn byte) error {
	return d.command(ctx, bgapi.Disconnect(conn))
}

func (d *Dongle) Discover(ctx context.Context, mode byte) error {
	return d.command(ctx, bgapi.Discover(mode))
}

func (d *Dongle) ConnectDirect(ctx context.Context, addr [6]byte, addrType byte, params ConnParams) error {
	return d.command(ctx, bgapi.ConnectDirect(addr, addrType, params.MinInterval, params.MaxInterval, params.Timeout, params.Latency))
}

func (d *Dongle) ReadByGroupType(ctx context.Context, conn byte, start, end uint16, uuid []byte) error {
	return d.command(ctx, bgapi.ReadByGroupType(conn, start, end, uuid))
}

func (d *Dongle) FindInformation(ctx context.Context, conn byte, start, end uint16) error {
	return d.command(ctx, bgapi.FindInformation(conn, start, end))
}

func (d *Dongle) AttributeWrite(ctx context.Context, conn byte, handle uint16, data []byte) error {
	return d.command(ctx, bgapi.AttributeWrite(conn, handle, data))
}

// Events returns the dongle's event stream.
func (d *Dongle) Events() <-chan bgapi.Event {
	return d.queue.events()
}

// Close closes the serial port. Safe to call more than once.
func (d *Dongle) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		if err := d.port.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			d.closeErr = fmt.Errorf("ble: close dongle %s: %w", d.name, err)
		}
		d.queue.close()
	})
	return d.closeErr
}
