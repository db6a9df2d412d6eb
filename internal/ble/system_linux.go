//go:build linux

package ble

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/motion-installer/internal/ble/bgapi"
)

// Handles synthesized for the host stack, which hides ATT handles.
const (
	serviceHandleSpan  = 0x100
	resultNotConnected = 0x0186
	resultWriteFailed  = 0x0401
)

const (
	bluezBus      = "org.bluez"
	gattService   = "org.bluez.GattService1"
	gattChar      = "org.bluez.GattCharacteristic1"
	managedObject = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

// SystemRadio drives the host Bluetooth stack (BlueZ) through
// tinygo.org/x/bluetooth and reports results as the BGAPI events a dongle
// would send, so the same Session logic serves both. Attribute writes go
// straight to BlueZ over D-Bus as acknowledged write requests.
type SystemRadio struct {
	id      string
	adapter *bluetooth.Adapter
	bus     *dbus.Conn
	queue   *eventQueue

	cmdMu sync.Mutex // one command outstanding

	mu       sync.Mutex
	scanning bool
	device   *bluetooth.Device
	services map[uint16]bluetooth.DeviceService // by start handle
	chars    map[uint16]dbus.ObjectPath         // by handle
	closed   bool
}

// OpenSystemRadio enables the host adapter with the given id, like "hci0".
func OpenSystemRadio(id string) (*SystemRadio, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: system bus: %w", err)
	}
	r := &SystemRadio{
		id:      id,
		adapter: bluetooth.NewAdapter(id),
		bus:     bus,
		queue:   newEventQueue(),
	}
	if err := r.adapter.Enable(); err != nil {
		r.queue.close()
		return nil, fmt.Errorf("ble: enable adapter %s: %w", id, err)
	}
	r.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		r.mu.Lock()
		ours := r.device != nil && r.device.Address == device.Address
		if ours {
			r.device = nil
		}
		r.mu.Unlock()
		if ours {
			slog.Info("[BLE] peer disconnected", "adapter", id, "peer", device.Address.String())
			r.queue.push(bgapi.Disconnected{Reason: 0x0208})
		}
	})
	return r, nil
}

func (r *SystemRadio) lock() error {
	r.cmdMu.Lock()
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		r.cmdMu.Unlock()
		return ErrRadioClosed
	}
	return nil
}

func (r *SystemRadio) EndProcedure(ctx context.Context) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.cmdMu.Unlock()
	r.stopScan()
	return nil
}

func (r *SystemRadio) stopScan() {
	r.mu.Lock()
	scanning := r.scanning
	r.scanning = false
	r.mu.Unlock()
	if scanning {
		if err := r.adapter.StopScan(); err != nil {
			slog.Debug("[BLE] stop scan", "adapter", r.id, "error", err)
		}
	}
}

func (r *SystemRadio) Disconnect(ctx context.Context, conn byte) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	dev := r.device
	r.device = nil
	r.mu.Unlock()
	if dev == nil {
		return &bgapi.ResultError{Class: bgapi.ClassConnection, ID: bgapi.Disconnect(0).ID, Result: resultNotConnected}
	}

	done := make(chan error, 1)
	go func() { done <- dev.Disconnect() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ble: disconnect: %w", err)
		}
		r.queue.push(bgapi.Disconnected{Connection: conn, Reason: 0x0216})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SystemRadio) Discover(ctx context.Context, mode byte) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	if r.scanning {
		r.mu.Unlock()
		return nil
	}
	r.scanning = true
	r.mu.Unlock()

	go func() {
		err := r.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
			addrType := bgapi.AddressPublic
			if res.Address.IsRandom() {
				addrType = bgapi.AddressRandom
			}
			r.queue.push(bgapi.ScanResponse{
				RSSI:        int8(max(res.RSSI, -128)),
				Sender:      [6]byte(res.Address.MAC),
				AddressType: addrType,
			})
		})
		if err != nil {
			slog.Warn("[BLE] scan ended", "adapter", r.id, "error", err)
		}
		r.mu.Lock()
		r.scanning = false
		r.mu.Unlock()
	}()
	return nil
}

func (r *SystemRadio) ConnectDirect(ctx context.Context, addr [6]byte, addrType byte, params ConnParams) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.cmdMu.Unlock()
	r.stopScan()

	var target bluetooth.Address
	target.MAC = bluetooth.MAC(addr)
	target.SetRandom(addrType == bgapi.AddressRandom)
	cp := bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(5 * time.Second),
		MinInterval:       bluetooth.NewDuration(time.Duration(params.MinInterval) * 1250 * time.Microsecond),
		MaxInterval:       bluetooth.NewDuration(time.Duration(params.MaxInterval) * 1250 * time.Microsecond),
		Timeout:           bluetooth.NewDuration(time.Duration(params.Timeout) * 10 * time.Millisecond),
	}

	// Connect blocks; its outcome is reported as a connection status.
	go func() {
		dev, err := r.adapter.Connect(target, cp)
		if err != nil {
			slog.Warn("[BLE] connect failed", "adapter", r.id, "peer", target.String(), "error", err)
			r.queue.push(bgapi.ConnectionStatus{Address: addr, AddressType: addrType})
			return
		}
		r.mu.Lock()
		r.device = &dev
		r.services = make(map[uint16]bluetooth.DeviceService)
		r.chars = make(map[uint16]dbus.ObjectPath)
		r.mu.Unlock()
		r.queue.push(bgapi.ConnectionStatus{
			Flags:       bgapi.FlagConnected | bgapi.FlagCompleted,
			Address:     addr,
			AddressType: addrType,
			Interval:    params.MaxInterval,
			Timeout:     params.Timeout,
			Latency:     params.Latency,
		})
	}()
	return nil
}

func (r *SystemRadio) connected() (*bluetooth.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device == nil {
		return nil, fmt.Errorf("ble: %s: no connected peer", r.id)
	}
	return r.device, nil
}

func (r *SystemRadio) ReadByGroupType(ctx context.Context, conn byte, start, end uint16, uuid []byte) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.cmdMu.Unlock()
	dev, err := r.connected()
	if err != nil {
		return err
	}

	svcs, err := dev.DiscoverServices(nil)
	if err != nil {
		slog.Warn("[BLE] discover services failed", "adapter", r.id, "error", err)
		r.queue.push(bgapi.ProcedureCompleted{Connection: conn, Result: resultWriteFailed})
		return nil
	}
	for i, svc := range svcs {
		first := uint16(i+1) * serviceHandleSpan
		r.mu.Lock()
		r.services[first] = svc
		r.mu.Unlock()
		r.queue.push(bgapi.GroupFound{
			Connection: conn,
			Start:      first,
			End:        first + serviceHandleSpan - 1,
			UUID:       uuidLittleEndian(svc.UUID()),
		})
	}
	r.queue.push(bgapi.ProcedureCompleted{Connection: conn})
	return nil
}

func (r *SystemRadio) FindInformation(ctx context.Context, conn byte, start, end uint16) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.cmdMu.Unlock()
	dev, err := r.connected()
	if err != nil {
		return err
	}

	r.mu.Lock()
	svc, ok := r.services[start]
	r.mu.Unlock()
	if !ok {
		r.queue.push(bgapi.ProcedureCompleted{Connection: conn})
		return nil
	}
	chars, err := svc.DiscoverCharacteristics(nil)
	if err != nil {
		slog.Warn("[BLE] discover characteristics failed", "adapter", r.id, "error", err)
		r.queue.push(bgapi.ProcedureCompleted{Connection: conn, Result: resultWriteFailed})
		return nil
	}
	paths, err := r.characteristicPaths(dev.Address, svc.UUID())
	if err != nil {
		slog.Warn("[BLE] resolve characteristics failed", "adapter", r.id, "error", err)
	}
	for i, c := range chars {
		handle := start + uint16(i) + 1
		if handle > end {
			break
		}
		if path, ok := paths[c.UUID()]; ok {
			r.mu.Lock()
			r.chars[handle] = path
			r.mu.Unlock()
		}
		r.queue.push(bgapi.InformationFound{Connection: conn, Handle: handle, UUID: uuidLittleEndian(c.UUID())})
	}
	r.queue.push(bgapi.ProcedureCompleted{Connection: conn})
	return nil
}

func (r *SystemRadio) AttributeWrite(ctx context.Context, conn byte, handle uint16, data []byte) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.cmdMu.Unlock()
	if _, err := r.connected(); err != nil {
		return err
	}

	r.mu.Lock()
	path, ok := r.chars[handle]
	r.mu.Unlock()
	if !ok {
		return bgapi.WriteError(resultWriteFailed)
	}

	// The call returns once the peer has acknowledged the write request.
	options := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	result := uint16(0)
	call := r.bus.Object(bluezBus, path).CallWithContext(ctx, gattChar+".WriteValue", 0, data, options)
	if call.Err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("[BLE] write failed", "adapter", r.id, "handle", handle, "error", call.Err)
		result = resultWriteFailed
	}
	r.queue.push(bgapi.ProcedureCompleted{Connection: conn, Result: result, Handle: handle})
	return nil
}

// characteristicPaths maps the characteristic UUIDs of the peer's service
// with UUID svc to their BlueZ object paths.
func (r *SystemRadio) characteristicPaths(peer bluetooth.Address, svc bluetooth.UUID) (map[bluetooth.UUID]dbus.ObjectPath, error) {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	if err := r.bus.Object(bluezBus, "/").Call(managedObject, 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	prefix := devicePath(r.id, peer) + "/"

	services := make(map[dbus.ObjectPath]bool)
	for path, ifaces := range objects {
		props, ok := ifaces[gattService]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		services[path] = sameUUID(props["UUID"], svc)
	}

	paths := make(map[bluetooth.UUID]dbus.ObjectPath)
	for path, ifaces := range objects {
		props, ok := ifaces[gattChar]
		if !ok {
			continue
		}
		parent, _ := props["Service"].Value().(dbus.ObjectPath)
		if !services[parent] {
			continue
		}
		s, _ := props["UUID"].Value().(string)
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			continue
		}
		paths[u] = path
	}
	return paths, nil
}

// devicePath returns the BlueZ object path of peer on adapter id.
func devicePath(id string, peer bluetooth.Address) string {
	return "/org/bluez/" + id + "/dev_" + strings.ReplaceAll(peer.MAC.String(), ":", "_")
}

func sameUUID(v dbus.Variant, want bluetooth.UUID) bool {
	s, _ := v.Value().(string)
	u, err := bluetooth.ParseUUID(s)
	return err == nil && u == want
}

func (r *SystemRadio) Events() <-chan bgapi.Event {
	return r.queue.events()
}

// Close stops scanning, drops any connection and ends the event stream.
func (r *SystemRadio) Close() error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	dev := r.device
	r.device = nil
	r.mu.Unlock()

	r.stopScan()
	if dev != nil {
		if err := dev.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect on close", "adapter", r.id, "error", err)
		}
	}
	r.queue.close()
	return nil
}

// uuidLittleEndian returns u's bytes in the order a dongle reports them.
func uuidLittleEndian(u bluetooth.UUID) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(u.String(), "-", ""))
	if err != nil {
		return nil
	}
	slices.Reverse(b)
	return b
}

var _ Radio = (*SystemRadio)(nil)
